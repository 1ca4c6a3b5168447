package snapshot

import (
	"testing"
	"time"

	"github.com/clusterops/sacctsync/pkg/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_SelfHealsDefaultAccount(t *testing.T) {
	t.Parallel()

	assocs := []AssocRow{
		{Account: "physics", User: "alice", Settings: policy.Settings{policy.Fairshare: "5"}},
	}
	s, notices := Build(assocs, nil, nil)

	def, ok := s.DefaultAccount("alice")
	require.True(t, ok)
	assert.Equal(t, "physics", def)

	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "no recorded default account")
}

func TestBuild_RosterSeedsDefaultWithoutNotice(t *testing.T) {
	t.Parallel()

	roster := []RosterRow{{User: "alice", DefaultAccount: "physics", Account: "physics"}}
	assocs := []AssocRow{{Account: "physics", User: "alice", Settings: policy.Settings{}}}
	s, notices := Build(assocs, roster, nil)

	def, ok := s.DefaultAccount("alice")
	require.True(t, ok)
	assert.Equal(t, "physics", def)
	assert.Empty(t, notices)
}

func TestBuild_AccountOnlyRowsKeyedByAccount(t *testing.T) {
	t.Parallel()

	assocs := []AssocRow{
		{Account: "physics", Settings: policy.Settings{policy.GrpTRES: "cpu=100"}},
	}
	s, _ := Build(assocs, nil, nil)

	assert.True(t, s.AccountExists("physics"))
	require.NotNil(t, s.Current("physics"))
	assert.Equal(t, "cpu=100", s.Current("physics")[policy.GrpTRES])

	_, ok := s.DefaultAccount("physics")
	assert.False(t, ok, "account-only rows carry no default-account bookkeeping")
}

func TestBuild_RootExcluded(t *testing.T) {
	t.Parallel()

	assocs := []AssocRow{
		{Account: "root", User: "root", Settings: policy.Settings{}},
		{Account: "physics", User: "root", Settings: policy.Settings{}},
	}
	roster := []RosterRow{{User: "root", DefaultAccount: "root", Account: "root"}}
	s, notices := Build(assocs, roster, nil)

	assert.False(t, s.AccountExists("root"))
	_, ok := s.DefaultAccount("root")
	assert.False(t, ok)
	assert.Empty(t, notices)
	assert.Empty(t, s.ProvisionedUsers())
}

func TestNonDefaultAccounts(t *testing.T) {
	t.Parallel()

	roster := []RosterRow{
		{User: "dave", DefaultAccount: "physics", Account: "physics"},
		{User: "dave", DefaultAccount: "physics", Account: "chem"},
		{User: "dave", DefaultAccount: "physics", Account: "biology"},
	}
	s, _ := Build(nil, roster, nil)

	assert.Equal(t, []string{"biology", "chem"}, s.NonDefaultAccounts("dave"))
	assert.True(t, s.HasAssociation("dave", "chem"))
	assert.False(t, s.HasAssociation("dave", "astro"))
}

func TestIsNew(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	grace := 30 * 24 * time.Hour
	tx := []TransactionRow{
		{User: "carol", Timestamp: now.Add(-2 * 24 * time.Hour)},
		{User: "old", Timestamp: now.Add(-60 * 24 * time.Hour)},
	}
	s, _ := Build(nil, nil, tx)

	assert.True(t, s.IsNew("carol", now, grace))
	assert.False(t, s.IsNew("old", now, grace))
	assert.False(t, s.IsNew("absent", now, grace), "absent from transactions means not new")
}
