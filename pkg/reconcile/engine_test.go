package reconcile

import (
	"strings"
	"testing"
	"time"

	"github.com/clusterops/sacctsync/pkg/identity"
	"github.com/clusterops/sacctsync/pkg/policy"
	"github.com/clusterops/sacctsync/pkg/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{
		Now:                 testNow,
		MinUID:              1000,
		GraceWindow:         30 * 24 * time.Hour,
		SkipLocked:          true,
		RequireHome:         true,
		EnforcePrimaryGroup: true,
		NologinShells:       []string{"/sbin/nologin", "/bin/false"},
		HomeDirExists:       func(string) bool { return true },
	}
}

func parsePolicy(t *testing.T, input string, dir *identity.Directory) *policy.Store {
	t.Helper()
	st, issues, err := policy.Parse(strings.NewReader(input), dir.HasGroup)
	require.NoError(t, err)
	require.Empty(t, issues)
	return st
}

// accountRow marks an account as existing in the accounting system.
func accountRow(account string) snapshot.AssocRow {
	return snapshot.AssocRow{Account: account, Settings: policy.Settings{}}
}

func userRow(account, user string, settings policy.Settings) snapshot.AssocRow {
	if settings == nil {
		settings = policy.Settings{}
	}
	return snapshot.AssocRow{Account: account, User: user, Settings: settings}
}

func opVerbs(ops []Op) []Verb {
	out := make([]Verb, len(ops))
	for i, op := range ops {
		out[i] = op.Verb
	}
	return out
}

func TestRun_CreateUser(t *testing.T) {
	t.Parallel()

	dir := identity.NewDirectory(
		[]*identity.User{{Name: "alice", UID: 2001, GID: 501, HomeDir: "/home/alice", Shell: "/bin/bash"}},
		[]*identity.Group{{Name: "physics", GID: 501}},
		nil,
	)
	snap, _ := snapshot.Build([]snapshot.AssocRow{accountRow("physics")}, nil, nil)
	pol := parsePolicy(t, "DEFAULT:fairshare:10\nphysics:GrpTRES:cpu=100\n", dir)

	plan := Run(dir, snap, pol, testOptions())

	ops := plan.Ops()
	require.Len(t, ops, 1)
	op := ops[0]
	assert.Equal(t, VerbCreateUser, op.Verb)
	assert.Equal(t, "alice", op.User)
	assert.Equal(t, "physics", op.Account)
	require.Len(t, op.Args, 2)
	assert.Equal(t, Arg{"fairshare", "10"}, op.Args[0])
	assert.Equal(t, Arg{"GrpTRES", "cpu=100"}, op.Args[1])
	assert.Equal(t, "create user name=alice account=physics fairshare=10 GrpTRES=cpu=100", op.Command())
}

func TestRun_AliasedGroupOverride(t *testing.T) {
	t.Parallel()

	// The policy group layer is keyed by the group name; the override must
	// still reach bob even though chemistry provisions under account chem.
	dir := identity.NewDirectory(
		[]*identity.User{{Name: "bob", UID: 2002, GID: 501, HomeDir: "/home/bob", Shell: "/bin/bash"}},
		[]*identity.Group{{Name: "chemistry", GID: 501}},
		map[string]string{"chemistry": "chem"},
	)
	snap, _ := snapshot.Build([]snapshot.AssocRow{accountRow("chem")}, nil, nil)
	pol := parsePolicy(t, "DEFAULT:fairshare:10\nchemistry:fairshare:20\n", dir)

	plan := Run(dir, snap, pol, testOptions())

	ops := plan.Ops()
	require.Len(t, ops, 1)
	assert.Equal(t, VerbCreateUser, ops[0].Verb)
	assert.Equal(t, "chem", ops[0].Account)
	assert.Equal(t, []Arg{{"fairshare", "20"}}, ops[0].Args)
	assert.Equal(t, "create user name=bob account=chem fairshare=20", ops[0].Command())
}

func TestRun_ModifyChangedFactor(t *testing.T) {
	t.Parallel()

	dir := identity.NewDirectory(
		[]*identity.User{{Name: "bob", UID: 2002, GID: 501, HomeDir: "/home/bob", Shell: "/bin/bash"}},
		[]*identity.Group{{Name: "physics", GID: 501}},
		nil,
	)
	snap, _ := snapshot.Build([]snapshot.AssocRow{
		accountRow("physics"),
		userRow("physics", "bob", policy.Settings{policy.Fairshare: "5"}),
	}, nil, nil)
	pol := parsePolicy(t, "DEFAULT:fairshare:10\n", dir)

	plan := Run(dir, snap, pol, testOptions())

	ops := plan.Ops()
	require.Len(t, ops, 1)
	assert.Equal(t, VerbModifyUser, ops[0].Verb)
	assert.Equal(t, "bob", ops[0].User)
	assert.Equal(t, []Arg{{"fairshare", "10"}}, ops[0].Args)
	assert.Equal(t, "modify user where name=bob set fairshare=10", ops[0].Command())
}

func TestRun_AccountBaselineInherited(t *testing.T) {
	t.Parallel()

	dir := identity.NewDirectory(
		[]*identity.User{{Name: "bob", UID: 2002, GID: 501, HomeDir: "/home/bob", Shell: "/bin/bash"}},
		[]*identity.Group{{Name: "physics", GID: 501}},
		nil,
	)
	baseline := policy.Settings{policy.Fairshare: "10"}
	snap, _ := snapshot.Build([]snapshot.AssocRow{
		{Account: "physics", Settings: baseline},
		userRow("physics", "bob", nil),
	}, nil, nil)
	pol := parsePolicy(t, "DEFAULT:fairshare:10\n", dir)

	plan := Run(dir, snap, pol, testOptions())
	assert.Empty(t, plan.Ops(), "value inherited from the account baseline needs no modify")
}

func TestRun_OwnValueOverridesAccountBaseline(t *testing.T) {
	t.Parallel()

	dir := identity.NewDirectory(
		[]*identity.User{{Name: "bob", UID: 2002, GID: 501, HomeDir: "/home/bob", Shell: "/bin/bash"}},
		[]*identity.Group{{Name: "physics", GID: 501}},
		nil,
	)
	snap, _ := snapshot.Build([]snapshot.AssocRow{
		{Account: "physics", Settings: policy.Settings{policy.Fairshare: "10"}},
		userRow("physics", "bob", policy.Settings{policy.Fairshare: "5"}),
	}, nil, nil)
	pol := parsePolicy(t, "DEFAULT:fairshare:10\n", dir)

	plan := Run(dir, snap, pol, testOptions())

	ops := plan.Ops()
	require.Len(t, ops, 1)
	assert.Equal(t, VerbModifyUser, ops[0].Verb)
	assert.Equal(t, []Arg{{"fairshare", "10"}}, ops[0].Args)
}

func TestRun_Idempotent(t *testing.T) {
	t.Parallel()

	dir := identity.NewDirectory(
		[]*identity.User{{Name: "bob", UID: 2002, GID: 501, HomeDir: "/home/bob", Shell: "/bin/bash"}},
		[]*identity.Group{{Name: "physics", GID: 501}},
		nil,
	)
	snap, _ := snapshot.Build([]snapshot.AssocRow{
		accountRow("physics"),
		userRow("physics", "bob", policy.Settings{policy.Fairshare: "10"}),
	}, nil, nil)
	pol := parsePolicy(t, "DEFAULT:fairshare:10\n", dir)

	opts := testOptions()
	first := Run(dir, snap, pol, opts)
	assert.Empty(t, first.Ops(), "converged inputs yield no operations")

	second := Run(dir, snap, pol, opts)
	assert.Equal(t, first.Ops(), second.Ops())
}

func TestRun_NewUserGetsNewUserTier(t *testing.T) {
	t.Parallel()

	dir := identity.NewDirectory(
		[]*identity.User{{Name: "carol", UID: 2003, GID: 501, HomeDir: "/home/carol", Shell: "/bin/bash"}},
		[]*identity.Group{{Name: "physics", GID: 501}},
		nil,
	)
	snap, _ := snapshot.Build(
		[]snapshot.AssocRow{accountRow("physics"), userRow("physics", "carol", nil)},
		nil,
		[]snapshot.TransactionRow{{User: "carol", Timestamp: testNow.Add(-2 * 24 * time.Hour)}},
	)
	pol := parsePolicy(t, "NEWUSER:fairshare:1\nphysics:fairshare:10\n", dir)

	plan := Run(dir, snap, pol, testOptions())

	ops := plan.Ops()
	require.Len(t, ops, 1)
	assert.Equal(t, VerbModifyUser, ops[0].Verb)
	assert.Equal(t, []Arg{{"fairshare", "1"}}, ops[0].Args, "NEWUSER tier wins over the group layer for new users")
}

func TestRun_UserOverrideAppliesToNewUsers(t *testing.T) {
	t.Parallel()

	dir := identity.NewDirectory(
		[]*identity.User{{Name: "carol", UID: 2003, GID: 501, HomeDir: "/home/carol", Shell: "/bin/bash"}},
		[]*identity.Group{{Name: "physics", GID: 501}},
		nil,
	)
	snap, _ := snapshot.Build(
		[]snapshot.AssocRow{accountRow("physics"), userRow("physics", "carol", nil)},
		nil,
		[]snapshot.TransactionRow{{User: "carol", Timestamp: testNow.Add(-2 * 24 * time.Hour)}},
	)
	pol := parsePolicy(t, "NEWUSER:fairshare:1\ncarol:fairshare:42\n", dir)

	plan := Run(dir, snap, pol, testOptions())

	ops := plan.Ops()
	require.Len(t, ops, 1)
	assert.Equal(t, []Arg{{"fairshare", "42"}}, ops[0].Args)
}

func TestRun_LockedUserDeleted(t *testing.T) {
	t.Parallel()

	dir := identity.NewDirectory(
		[]*identity.User{{Name: "dave", UID: 2004, GID: 501, HomeDir: "/home/dave", Shell: "/bin/bash", Locked: true}},
		[]*identity.Group{{Name: "physics", GID: 501}},
		nil,
	)
	snap, _ := snapshot.Build(
		[]snapshot.AssocRow{accountRow("physics"), userRow("physics", "dave", policy.Settings{policy.Fairshare: "5"})},
		[]snapshot.RosterRow{
			{User: "dave", DefaultAccount: "physics", Account: "physics"},
			{User: "dave", DefaultAccount: "physics", Account: "chem"},
			{User: "dave", DefaultAccount: "physics", Account: "biology"},
		},
		nil,
	)
	pol := parsePolicy(t, "DEFAULT:fairshare:10\n", dir)

	plan := Run(dir, snap, pol, testOptions())

	ops := plan.Ops()
	require.Equal(t, []Verb{VerbDeleteAccount, VerbDeleteAccount, VerbDeleteUser}, opVerbs(ops),
		"every non-default account is dropped before the user")
	assert.Equal(t, "biology", ops[0].Account)
	assert.Equal(t, "chem", ops[1].Account)
	assert.Equal(t, "dave", ops[2].User)
	assert.Equal(t, "delete user dave", ops[2].Command())
}

func TestRun_IgnoredUserReportedNotDeleted(t *testing.T) {
	t.Parallel()

	// eve's primary group is her own private group
	dir := identity.NewDirectory(
		[]*identity.User{{Name: "eve", UID: 2005, GID: 505, HomeDir: "/home/eve", Shell: "/bin/bash"}},
		[]*identity.Group{{Name: "eve", GID: 505}},
		nil,
	)
	snap, _ := snapshot.Build(
		[]snapshot.AssocRow{accountRow("physics"), userRow("physics", "eve", nil)},
		nil, nil,
	)
	pol := parsePolicy(t, "DEFAULT:fairshare:10\n", dir)

	plan := Run(dir, snap, pol, testOptions())

	assert.Empty(t, plan.Ops(), "ignored users are neither created nor deleted")
	found := false
	for _, n := range plan.Notices() {
		if strings.Contains(n, "eve") && strings.Contains(n, "not removing") {
			found = true
		}
	}
	assert.True(t, found, "ignored provisioned user must be reported")
}

func TestRun_VanishedUserDeleted(t *testing.T) {
	t.Parallel()

	dir := identity.NewDirectory(nil, nil, nil)
	snap, _ := snapshot.Build(
		[]snapshot.AssocRow{userRow("physics", "ghost", nil)},
		nil, nil,
	)
	pol := policy.NewStore()

	plan := Run(dir, snap, pol, testOptions())

	ops := plan.Ops()
	require.Len(t, ops, 1)
	assert.Equal(t, VerbDeleteUser, ops[0].Verb)
	assert.Equal(t, "ghost", ops[0].User)
}

func TestRun_CreateAndDeleteDisjoint(t *testing.T) {
	t.Parallel()

	dir := identity.NewDirectory(
		[]*identity.User{
			{Name: "alice", UID: 2001, GID: 501, HomeDir: "/home/alice", Shell: "/bin/bash"},
			{Name: "dave", UID: 2004, GID: 501, HomeDir: "/home/dave", Shell: "/sbin/nologin"},
		},
		[]*identity.Group{{Name: "physics", GID: 501}},
		nil,
	)
	snap, _ := snapshot.Build(
		[]snapshot.AssocRow{accountRow("physics"), userRow("physics", "dave", nil)},
		nil, nil,
	)
	pol := parsePolicy(t, "DEFAULT:fairshare:10\n", dir)

	plan := Run(dir, snap, pol, testOptions())

	created := map[string]bool{}
	deleted := map[string]bool{}
	for _, op := range plan.Ops() {
		switch op.Verb {
		case VerbCreateUser:
			created[op.User] = true
		case VerbDeleteUser, VerbDeleteAccount:
			deleted[op.User] = true
		}
	}
	assert.True(t, created["alice"])
	assert.True(t, deleted["dave"])
	for u := range created {
		assert.False(t, deleted[u], "user %s both created and deleted", u)
	}
}

func TestRun_DefaultAccountMismatch(t *testing.T) {
	t.Parallel()

	dir := identity.NewDirectory(
		[]*identity.User{{Name: "frank", UID: 2006, GID: 501, HomeDir: "/home/frank", Shell: "/bin/bash"}},
		[]*identity.Group{{Name: "physics", GID: 501}},
		nil,
	)
	snap, _ := snapshot.Build(
		[]snapshot.AssocRow{accountRow("physics"), accountRow("astro"), userRow("astro", "frank", nil)},
		[]snapshot.RosterRow{{User: "frank", DefaultAccount: "astro", Account: "astro"}},
		nil,
	)
	pol := policy.NewStore()

	plan := Run(dir, snap, pol, testOptions())

	ops := plan.Ops()
	require.Equal(t, []Verb{VerbAddAccount, VerbModifyUser}, opVerbs(ops),
		"join the primary account, then repoint the default")
	assert.Equal(t, "physics", ops[0].Account)
	assert.Equal(t, []Arg{{"defaultaccount", "physics"}}, ops[1].Args)
}

func TestRun_SecondaryGroupAdds(t *testing.T) {
	t.Parallel()

	dir := identity.NewDirectory(
		[]*identity.User{{Name: "alice", UID: 2001, GID: 501, HomeDir: "/home/alice", Shell: "/bin/bash"}},
		[]*identity.Group{
			{Name: "physics", GID: 501},
			{Name: "biology", GID: 502, Members: []string{"alice"}},
			{Name: "ghosts", GID: 503, Members: []string{"alice"}}, // unknown account
		},
		nil,
	)
	snap, _ := snapshot.Build(
		[]snapshot.AssocRow{accountRow("physics"), accountRow("biology"), userRow("physics", "alice", nil)},
		nil, nil,
	)
	pol := policy.NewStore()

	plan := Run(dir, snap, pol, testOptions())

	ops := plan.Ops()
	require.Len(t, ops, 1)
	assert.Equal(t, VerbAddAccount, ops[0].Verb)
	assert.Equal(t, "biology", ops[0].Account)
	assert.Equal(t, "add user alice account=biology", ops[0].Command())
}

func TestRun_DeletionWinsOverSecondaryAdd(t *testing.T) {
	t.Parallel()

	// dave is simultaneously orphaned (locked) and a secondary member of
	// biology: deletion takes precedence, no add is emitted.
	dir := identity.NewDirectory(
		[]*identity.User{{Name: "dave", UID: 2004, GID: 501, HomeDir: "/home/dave", Shell: "/bin/bash", Locked: true}},
		[]*identity.Group{
			{Name: "physics", GID: 501},
			{Name: "biology", GID: 502, Members: []string{"dave"}},
		},
		nil,
	)
	snap, _ := snapshot.Build(
		[]snapshot.AssocRow{accountRow("physics"), accountRow("biology"), userRow("physics", "dave", nil)},
		nil, nil,
	)
	pol := policy.NewStore()

	plan := Run(dir, snap, pol, testOptions())

	for _, op := range plan.Ops() {
		assert.NotEqual(t, VerbAddAccount, op.Verb)
	}
	assert.Equal(t, []Verb{VerbDeleteUser}, opVerbs(plan.Ops()))
}

func TestRun_CaseNormalizedValuesCompareEqual(t *testing.T) {
	t.Parallel()

	dir := identity.NewDirectory(
		[]*identity.User{{Name: "bob", UID: 2002, GID: 501, HomeDir: "/home/bob", Shell: "/bin/bash"}},
		[]*identity.Group{{Name: "physics", GID: 501}},
		nil,
	)
	// stored value arrives mixed-case from the accounting listing
	current := policy.Settings{}
	current.Set(policy.GrpTRES, "CPU=100,MEM=64G")
	current.Set(policy.QOS, "normal")
	snap, _ := snapshot.Build(
		[]snapshot.AssocRow{accountRow("physics"), userRow("physics", "bob", current)},
		nil, nil,
	)
	pol := parsePolicy(t, "DEFAULT:GrpTRES:cpu=100,mem=64g\nDEFAULT:QOS:NORMAL\n", dir)

	plan := Run(dir, snap, pol, testOptions())
	assert.Empty(t, plan.Ops(), "values differing only in case are already converged")
}

func TestRun_UnknownAccountSkipsUser(t *testing.T) {
	t.Parallel()

	dir := identity.NewDirectory(
		[]*identity.User{{Name: "alice", UID: 2001, GID: 501, HomeDir: "/home/alice", Shell: "/bin/bash"}},
		[]*identity.Group{{Name: "physics", GID: 501}},
		nil,
	)
	snap, _ := snapshot.Build(nil, nil, nil) // physics unknown
	pol := parsePolicy(t, "DEFAULT:fairshare:10\n", dir)

	plan := Run(dir, snap, pol, testOptions())

	assert.Empty(t, plan.Ops())
	require.NotEmpty(t, plan.Notices())
	assert.Contains(t, plan.Notices()[0], "not known to the accounting system")
}

func TestRun_EnforcementDisabledCreatesAnyway(t *testing.T) {
	t.Parallel()

	dir := identity.NewDirectory(
		[]*identity.User{{Name: "alice", UID: 2001, GID: 501, HomeDir: "/home/alice", Shell: "/bin/bash"}},
		[]*identity.Group{{Name: "physics", GID: 501}},
		nil,
	)
	snap, _ := snapshot.Build(nil, nil, nil)
	pol := parsePolicy(t, "DEFAULT:fairshare:10\n", dir)

	opts := testOptions()
	opts.EnforcePrimaryGroup = false
	plan := Run(dir, snap, pol, opts)

	ops := plan.Ops()
	require.Len(t, ops, 1)
	assert.Equal(t, VerbCreateUser, ops[0].Verb)
}

func TestRun_SubMinimumUIDIgnored(t *testing.T) {
	t.Parallel()

	dir := identity.NewDirectory(
		[]*identity.User{{Name: "daemon", UID: 2, GID: 501, HomeDir: "/", Shell: "/bin/bash"}},
		[]*identity.Group{{Name: "physics", GID: 501}},
		nil,
	)
	snap, _ := snapshot.Build([]snapshot.AssocRow{accountRow("physics")}, nil, nil)
	pol := parsePolicy(t, "DEFAULT:fairshare:10\n", dir)

	plan := Run(dir, snap, pol, testOptions())
	assert.Empty(t, plan.Ops())
}

func TestRun_ExcludedUserScopeNotStray(t *testing.T) {
	t.Parallel()

	// dave resolved an account but is locked; his override is inert this
	// run, not a stray scope.
	dir := identity.NewDirectory(
		[]*identity.User{{Name: "dave", UID: 2004, GID: 501, HomeDir: "/home/dave", Shell: "/bin/bash", Locked: true}},
		[]*identity.Group{{Name: "physics", GID: 501}},
		nil,
	)
	snap, _ := snapshot.Build([]snapshot.AssocRow{accountRow("physics")}, nil, nil)
	pol := parsePolicy(t, "dave:fairshare:5\n", dir)

	plan := Run(dir, snap, pol, testOptions())

	assert.Empty(t, plan.Ops())
	assert.Empty(t, plan.Notices())
}

func TestRun_StrayUserScopeReported(t *testing.T) {
	t.Parallel()

	dir := identity.NewDirectory(nil, nil, nil)
	snap, _ := snapshot.Build(nil, nil, nil)
	pol := parsePolicy(t, "nosuchuser:fairshare:5\n", dir)

	plan := Run(dir, snap, pol, testOptions())

	require.NotEmpty(t, plan.Notices())
	assert.Contains(t, plan.Notices()[0], "nosuchuser")
}
