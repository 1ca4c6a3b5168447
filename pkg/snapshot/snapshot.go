// Package snapshot builds the normalized view of what the accounting system
// currently holds: which accounts exist, which (account, user) associations
// exist with which setting values, each user's default account, and which
// users are still inside the new-user grace window.
//
// The snapshot is assembled once from pre-parsed listing rows before
// resolution starts and is read-only afterwards.
package snapshot

import (
	"fmt"
	"sort"
	"time"

	"github.com/clusterops/sacctsync/pkg/policy"
)

// rootName is unconditionally excluded from processing, both as an account
// and as a user.
const rootName = "root"

// Snapshot is the immutable current-state view for one run.
type Snapshot struct {
	accounts    map[string]bool
	current     map[string]policy.Settings
	defaultAcct map[string]string
	assocs      map[string]map[string]bool
	newUsers    map[string]time.Time
}

// Build assembles a snapshot from parsed association, roster and
// transaction rows. Returned notices describe self-healed bookkeeping
// (an association without a recorded default account adopts the
// association's account); they are advisory, not errors.
func Build(assocRows []AssocRow, rosterRows []RosterRow, txRows []TransactionRow) (*Snapshot, []string) {
	s := &Snapshot{
		accounts:    map[string]bool{},
		current:     map[string]policy.Settings{},
		defaultAcct: map[string]string{},
		assocs:      map[string]map[string]bool{},
		newUsers:    map[string]time.Time{},
	}
	var notices []string

	// Roster first: it carries the authoritative default-account
	// bookkeeping that association rows self-heal against.
	for _, r := range rosterRows {
		if r.User == rootName || r.Account == rootName {
			continue
		}
		if r.DefaultAccount != "" {
			s.defaultAcct[r.User] = r.DefaultAccount
		}
		if r.Account != "" {
			s.addAssoc(r.User, r.Account)
		}
	}

	for _, a := range assocRows {
		if a.Account == rootName || a.User == rootName {
			continue
		}
		s.accounts[a.Account] = true
		if a.User == "" {
			// Account-only row: group-level defaults, stored under the
			// account's own key as the group-override baseline.
			s.current[a.Account] = a.Settings.Clone()
			continue
		}
		s.current[a.User] = a.Settings.Clone()
		s.addAssoc(a.User, a.Account)
		if _, ok := s.defaultAcct[a.User]; !ok {
			s.defaultAcct[a.User] = a.Account
			notices = append(notices, fmt.Sprintf("user %s has no recorded default account, adopting %s", a.User, a.Account))
		}
	}

	for _, t := range txRows {
		if t.User == rootName {
			continue
		}
		s.newUsers[t.User] = t.Timestamp
	}

	return s, notices
}

func (s *Snapshot) addAssoc(user, account string) {
	m := s.assocs[user]
	if m == nil {
		m = map[string]bool{}
		s.assocs[user] = m
	}
	m[account] = true
}

// AccountExists reports whether the accounting system knows the account.
func (s *Snapshot) AccountExists(account string) bool {
	return s.accounts[account]
}

// Current returns the currently provisioned settings for a user (or, for
// account-only rows, the account itself). Nil when nothing is provisioned.
func (s *Snapshot) Current(name string) policy.Settings {
	return s.current[name]
}

// DefaultAccount returns the user's recorded default account.
func (s *Snapshot) DefaultAccount(user string) (string, bool) {
	a, ok := s.defaultAcct[user]
	return a, ok
}

// HasAssociation reports whether the user already holds an association
// with the account.
func (s *Snapshot) HasAssociation(user, account string) bool {
	return s.assocs[user][account]
}

// NonDefaultAccounts returns the accounts a user holds besides their
// default, sorted for deterministic emission order.
func (s *Snapshot) NonDefaultAccounts(user string) []string {
	def := s.defaultAcct[user]
	var out []string
	for a := range s.assocs[user] {
		if a != def {
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}

// ProvisionedUsers returns every user with a recorded default account,
// sorted. This is the roster the orphan-cleanup pass walks.
func (s *Snapshot) ProvisionedUsers() []string {
	out := make([]string, 0, len(s.defaultAcct))
	for u := range s.defaultAcct {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// IsNew reports whether the user was created within the grace window
// ending at now. Users absent from the transaction roster are not new.
func (s *Snapshot) IsNew(user string, now time.Time, grace time.Duration) bool {
	created, ok := s.newUsers[user]
	if !ok {
		return false
	}
	return now.Sub(created) <= grace
}
