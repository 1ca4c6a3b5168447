package reconcile

import (
	"sort"

	"github.com/clusterops/sacctsync/pkg/identity"
	"github.com/clusterops/sacctsync/pkg/policy"
	"github.com/clusterops/sacctsync/pkg/snapshot"
)

// Run computes the full mutation plan for one reconciliation pass. Inputs
// are immutable snapshots; Run never mutates them and a second Run over the
// same inputs produces the identical plan.
func Run(dir *identity.Directory, snap *snapshot.Snapshot, pol *policy.Store, opts Options) *Plan {
	plan := &Plan{}

	users := dir.Users()
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })

	resolved := make(map[string]resolution, len(users))
	for _, u := range users {
		res := resolveUser(u, dir, snap, pol, &opts)
		resolved[u.Name] = res

		switch res.outcome {
		case outcomeSkipped:
			plan.notice("skipping %s: %s", u.Name, res.reason)
			continue
		case outcomeIgnored, outcomeExcluded:
			// Handled by the orphan pass below; nothing to emit here.
			continue
		}

		reconcileUser(plan, res, snap, &opts)
	}

	orphanPass(plan, resolved, snap)
	strayUserScopes(plan, resolved, pol)

	return plan
}

// reconcileUser diffs one eligible user's desired state against the
// snapshot and emits the required operations.
func reconcileUser(plan *Plan, res resolution, snap *snapshot.Snapshot, opts *Options) {
	name := res.user.Name
	current, hasDefault := snap.DefaultAccount(name)

	if !hasDefault {
		// No prior account at all: a single create carries the account and
		// every resolved factor.
		plan.emit(Op{
			Verb:    VerbCreateUser,
			User:    name,
			Account: res.account,
			Args:    settingsArgs(res.desired),
		})
		emitSecondaryAdds(plan, res, snap)
		return
	}

	if opts.EnforcePrimaryGroup && current != res.account {
		// The recorded default no longer matches the primary group. Join
		// the account first, then repoint the default.
		if snap.AccountExists(res.account) && !snap.HasAssociation(name, res.account) {
			plan.emit(Op{Verb: VerbAddAccount, User: name, Account: res.account})
		}
		plan.emit(Op{
			Verb: VerbModifyUser,
			User: name,
			Args: []Arg{{Key: "defaultaccount", Value: res.account}},
		})
	}

	emitSecondaryAdds(plan, res, snap)

	diff := diffSettings(res.desired, effectiveCurrent(snap, name, res.account))
	if len(diff) > 0 {
		plan.emit(Op{Verb: VerbModifyUser, User: name, Args: diff})
	}
}

// effectiveCurrent overlays the user's own provisioned values on the
// account-level baseline: factors a user association leaves unset inherit
// the account's value in the accounting system, so diffing against the
// overlay avoids modifies that would be no-ops.
func effectiveCurrent(snap *snapshot.Snapshot, user, account string) policy.Settings {
	base := snap.Current(account)
	own := snap.Current(user)
	if base == nil {
		return own
	}
	out := base.Clone()
	for f, v := range own {
		out[f] = v
	}
	return out
}

// emitSecondaryAdds joins the user to every account implied by secondary
// group membership that is known, not the primary account, and not already
// held.
func emitSecondaryAdds(plan *Plan, res resolution, snap *snapshot.Snapshot) {
	for _, account := range sortedAccounts(res) {
		if account == res.account {
			continue
		}
		if snap.HasAssociation(res.user.Name, account) {
			continue
		}
		if !snap.AccountExists(account) {
			continue
		}
		plan.emit(Op{Verb: VerbAddAccount, User: res.user.Name, Account: account})
	}
}

func sortedAccounts(res resolution) []string {
	accounts := res.secondary
	sort.Strings(accounts)
	return accounts
}

// diffSettings returns the factor=value args for every desired factor whose
// current value differs (including no current value at all). Factors absent
// from desired are never touched.
func diffSettings(desired, current policy.Settings) []Arg {
	var out []Arg
	for _, f := range policy.Factors() {
		want, ok := desired[f]
		if !ok {
			continue
		}
		if got, ok := current[f]; !ok || got != want {
			out = append(out, Arg{Key: string(f), Value: want})
		}
	}
	return out
}

// orphanPass walks every provisioned user and removes those that failed an
// eligibility check this run: all non-default accounts are dropped first,
// then the user itself. Ignored users (private group, sub-minimum UID,
// NOACCOUNT group) are reported but never deleted; users skipped on data
// errors are left untouched.
func orphanPass(plan *Plan, resolved map[string]resolution, snap *snapshot.Snapshot) {
	for _, name := range snap.ProvisionedUsers() {
		res, known := resolved[name]
		switch {
		case !known:
			plan.notice("removing %s: no longer in the identity source", name)
		case res.outcome == outcomeEligible, res.outcome == outcomeSkipped:
			continue
		case res.outcome == outcomeIgnored:
			plan.notice("user %s is provisioned but ignored (%s), not removing", name, res.reason)
			continue
		default: // outcomeExcluded
			plan.notice("removing %s: %s", name, res.reason)
		}

		for _, account := range snap.NonDefaultAccounts(name) {
			plan.emit(Op{Verb: VerbDeleteAccount, User: name, Account: account})
		}
		plan.emit(Op{Verb: VerbDeleteUser, User: name})
	}
}

// strayUserScopes warns about user-scope policy layers naming users that
// never resolved to an account this run, most likely typos or departures.
// Users that resolved an account but failed a later eligibility check are
// not strays; their override simply has no effect this run.
func strayUserScopes(plan *Plan, resolved map[string]resolution, pol *policy.Store) {
	scopes := pol.UserScopes()
	sort.Strings(scopes)
	for _, name := range scopes {
		if res, ok := resolved[name]; ok && res.account != "" {
			continue
		}
		plan.notice("policy scope %s matches no group and no resolvable user", name)
	}
}
