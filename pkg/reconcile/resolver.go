package reconcile

import (
	"errors"
	"os"
	"time"

	"github.com/clusterops/sacctsync/pkg/identity"
	"github.com/clusterops/sacctsync/pkg/policy"
	"github.com/clusterops/sacctsync/pkg/snapshot"
)

// Options are the policy knobs governing eligibility and resolution.
type Options struct {
	// Now anchors the new-user grace window. Zero means time.Now().
	Now time.Time

	// MinUID excludes system users below the threshold. Such users are
	// ignored: reported if provisioned, never deleted.
	MinUID int

	// GraceWindow is how long after creation a user stays "new".
	GraceWindow time.Duration

	// SkipLocked excludes users whose password is locked.
	SkipLocked bool

	// RequireHome excludes users whose home directory does not exist.
	RequireHome bool

	// EnforcePrimaryGroup requires the account implied by the primary
	// group to exist in the accounting system, and reconciles the default
	// account against it.
	EnforcePrimaryGroup bool

	// NologinShells lists shells that mark a user as non-interactive.
	NologinShells []string

	// HomeDirExists overrides home directory probing, for tests.
	// Defaults to an os.Stat check.
	HomeDirExists func(path string) bool
}

func (o *Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

func (o *Options) homeExists(path string) bool {
	if o.HomeDirExists != nil {
		return o.HomeDirExists(path)
	}
	_, err := os.Stat(path)
	return err == nil
}

func (o *Options) nologinShell(shell string) bool {
	for _, s := range o.NologinShells {
		if shell == s {
			return true
		}
	}
	return false
}

// outcome classifies what happened to a user during resolution. The orphan
// pass keys off it: only outcomeExcluded users are removal candidates,
// outcomeIgnored users are reported and left alone, and outcomeSkipped
// users (data errors) are untouched.
type outcome int

const (
	outcomeEligible outcome = iota
	outcomeIgnored          // private group, sub-minimum UID, NOACCOUNT
	outcomeExcluded         // locked, nologin shell, missing home dir
	outcomeSkipped          // data inconsistency, unresolvable account
)

// resolution is the per-user result of the resolver phase. account is the
// alias-resolved accounting account; group is the UNIX group name, which is
// what the policy group layer is keyed by.
type resolution struct {
	user      *identity.User
	outcome   outcome
	reason    string
	account   string
	group     string
	isNew     bool
	desired   policy.Settings
	secondary []string
}

// resolveUser runs the eligibility checks and, for eligible users, cascades
// the desired settings map. All anomalies land in the resolution as a
// reason string; nothing here aborts the run.
func resolveUser(u *identity.User, dir *identity.Directory, snap *snapshot.Snapshot, pol *policy.Store, opts *Options) resolution {
	res := resolution{user: u}

	if u.UID < opts.MinUID {
		res.outcome = outcomeIgnored
		res.reason = "uid below minimum"
		return res
	}

	account, err := dir.ResolvePrimaryAccount(u)
	switch {
	case errors.Is(err, identity.ErrPrivateGroup):
		res.outcome = outcomeIgnored
		res.reason = "private per-user group"
		return res
	case errors.Is(err, identity.ErrNoAccount):
		res.outcome = outcomeIgnored
		res.reason = "primary group excluded from accounting"
		return res
	case err != nil:
		res.outcome = outcomeSkipped
		res.reason = err.Error()
		return res
	}
	res.account = account
	res.group = dir.PrimaryGroup(u).Name

	if opts.SkipLocked && u.Locked {
		res.outcome = outcomeExcluded
		res.reason = "password locked"
		return res
	}
	if opts.nologinShell(u.Shell) {
		res.outcome = outcomeExcluded
		res.reason = "non-login shell"
		return res
	}
	if opts.RequireHome && !opts.homeExists(u.HomeDir) {
		res.outcome = outcomeExcluded
		res.reason = "missing home directory"
		return res
	}
	if opts.EnforcePrimaryGroup && !snap.AccountExists(account) {
		res.outcome = outcomeSkipped
		res.reason = "account " + account + " not known to the accounting system"
		return res
	}

	res.isNew = snap.IsNew(u.Name, opts.now(), opts.GraceWindow)
	// The group layer is keyed by the group name, not the alias target; for
	// unaliased groups the two coincide.
	res.desired = pol.Resolve(u.Name, res.group, res.isNew)
	res.secondary = dir.SecondaryAccounts(u)
	return res
}
