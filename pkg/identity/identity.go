// Package identity provides the normalized, immutable view of the host
// identity database consumed by a reconciliation run: users, groups,
// secondary-group membership, and group-to-account aliasing.
//
// Everything here is built once at the start of a run and only read
// afterwards; there is no mutation after construction.
package identity

import (
	"errors"
	"fmt"
	"strings"
)

// NoAccount is the reserved alias target meaning "users whose primary group
// carries this alias are excluded from accounting entirely".
const NoAccount = "NOACCOUNT"

var (
	// ErrPrivateGroup marks a user excluded because their primary group is
	// a private per-user group (group name equals the user name).
	ErrPrivateGroup = errors.New("private per-user group")

	// ErrNoAccount marks a user excluded because their primary group is
	// aliased to NOACCOUNT.
	ErrNoAccount = errors.New("group aliased to NOACCOUNT")
)

// User is one identity row. Immutable for the duration of a run.
type User struct {
	Name     string
	UID      int
	GID      int
	FullName string
	HomeDir  string
	Shell    string

	// Locked reports the password-lock state from the identity source
	// (a password field prefixed with '!' or consisting of '*').
	Locked bool
}

// Group is one group row with its secondary members. Immutable per run.
type Group struct {
	Name    string
	GID     int
	Members []string
}

// Directory is the precomputed lookup view over users, groups and aliases.
type Directory struct {
	users       map[string]*User
	groups      map[string]*Group
	groupsByGID map[int]*Group
	aliases     map[string]string
}

// NewDirectory builds the lookup maps. Aliases map group names to account
// names (possibly NoAccount); pass nil when no alias configuration exists.
func NewDirectory(users []*User, groups []*Group, aliases map[string]string) *Directory {
	d := &Directory{
		users:       make(map[string]*User, len(users)),
		groups:      make(map[string]*Group, len(groups)),
		groupsByGID: make(map[int]*Group, len(groups)),
		aliases:     aliases,
	}
	if d.aliases == nil {
		d.aliases = map[string]string{}
	}
	for _, u := range users {
		d.users[u.Name] = u
	}
	for _, g := range groups {
		d.groups[g.Name] = g
		d.groupsByGID[g.GID] = g
	}
	return d
}

// User returns the user by name, or nil.
func (d *Directory) User(name string) *User { return d.users[name] }

// Users returns all users, in no particular order.
func (d *Directory) Users() []*User {
	out := make([]*User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	return out
}

// HasGroup reports whether a group with the given name exists.
func (d *Directory) HasGroup(name string) bool {
	_, ok := d.groups[name]
	return ok
}

// PrimaryGroup returns the group matching the user's GID, or nil when the
// GID is unknown.
func (d *Directory) PrimaryGroup(u *User) *Group {
	return d.groupsByGID[u.GID]
}

// ResolvePrimaryAccount maps a user to the accounting account implied by
// their primary group:
//
//  1. a private per-user group excludes the user (ErrPrivateGroup);
//  2. an unaliased group names the account directly;
//  3. an alias to NoAccount excludes the user (ErrNoAccount);
//  4. any other alias target is the account name.
//
// A primary group with an unknown or empty name is a data error; the caller
// skips the user and reports it.
func (d *Directory) ResolvePrimaryAccount(u *User) (string, error) {
	g := d.PrimaryGroup(u)
	if g == nil || g.Name == "" {
		return "", fmt.Errorf("user %s: unknown primary group (gid %d)", u.Name, u.GID)
	}
	if g.Name == u.Name {
		return "", fmt.Errorf("user %s: %w", u.Name, ErrPrivateGroup)
	}
	target, aliased := d.aliases[g.Name]
	if !aliased {
		return g.Name, nil
	}
	if target == NoAccount {
		return "", fmt.Errorf("user %s: %w", u.Name, ErrNoAccount)
	}
	return target, nil
}

// SecondaryAccounts returns the accounts implied by the user's secondary
// group memberships, alias-resolved, NoAccount targets dropped. The user's
// primary group is not included even when listed as a member.
func (d *Directory) SecondaryAccounts(u *User) []string {
	var out []string
	seen := map[string]bool{}
	for _, g := range d.groups {
		if g.GID == u.GID {
			continue
		}
		member := false
		for _, m := range g.Members {
			if m == u.Name {
				member = true
				break
			}
		}
		if !member {
			continue
		}
		account := g.Name
		if target, ok := d.aliases[g.Name]; ok {
			if target == NoAccount {
				continue
			}
			account = target
		}
		if !seen[account] {
			seen[account] = true
			out = append(out, account)
		}
	}
	return out
}

// lockedPassword reports a disabled password field: '!'-prefixed hashes and
// the '*' placeholder both mean the account cannot authenticate.
func lockedPassword(field string) bool {
	return strings.HasPrefix(field, "!") || field == "*"
}
