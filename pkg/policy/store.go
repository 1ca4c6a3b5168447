package policy

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Scope names reserved in the layered policy file. Any other scope names a
// group (when it matches a known group) or a user.
const (
	ScopeDefault = "DEFAULT"
	ScopeNewUser = "NEWUSER"
)

// Entry is one parsed policy line. Partition and Cluster qualifiers are
// carried through but do not participate in cascade resolution.
type Entry struct {
	Scope     string
	Factor    Factor
	Value     string
	Partition string
	Cluster   string
}

// Issue describes a non-fatal problem found while parsing the policy file.
// Issues never abort parsing; the offending line is skipped.
type Issue struct {
	Line int
	Msg  string
}

func (i Issue) String() string {
	return fmt.Sprintf("policy line %d: %s", i.Line, i.Msg)
}

// Store holds the four policy layers keyed by scope. All values are
// normalized at load time.
type Store struct {
	defaults Settings
	newUser  Settings
	groups   map[string]Settings
	users    map[string]Settings
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		defaults: Settings{},
		newUser:  Settings{},
		groups:   map[string]Settings{},
		users:    map[string]Settings{},
	}
}

// Parse reads layered policy rows of the form
//
//	scope:factor:value[:partition[:cluster]]
//
// Lines containing '#' are comments; lines with fewer than three fields are
// ignored. A scope matching a known group (per isGroup) lands in that
// group's layer; any other non-reserved scope is assumed to name a user.
// Malformed lines and unknown factors are reported as Issues and skipped.
func Parse(r io.Reader, isGroup func(string) bool) (*Store, []Issue, error) {
	st := NewStore()
	var issues []Issue

	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.Contains(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 3 {
			continue
		}

		scope := strings.TrimSpace(fields[0])
		factor, ok := ParseFactor(fields[1])
		if !ok {
			issues = append(issues, Issue{lineno, fmt.Sprintf("unknown factor %q", strings.TrimSpace(fields[1]))})
			continue
		}
		e := Entry{Scope: scope, Factor: factor, Value: fields[2]}
		if len(fields) > 3 {
			e.Partition = strings.TrimSpace(fields[3])
		}
		if len(fields) > 4 {
			e.Cluster = strings.TrimSpace(fields[4])
		}
		st.add(e, isGroup)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read policy input: %w", err)
	}
	return st, issues, nil
}

func (s *Store) add(e Entry, isGroup func(string) bool) {
	switch {
	case e.Scope == ScopeDefault:
		s.defaults.Set(e.Factor, e.Value)
	case e.Scope == ScopeNewUser:
		s.newUser.Set(e.Factor, e.Value)
	case isGroup != nil && isGroup(e.Scope):
		layer := s.groups[e.Scope]
		if layer == nil {
			layer = Settings{}
			s.groups[e.Scope] = layer
		}
		layer.Set(e.Factor, e.Value)
	default:
		// Not a reserved scope and not a known group: assumed to name a
		// user. Whether that user actually resolves to an account is only
		// known to the reconciler, which reports strays after resolution.
		layer := s.users[e.Scope]
		if layer == nil {
			layer = Settings{}
			s.users[e.Scope] = layer
		}
		layer.Set(e.Factor, e.Value)
	}
}

// UserScopes returns the names of all user-scope layers, for stray
// detection after resolution.
func (s *Store) UserScopes() []string {
	out := make([]string, 0, len(s.users))
	for name := range s.users {
		out = append(out, name)
	}
	return out
}

// HasGroupLayer reports whether a group override layer exists for name.
func (s *Store) HasGroupLayer(name string) bool {
	_, ok := s.groups[name]
	return ok
}

// Value resolves a single factor for a user through the cascade:
//
//  1. the user's own override layer, new or not;
//  2. for established users, the layer for the user's primary group name
//     (not its alias target), then DEFAULT;
//  3. for new users, NEWUSER then DEFAULT — the group layer is skipped
//     entirely so fresh accounts start from the central baseline instead
//     of a group's limits.
//
// The first layer holding a value wins; layers are never merged within one
// factor.
func (s *Store) Value(user, group string, newUser bool, f Factor) (string, bool) {
	if v, ok := s.users[user][f]; ok {
		return v, true
	}
	if newUser {
		if v, ok := s.newUser[f]; ok {
			return v, true
		}
	} else {
		if v, ok := s.groups[group][f]; ok {
			return v, true
		}
	}
	v, ok := s.defaults[f]
	return v, ok
}

// Resolve computes the full desired settings map for a user by cascading
// every factor independently through Value. Factors with no value at any
// layer are left out of the result.
func (s *Store) Resolve(user, group string, newUser bool) Settings {
	out := Settings{}
	for _, f := range factors {
		if v, ok := s.Value(user, group, newUser, f); ok {
			out[f] = v
		}
	}
	return out
}
