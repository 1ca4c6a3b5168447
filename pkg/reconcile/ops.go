// Package reconcile computes the mutation plan that brings the accounting
// system in line with policy: per-user desired-settings resolution, the
// diff state machine deciding create/modify/add/delete operations, and the
// rendering of those decisions as accounting-tool command lines.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/clusterops/sacctsync/pkg/policy"
)

// Verb is the kind of mutation an Op describes.
type Verb string

const (
	VerbCreateUser    Verb = "create-user"
	VerbModifyUser    Verb = "modify-user"
	VerbAddAccount    Verb = "add-account"
	VerbDeleteAccount Verb = "delete-account"
	VerbDeleteUser    Verb = "delete-user"
)

// Arg is one ordered key=value pair carried by an operation. Keys are
// factor names or the reserved "defaultaccount".
type Arg struct {
	Key   string
	Value string
}

// Op is one idempotent mutation decision. Ops are pure descriptions; the
// caller is responsible for feeding them to the external tool.
type Op struct {
	Verb    Verb
	User    string
	Account string
	Args    []Arg
}

// Command renders the op as the external accounting tool invocation it
// translates to, without the tool name itself.
func (o Op) Command() string {
	var b strings.Builder
	switch o.Verb {
	case VerbCreateUser:
		fmt.Fprintf(&b, "create user name=%s account=%s", o.User, o.Account)
		for _, a := range o.Args {
			fmt.Fprintf(&b, " %s=%s", a.Key, a.Value)
		}
	case VerbModifyUser:
		fmt.Fprintf(&b, "modify user where name=%s set", o.User)
		for _, a := range o.Args {
			fmt.Fprintf(&b, " %s=%s", a.Key, a.Value)
		}
	case VerbAddAccount:
		fmt.Fprintf(&b, "add user %s account=%s", o.User, o.Account)
	case VerbDeleteAccount:
		fmt.Fprintf(&b, "delete user %s account=%s", o.User, o.Account)
	case VerbDeleteUser:
		fmt.Fprintf(&b, "delete user %s", o.User)
	}
	return b.String()
}

// settingsArgs flattens a settings map into ordered factor=value args,
// following the canonical factor order.
func settingsArgs(s policy.Settings) []Arg {
	var out []Arg
	for _, f := range policy.Factors() {
		if v, ok := s[f]; ok {
			out = append(out, Arg{Key: string(f), Value: v})
		}
	}
	return out
}

// Event is one entry in the emission stream: either a mutation operation
// or an advisory notice, in the order it was produced.
type Event struct {
	Op     *Op    // nil for notices
	Notice string // empty for operations
}

// Plan is the ordered outcome of a reconciliation run: mutation operations
// interleaved with the advisory notices produced while computing them.
// A run over already-converged inputs yields no operations.
type Plan struct {
	events []Event
}

// Events returns the full emission stream in order.
func (p *Plan) Events() []Event {
	return p.events
}

// Ops returns the operations only, in emission order.
func (p *Plan) Ops() []Op {
	var out []Op
	for _, e := range p.events {
		if e.Op != nil {
			out = append(out, *e.Op)
		}
	}
	return out
}

// Notices returns the advisory notices only, in emission order.
func (p *Plan) Notices() []string {
	var out []string
	for _, e := range p.events {
		if e.Op == nil {
			out = append(out, e.Notice)
		}
	}
	return out
}

func (p *Plan) emit(op Op) {
	p.events = append(p.events, Event{Op: &op})
}

func (p *Plan) notice(format string, args ...any) {
	p.events = append(p.events, Event{Notice: fmt.Sprintf(format, args...)})
}
