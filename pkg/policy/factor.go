// Package policy implements the layered settings configuration consumed by
// the reconciler: the fixed set of tunable accounting factors, per-factor
// value normalization, and the scope-layered store (DEFAULT, NEWUSER,
// per-group, per-user) with cascade lookup.
package policy

import "strings"

// Factor identifies one tunable accounting limit or fairness parameter.
//
// The set is fixed and mirrors the column order of association listings
// produced by the accounting tool, so Factors() doubles as the column
// schema for snapshot parsing.
type Factor string

const (
	Fairshare      Factor = "fairshare"
	GrpTRES        Factor = "GrpTRES"
	GrpTRESMins    Factor = "GrpTRESMins"
	GrpTRESRunMins Factor = "GrpTRESRunMins"
	GrpJobs        Factor = "GrpJobs"
	GrpJobsAccrue  Factor = "GrpJobsAccrue"
	GrpSubmit      Factor = "GrpSubmit"
	GrpWall        Factor = "GrpWall"
	MaxTRES        Factor = "MaxTRES"
	MaxTRESPerNode Factor = "MaxTRESPerNode"
	MaxTRESMins    Factor = "MaxTRESMins"
	MaxJobs        Factor = "MaxJobs"
	MaxJobsAccrue  Factor = "MaxJobsAccrue"
	MaxSubmitJobs  Factor = "MaxSubmitJobs"
	MaxWall        Factor = "MaxWall"
	QOS            Factor = "QOS"
	DefaultQOS     Factor = "DefaultQOS"
)

// factors is the canonical ordering. Association rows carry values in this
// exact column order.
var factors = []Factor{
	Fairshare,
	GrpTRES,
	GrpTRESMins,
	GrpTRESRunMins,
	GrpJobs,
	GrpJobsAccrue,
	GrpSubmit,
	GrpWall,
	MaxTRES,
	MaxTRESPerNode,
	MaxTRESMins,
	MaxJobs,
	MaxJobsAccrue,
	MaxSubmitJobs,
	MaxWall,
	QOS,
	DefaultQOS,
}

// tresFactors carry TRES-shaped values (resource=count lists) whose resource
// keys are case-normalized to lowercase by the accounting system.
var tresFactors = map[Factor]bool{
	GrpTRES:        true,
	GrpTRESMins:    true,
	GrpTRESRunMins: true,
	MaxTRES:        true,
	MaxTRESPerNode: true,
	MaxTRESMins:    true,
}

var factorsByName = func() map[string]Factor {
	m := make(map[string]Factor, len(factors))
	for _, f := range factors {
		m[strings.ToLower(string(f))] = f
	}
	return m
}()

// Factors returns all known factors in canonical column order.
// The returned slice must not be modified.
func Factors() []Factor {
	return factors
}

// ParseFactor resolves a factor by name, case-insensitively.
func ParseFactor(name string) (Factor, bool) {
	f, ok := factorsByName[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// Normalize canonicalizes a raw value for the given factor so that values
// compare equal regardless of the case the accounting system or the policy
// file used: TRES-shaped values are lowercased, QOS values uppercased,
// everything else is kept verbatim apart from surrounding whitespace.
func Normalize(f Factor, value string) string {
	value = strings.TrimSpace(value)
	switch {
	case tresFactors[f]:
		return strings.ToLower(value)
	case f == QOS || f == DefaultQOS:
		return strings.ToUpper(value)
	default:
		return value
	}
}
