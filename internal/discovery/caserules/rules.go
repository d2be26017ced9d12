// Package caserules classifies a stable candidate interval into a pattern
// case (spec.md §4.3 step 4) using an ordered, inspectable table of rules —
// deterministic and explainable, with no learned model in the decision path
// (spec.md §9 explicitly forbids one).
//
// This generalizes the teacher's internal/rules package (Rule{Condition,
// Action}, an ordered list dispatched by a BasicRuleEngine) from
// payment-failure business rules to interval-band classification: each
// IntervalRule is a Condition over a candidate interval in days and an
// Action that names the resulting Family.
package caserules

import "github.com/balajiparimelazhagan/fincoach-api/internal/models"

// Family is the case family an interval falls into before amount behaviour
// (step 7) resolves which of the three monthly sub-cases applies.
type Family string

const (
	FamilyMonthly   Family = "monthly"
	FamilyBiMonthly Family = "bi_monthly"
	FamilyQuarterly Family = "quarterly"
	FamilyCustom    Family = "custom_interval"
)

// IntervalRule is one entry in the classification table. Rules are
// evaluated in order; the first match wins. Ordering the tighter bands
// first (monthly before bi-monthly before quarterly) is what implements
// spec.md's "prefer the tighter of the two" tie-break for intervals that
// fall near a band boundary.
type IntervalRule struct {
	Name   string
	Match  func(days int) bool
	Family Family
}

// DefaultRules is the classification table spec.md §4.3 step 4 describes.
var DefaultRules = []IntervalRule{
	{
		Name:   "monthly_family",
		Match:  func(days int) bool { return days >= 27 && days <= 33 },
		Family: FamilyMonthly,
	},
	{
		Name:   "bi_monthly",
		Match:  func(days int) bool { return days >= 55 && days <= 65 },
		Family: FamilyBiMonthly,
	},
	{
		Name:   "quarterly",
		Match:  func(days int) bool { return days >= 85 && days <= 95 },
		Family: FamilyQuarterly,
	},
	{
		Name:   "custom_interval",
		Match:  func(days int) bool { return days >= 10 && days <= 400 },
		Family: FamilyCustom,
	},
}

// Classify returns the Family for a candidate interval, and false if no
// rule matches (the cluster must then be rejected — spec.md doesn't define
// a case for intervals outside [10, 400] days).
func Classify(intervalDays int) (Family, bool) {
	for _, rule := range DefaultRules {
		if rule.Match(intervalDays) {
			return rule.Family, true
		}
	}
	return "", false
}

// ResolveMonthlyCase maps the monthly family plus the amount behaviour
// determined in step 7 onto the final PatternCase (spec.md §4.3 step 4:
// "fixed_monthly | variable_monthly | flexible_monthly pending step 7").
func ResolveMonthlyCase(behaviour models.AmountBehaviour) models.PatternCase {
	switch behaviour {
	case models.AmountFixed:
		return models.CaseFixedMonthly
	case models.AmountVariable:
		return models.CaseVariableMonthly
	default:
		return models.CaseFlexibleMonthly
	}
}

// CaseForFamily maps a non-monthly family directly onto its PatternCase.
// Monthly is handled separately via ResolveMonthlyCase since it depends on
// amount behaviour.
func CaseForFamily(f Family) models.PatternCase {
	switch f {
	case FamilyBiMonthly:
		return models.CaseBiMonthly
	case FamilyQuarterly:
		return models.CaseQuarterly
	default:
		return models.CaseCustomInterval
	}
}
