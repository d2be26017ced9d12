// Package obligation holds the pure, side-effect-free rules for computing
// one obligation from a pattern and its preceding state (spec.md §4.5
// "Rolling the next obligation"). Both C4 (seeding O₀ at discovery) and C5
// (rolling O′ at match/miss time) depend on this package; it depends on
// neither, so there is no import cycle between persistence and matcher.
package obligation

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

// ToleranceDays implements spec.md §4.5's per-case tolerance table.
func ToleranceDays(c models.PatternCase, intervalDays int) int {
	switch c {
	case models.CaseFixedMonthly, models.CaseVariableMonthly, models.CaseFlexibleMonthly:
		return 3
	case models.CaseBiMonthly:
		return 5
	case models.CaseQuarterly:
		return 7
	case models.CaseCustomInterval:
		t := int(math.Round(0.15 * float64(intervalDays)))
		if t < 2 {
			return 2
		}
		return t
	default:
		return 3
	}
}

// AmountRange re-estimates expected_min_amount/expected_max_amount from the
// last up-to-three inlier transactions (spec.md §4.5 "Rolling the next
// obligation"), following the amount behaviour's re-estimation rule.
func AmountRange(behaviour models.AmountBehaviour, representative decimal.Decimal, window []decimal.Decimal) (min, max decimal.Decimal) {
	if len(window) == 0 {
		return representative, representative
	}

	windowMin, windowMax := window[0], window[0]
	sum := decimal.Zero
	for _, a := range window {
		if a.LessThan(windowMin) {
			windowMin = a
		}
		if a.GreaterThan(windowMax) {
			windowMax = a
		}
		sum = sum.Add(a)
	}

	switch behaviour {
	case models.AmountFixed:
		return representative, representative
	case models.AmountVariable:
		mean := sum.Div(decimal.NewFromInt(int64(len(window))))
		variance := decimal.Zero
		for _, a := range window {
			d := a.Sub(mean)
			variance = variance.Add(d.Mul(d))
		}
		variance = variance.Div(decimal.NewFromInt(int64(len(window))))
		stddev := decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))

		lo := mean.Sub(stddev)
		hi := mean.Add(stddev)

		floorLo := windowMin.Mul(decimal.NewFromFloat(0.95))
		floorHi := windowMax.Mul(decimal.NewFromFloat(1.05))
		if lo.GreaterThan(floorLo) {
			lo = floorLo
		}
		if hi.LessThan(floorHi) {
			hi = floorHi
		}
		return lo, hi
	default: // highly_variable
		return windowMin, windowMax
	}
}
