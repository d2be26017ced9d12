package matcher

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

// candidate pairs a pattern with its pending obligation, the unit priority
// scoring operates on (spec.md §4.5 "Pattern priority on ambiguity").
type candidate struct {
	Pattern    models.Pattern
	Obligation models.Obligation
}

// score computes the composite tie-break score: lower is a tighter match.
// `|T.date − O.expected_date| / tolerance + max(0, distance(T.amount,
// [O.min, O.max])) / O.max`.
func (c candidate) score(txDate dateOnly, amount decimal.Decimal) float64 {
	dateDiff := float64(absDays(txDate, dateOnly(c.Obligation.ExpectedDate)))
	tolerance := float64(c.Obligation.ToleranceDays)
	if tolerance == 0 {
		tolerance = 1
	}
	dateTerm := dateDiff / tolerance

	amountDistance := 0.0
	if amount.LessThan(c.Obligation.ExpectedMinAmount) {
		d := c.Obligation.ExpectedMinAmount.Sub(amount)
		amountDistance, _ = d.Float64()
	} else if amount.GreaterThan(c.Obligation.ExpectedMaxAmount) {
		d := amount.Sub(c.Obligation.ExpectedMaxAmount)
		amountDistance, _ = d.Float64()
	}
	maxAmount, _ := c.Obligation.ExpectedMaxAmount.Float64()
	amountTerm := 0.0
	if maxAmount > 0 {
		amountTerm = amountDistance / maxAmount
	}

	return dateTerm + amountTerm
}

// sortByPriority orders candidates from tightest to loosest match against
// (txDate, amount), with a stable tie-break on lowest pattern id (spec.md
// §4.5 "Pattern priority on ambiguity"). The caller processes candidates in
// this order, stopping at the first that actually resolves to a match
// after its own miss sweep.
func sortByPriority(candidates []candidate, txDate dateOnly, amount decimal.Decimal) {
	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := candidates[i].score(txDate, amount), candidates[j].score(txDate, amount)
		if si != sj {
			return si < sj
		}
		return candidates[i].Pattern.ID.String() < candidates[j].Pattern.ID.String()
	})
}
