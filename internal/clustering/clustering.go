// Package clustering implements C2 of the pattern engine: splitting a
// candidate group into independent recurring series when a single payee
// carries multiple schedules (spec.md §4.2).
//
// The day-of-month histogram/regularity scoring here is grounded on the
// teacher's trend_analyzer.go, which already buckets payment-failure events
// by day-of-month (groupByDayOfMonth) and scores the spread of each bucket
// (calculateSeasonalConfidence) — the same shape of computation, applied to
// clustering transactions instead of scoring failure seasonality.
package clustering

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

// Tolerance controls the amount-clustering band width (spec.md §4.2 step 2):
// a transaction joins a cluster if it is within RelativePct of the running
// centroid, or within AbsoluteAmount, whichever allows the wider band.
type Tolerance struct {
	RelativePct    float64
	AbsoluteAmount float64
}

// Cluster is one candidate recurring series carved out of a group, plus the
// day-of-month window it was split on (used later as part of the pattern's
// natural key, spec.md §4.4).
type Cluster struct {
	Transactions  []models.Transaction
	DayWindowLow  int
	DayWindowHigh int
}

const minClusterSize = 3

// Split partitions txs (already sorted by occurred_at by the caller) into
// independent clusters: first by amount (1D agglomerative, greedy, sorted),
// then within each amount band by day-of-month window, discarding anything
// left with fewer than 3 transactions (spec.md §4.2 steps 1-4).
func Split(txs []models.Transaction, tol Tolerance) []Cluster {
	amountClusters := splitByAmount(txs, tol)

	var out []Cluster
	for _, ac := range amountClusters {
		for _, dc := range splitByDayOfMonth(ac) {
			if len(dc.Transactions) >= minClusterSize {
				out = append(out, dc)
			}
		}
	}
	return out
}

// splitByAmount sorts by amount and greedily seeds a new cluster whenever
// the gap to the running cluster centroid exceeds tolerance (spec.md §4.2
// step 2). Ties (a transaction equidistant from two clusters) resolve to
// the earlier, lower-amount cluster per the spec's stated tie-break, which
// this left-to-right greedy scan does naturally.
func splitByAmount(txs []models.Transaction, tol Tolerance) [][]models.Transaction {
	if len(txs) == 0 {
		return nil
	}

	sorted := make([]models.Transaction, len(txs))
	copy(sorted, txs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Amount.LessThan(sorted[j].Amount)
	})

	var clusters [][]models.Transaction
	current := []models.Transaction{sorted[0]}
	centroid := sorted[0].Amount

	for _, tx := range sorted[1:] {
		if withinTolerance(centroid, tx.Amount, tol) {
			current = append(current, tx)
			centroid = mean(current)
			continue
		}
		clusters = append(clusters, current)
		current = []models.Transaction{tx}
		centroid = tx.Amount
	}
	clusters = append(clusters, current)
	return clusters
}

func withinTolerance(centroid, amount decimal.Decimal, tol Tolerance) bool {
	diff := amount.Sub(centroid).Abs()
	relBand := centroid.Mul(decimal.NewFromFloat(tol.RelativePct)).Abs()
	absBand := decimal.NewFromFloat(tol.AbsoluteAmount)
	band := relBand
	if absBand.GreaterThan(band) {
		band = absBand
	}
	return diff.LessThanOrEqual(band)
}

func mean(txs []models.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range txs {
		sum = sum.Add(tx.Amount)
	}
	return sum.Div(decimal.NewFromInt(int64(len(txs))))
}

// splitByDayOfMonth accepts a single amount band and splits it further by
// day-of-month window when the observed days don't fit in a single ≤10-day,
// wrap-aware window (spec.md §4.2 step 3): first try the group as one
// cluster, and only split into the fixed [1-10]/[11-20]/[21-31] windows if
// it doesn't fit.
func splitByDayOfMonth(txs []models.Transaction) []Cluster {
	if len(txs) == 0 {
		return nil
	}

	days := make([]int, len(txs))
	for i, tx := range txs {
		days[i] = tx.OccurredAt.Day()
	}

	if lo, hi, ok := wrapAwareWindow(days); ok {
		return []Cluster{{Transactions: txs, DayWindowLow: lo, DayWindowHigh: hi}}
	}

	buckets := map[[2]int][]models.Transaction{
		{1, 10}:  nil,
		{11, 20}: nil,
		{21, 31}: nil,
	}
	order := [][2]int{{1, 10}, {11, 20}, {21, 31}}

	for _, tx := range txs {
		d := tx.OccurredAt.Day()
		for _, w := range order {
			if d >= w[0] && d <= w[1] {
				buckets[w] = append(buckets[w], tx)
				break
			}
		}
	}

	var out []Cluster
	for _, w := range order {
		if len(buckets[w]) > 0 {
			out = append(out, Cluster{Transactions: buckets[w], DayWindowLow: w[0], DayWindowHigh: w[1]})
		}
	}
	return out
}

// wrapAwareWindow reports whether days fit within a window of span ≤10,
// accounting for modulo-30 wraparound (e.g. 29, 30, 1, 2 spans 3 days, not
// 29). It returns the window bounds in observed (non-wrapped) day numbers.
func wrapAwareWindow(days []int) (lo, hi int, ok bool) {
	sorted := append([]int(nil), days...)
	sort.Ints(sorted)

	plainSpan := sorted[len(sorted)-1] - sorted[0]
	if plainSpan <= 10 {
		return sorted[0], sorted[len(sorted)-1], true
	}

	rotated := MinSpanRotation(days)
	span := rotated[len(rotated)-1] - rotated[0]
	if span <= 10 {
		// The highest rotated value is a wrapped day, shifted up by 30.
		return rotated[0], rotated[len(rotated)-1] - 30, true
	}
	return sorted[0], sorted[len(sorted)-1], false
}

// MinSpanRotation returns days sorted and rotated (days below some pivot
// shifted up by 30) so as to minimize the max-min span, trying every
// element as the pivot. This is the wrap-aware rotation both the day-window
// split above and the discovery engine's day-of-month confidence sub-score
// (spec.md §4.3 step 8) need to avoid spuriously penalizing month-boundary
// crossing series (e.g. payroll on the 31st, then the 1st).
func MinSpanRotation(days []int) []int {
	sorted := append([]int(nil), days...)
	sort.Ints(sorted)
	if len(sorted) == 0 {
		return sorted
	}

	best := append([]int(nil), sorted...)
	bestSpan := sorted[len(sorted)-1] - sorted[0]
	for _, pivot := range sorted {
		rotated := make([]int, len(sorted))
		for i, d := range sorted {
			if d < pivot {
				rotated[i] = d + 30
			} else {
				rotated[i] = d
			}
		}
		sort.Ints(rotated)
		span := rotated[len(rotated)-1] - rotated[0]
		if span < bestSpan {
			bestSpan = span
			best = rotated
		}
	}
	return best
}
