package discovery

import (
	"sort"
	"time"

	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

// rejection reasons for the interval stages (spec.md §4.3 steps 0-3).
const (
	ReasonTooFewTransactions  = "too_few_transactions"
	ReasonTooFrequent         = "too_frequent_interval"
	ReasonTooManyPerWindow    = "too_many_transactions_per_window"
	ReasonUnstableInterval    = "unstable_interval"
	ReasonIntervalOutOfRange  = "interval_out_of_classification_range"
)

const (
	minClusterTransactions  = 3
	minIntervalDays         = 10
	maxPerRollingWindow     = 3
	rollingWindowDays       = 30
)

// sortAndDedupe implements step 0: require ≥3 transactions, sort by
// occurred_at ascending if necessary, and drop exact-duplicate timestamps
// (which should not occur given upstream uniqueness, but step 0 is the
// validation gate so it's defensive here rather than assumed).
func sortAndDedupe(txs []models.Transaction) []models.Transaction {
	sorted := make([]models.Transaction, len(txs))
	copy(sorted, txs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OccurredAt.Before(sorted[j].OccurredAt) })

	out := sorted[:0:0]
	var prev *time.Time
	for _, tx := range sorted {
		if prev != nil && tx.OccurredAt.Equal(*prev) {
			continue
		}
		out = append(out, tx)
		t := tx.OccurredAt
		prev = &t
	}
	return out
}

// computeIntervals returns the whole-day gaps between consecutive
// transactions (spec.md §4.3 step 1).
func computeIntervals(txs []models.Transaction) []int {
	if len(txs) < 2 {
		return nil
	}
	intervals := make([]int, 0, len(txs)-1)
	for i := 1; i < len(txs); i++ {
		days := int(txs[i].OccurredAt.Sub(txs[i-1].OccurredAt).Hours() / 24)
		intervals = append(intervals, days)
	}
	return intervals
}

// tooFrequent implements step 2: any interval under the minimum is
// suspicious, and so is a density of more than maxPerRollingWindow
// transactions inside any rollingWindowDays-day window — both indicate a
// frequent-purchase relationship rather than a recurring obligation. The
// two conditions are reported under distinct reason codes (spec.md §4.3
// step 2 lists them separately).
func tooFrequent(txs []models.Transaction, intervals []int) (reason string, reject bool) {
	for _, days := range intervals {
		if days < minIntervalDays {
			return ReasonTooFrequent, true
		}
	}
	if exceedsRollingWindowDensity(txs) {
		return ReasonTooManyPerWindow, true
	}
	return "", false
}

func exceedsRollingWindowDensity(txs []models.Transaction) bool {
	for i := range txs {
		count := 1
		for j := i + 1; j < len(txs); j++ {
			if txs[j].OccurredAt.Sub(txs[i].OccurredAt) > rollingWindowDays*24*time.Hour {
				break
			}
			count++
		}
		if count > maxPerRollingWindow {
			return true
		}
	}
	return false
}

// intervalStability is the result of step 3.
type intervalStability struct {
	CandidateDays int
	Mean          float64
	Median        float64
	StdDev        float64
	CV            float64
	Stable        bool
}

// detectStableInterval computes mean/median/CV of intervals and tests
// stability against max(3 days, 0.15*median) (spec.md §4.3 step 3). The
// candidate interval is the median rounded to the nearest integer.
func detectStableInterval(intervals []int) intervalStability {
	floats := make([]float64, len(intervals))
	for i, d := range intervals {
		floats[i] = float64(d)
	}

	median := medianInt(intervals)
	mean := meanFloat(floats)
	stddev := stdDevFloat(floats, mean)
	cv := coefficientOfVariation(floats)

	threshold := 0.15 * median
	if threshold < 3 {
		threshold = 3
	}

	return intervalStability{
		CandidateDays: int(median + 0.5),
		Mean:          mean,
		Median:        median,
		StdDev:        stddev,
		CV:            cv,
		Stable:        stddev <= threshold,
	}
}
