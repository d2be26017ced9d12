package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

func TestScoreConfidence_HighRegularityScoresHigh(t *testing.T) {
	score := scoreConfidence(confidenceInputs{
		IntervalCV:  0.01,
		AmountCV:    0.01,
		DayOfMonths: []int{1, 1, 1, 1, 1, 1},
		SampleSize:  6,
		PatternCase: models.CaseFixedMonthly,
	})

	assert.Greater(t, score, 0.9)
}

func TestScoreConfidence_LowSampleAndHighVarianceScoresLow(t *testing.T) {
	score := scoreConfidence(confidenceInputs{
		IntervalCV:  0.6,
		AmountCV:    0.6,
		DayOfMonths: []int{1, 11, 21},
		SampleSize:  3,
		PatternCase: models.CaseFlexibleMonthly,
	})

	assert.Less(t, score, minConfidence)
}

func TestCaseStrength_FlexibleScoresLowerThanFixed(t *testing.T) {
	assert.Greater(t, caseStrength(models.CaseFixedMonthly), caseStrength(models.CaseFlexibleMonthly))
}

// TestScoreConfidence_MonthBoundaryDayOfMonthIsWrapAware mirrors spec.md §8
// scenario A: a fixed-monthly salary landing on day 31, then day 1, then
// day 30 must not be penalized as if it spanned the whole month — the
// day-of-month sub-score is wrap-aware, same as C2's clustering windows.
func TestScoreConfidence_MonthBoundaryDayOfMonthIsWrapAware(t *testing.T) {
	score := scoreConfidence(confidenceInputs{
		IntervalCV:  0.033,
		AmountCV:    0,
		DayOfMonths: []int{31, 1, 30},
		SampleSize:  3,
		PatternCase: models.CaseFixedMonthly,
	})

	assert.GreaterOrEqual(t, score, 0.80)
}
