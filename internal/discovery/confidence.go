package discovery

import (
	"github.com/balajiparimelazhagan/fincoach-api/internal/clustering"
	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

// confidenceWeights are the step 8 weights (spec.md §4.3 step 8); they sum
// to 1.0 and are not user-configurable since they define the scoring
// contract, not a deployment knob.
const (
	weightIntervalRegularity = 0.35
	weightAmountRegularity   = 0.25
	weightDayOfMonth         = 0.20
	weightSampleSufficiency  = 0.15
	weightCaseStrength       = 0.05

	minConfidence = 0.40

	sampleSufficiencyTarget = 6.0
	dayOfMonthScaleDays     = 10.0
)

type confidenceInputs struct {
	IntervalCV  float64
	AmountCV    float64
	DayOfMonths []int
	SampleSize  int
	PatternCase models.PatternCase
}

// scoreConfidence implements step 8: a weighted sum of five sub-scores,
// each clipped to [0,1] before weighting.
func scoreConfidence(in confidenceInputs) float64 {
	// Rotate wrap-aware before scoring spread, so a month-boundary-crossing
	// series (e.g. day 31 then day 1) isn't scored as if it spanned 30 days
	// (spec.md §4.3 step 8, same rotation C2 uses for day-of-month windows).
	rotated := clustering.MinSpanRotation(in.DayOfMonths)
	dayFloats := make([]float64, len(rotated))
	for i, d := range rotated {
		dayFloats[i] = float64(d)
	}
	dayStdDev := stdDevFloat(dayFloats, meanFloat(dayFloats))

	intervalScore := clip01(1 - in.IntervalCV)
	amountScore := clip01(1 - in.AmountCV)
	dayScore := clip01(1 - dayStdDev/dayOfMonthScaleDays)
	sampleScore := clip01(float64(in.SampleSize) / sampleSufficiencyTarget)
	caseScore := caseStrength(in.PatternCase)

	return weightIntervalRegularity*intervalScore +
		weightAmountRegularity*amountScore +
		weightDayOfMonth*dayScore +
		weightSampleSufficiency*sampleScore +
		weightCaseStrength*caseScore
}

// caseStrength scores how "fixed" a case type is: the rigid case variants
// score 1.0, flexible/high-variance variants score 0.6 (spec.md §4.3 step 8).
func caseStrength(c models.PatternCase) float64 {
	switch c {
	case models.CaseFixedMonthly, models.CaseBiMonthly, models.CaseQuarterly, models.CaseCustomInterval:
		return 1.0
	default:
		return 0.6
	}
}
