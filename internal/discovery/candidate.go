package discovery

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/balajiparimelazhagan/fincoach-api/internal/grouping"
	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

// PatternCandidate is the output of a successful pass through the pipeline
// (spec.md §4.3 step 9), ready to be handed to C4's upsert_pattern.
type PatternCandidate struct {
	UserID     uuid.UUID
	PayeeID    uuid.UUID
	Direction  models.Direction
	CurrencyID string

	IntervalDays    int
	PatternCase     models.PatternCase
	AmountBehaviour models.AmountBehaviour
	Confidence      float64

	RepresentativeAmount decimal.Decimal
	AmountMin            decimal.Decimal
	AmountMax            decimal.Decimal

	DayOfMonthHint *int
	DayWindowLow   int
	DayWindowHigh  int

	// Transactions is every transaction in the accepted cluster, inliers
	// and outliers alike — C4 links all of them to the pattern.
	Transactions []models.Transaction
	// OutlierTransactionIDs marks which of Transactions were amount
	// outliers (step 5), for callers that want to flag them distinctly.
	OutlierTransactionIDs map[uuid.UUID]bool
}

// Rejection explains why a cluster did not become a PatternCandidate, for
// observability at the discovery API surface.
type Rejection struct {
	Key    grouping.Key
	Reason string
}

// buildCandidate implements step 9: assemble the PatternCandidate from the
// values computed by the preceding pipeline stages.
func buildCandidate(key grouping.Key, userID uuid.UUID, band amountBand, stability intervalStability, patternCase models.PatternCase, behaviour models.AmountBehaviour, confidence float64, dayLow, dayHigh int, monthlyFamily bool) PatternCandidate {
	all := append(append([]models.Transaction(nil), band.Inliers...), band.Outliers...)

	amountMin, amountMax := band.Inliers[0].Amount, band.Inliers[0].Amount
	for _, tx := range all {
		if tx.Amount.LessThan(amountMin) {
			amountMin = tx.Amount
		}
		if tx.Amount.GreaterThan(amountMax) {
			amountMax = tx.Amount
		}
	}

	inlierAmounts := make([]decimal.Decimal, len(band.Inliers))
	for i, tx := range band.Inliers {
		inlierAmounts[i] = tx.Amount
	}

	outlierIDs := make(map[uuid.UUID]bool, len(band.Outliers))
	for _, tx := range band.Outliers {
		outlierIDs[tx.ID] = true
	}

	var dayHint *int
	if monthlyFamily {
		days := make([]int, len(band.Inliers))
		for i, tx := range band.Inliers {
			days[i] = tx.OccurredAt.Day()
		}
		hint := int(medianInt(days) + 0.5)
		dayHint = &hint
	}

	return PatternCandidate{
		UserID:                userID,
		PayeeID:               key.PayeeID,
		Direction:             key.Direction,
		CurrencyID:            key.CurrencyID,
		IntervalDays:          stability.CandidateDays,
		PatternCase:           patternCase,
		AmountBehaviour:       behaviour,
		Confidence:            confidence,
		RepresentativeAmount:  medianDecimal(inlierAmounts),
		AmountMin:             amountMin,
		AmountMax:             amountMax,
		DayOfMonthHint:        dayHint,
		DayWindowLow:          dayLow,
		DayWindowHigh:         dayHigh,
		Transactions:          all,
		OutlierTransactionIDs: outlierIDs,
	}
}
