package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
	"github.com/balajiparimelazhagan/fincoach-api/internal/obligation"
)

const rollingWindowSize = 3

// rollNextObligation builds the next expected obligation from prior,
// following spec.md §4.5 "Rolling the next obligation": the expected date
// always advances by interval_days from the prior obligation's expected
// date, regardless of whether prior was fulfilled or missed (this is
// property 3, interval closure). dbtx is the enclosing transaction handle
// from the caller (fulfil/markMissedAndRoll/repair), so the read of the
// inlier window and the obligation it produces commit or roll back
// together with the rest of that caller's sequence.
func (m *Matcher) rollNextObligation(ctx context.Context, dbtx *gorm.DB, p models.Pattern, prior models.Obligation) (models.Obligation, error) {
	window, err := m.lastInlierAmounts(ctx, dbtx, p.ID, rollingWindowSize)
	if err != nil {
		return models.Obligation{}, err
	}

	min, max := obligation.AmountRange(p.AmountBehaviour, p.RepresentativeAmount, window)

	return models.Obligation{
		PatternID:         p.ID,
		ExpectedDate:      prior.ExpectedDate.AddDate(0, 0, p.IntervalDays),
		ToleranceDays:     obligation.ToleranceDays(p.PatternCase, p.IntervalDays),
		ExpectedMinAmount: min,
		ExpectedMaxAmount: max,
		Status:            models.ObligationExpected,
	}, nil
}

// lastInlierAmounts returns the amounts of the most recent up-to-n
// transactions linked to patternID that were not flagged as amount
// outliers at link time (spec.md §4.5: "last three inlier transactions").
// Outlier filtering happens in Go rather than as a JSON operator in the
// WHERE clause, so this query stays portable across the postgres driver
// used in production and the sqlite driver used in tests. It reads through
// dbtx, the caller's transaction handle, so the window it sees is
// consistent with whatever that transaction has written so far.
func (m *Matcher) lastInlierAmounts(ctx context.Context, dbtx *gorm.DB, patternID uuid.UUID, n int) ([]decimal.Decimal, error) {
	var links []models.PatternTransactionLink
	if err := dbtx.WithContext(ctx).Where("pattern_id = ?", patternID).Find(&links).Error; err != nil {
		return nil, fmt.Errorf("load links for pattern %s: %w", patternID, err)
	}

	var txIDs []uuid.UUID
	outlier := make(map[uuid.UUID]bool, len(links))
	for _, l := range links {
		txIDs = append(txIDs, l.TransactionID)
		if isOutlierLink(l) {
			outlier[l.TransactionID] = true
		}
	}
	if len(txIDs) == 0 {
		return nil, nil
	}

	var txs []models.Transaction
	if err := dbtx.WithContext(ctx).Where("id IN ?", txIDs).Order("occurred_at DESC").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("load inlier window for pattern %s: %w", patternID, err)
	}

	var inliers []models.Transaction
	for _, t := range txs {
		if !outlier[t.ID] {
			inliers = append(inliers, t)
		}
	}
	sort.Slice(inliers, func(i, j int) bool { return inliers[i].OccurredAt.After(inliers[j].OccurredAt) })
	if len(inliers) > n {
		inliers = inliers[:n]
	}

	amounts := make([]decimal.Decimal, len(inliers))
	for i, t := range inliers {
		amounts[i] = t.Amount
	}
	return amounts, nil
}

func isOutlierLink(l models.PatternTransactionLink) bool {
	if len(l.Metadata) == 0 {
		return false
	}
	var meta struct {
		Outlier bool `json:"outlier"`
	}
	if err := json.Unmarshal(l.Metadata, &meta); err != nil {
		return false
	}
	return meta.Outlier
}
