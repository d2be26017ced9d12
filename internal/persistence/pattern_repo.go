// Package persistence implements C4: the idempotent pattern upsert and its
// hard table-fill-order invariant (spec.md §4.4).
package persistence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/balajiparimelazhagan/fincoach-api/internal/discovery"
	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
	"github.com/balajiparimelazhagan/fincoach-api/internal/obligation"
)

// UpsertResult reports whether a candidate produced a new pattern or
// updated an existing one, for the caller's `Discover` response (spec.md
// §6: "list of patterns (created or updated) with their detection_version").
type UpsertResult struct {
	Pattern *models.Pattern
	Created bool
}

// PatternRepo owns all writes to patterns/streaks/links/obligations.
type PatternRepo struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewPatternRepo(db *gorm.DB, logger *zap.Logger) *PatternRepo {
	return &PatternRepo{db: db, logger: logger}
}

// amountBandRangeTolerance widens the natural-key amount-band lookup so a
// representative amount that drifts slightly between discovery runs still
// matches the same pattern (spec.md §4.4: "range query on amount").
const amountBandRangeTolerance = 0.02

// UpsertPattern implements spec.md §4.4's operation. All five numbered
// steps, plus the hard table-fill-order invariant, happen inside a single
// gorm transaction; any error rolls back the whole sequence.
func (r *PatternRepo) UpsertPattern(ctx context.Context, candidate discovery.PatternCandidate) (UpsertResult, error) {
	var result UpsertResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findByNaturalKey(tx, candidate)
		if err != nil {
			return fmt.Errorf("natural key lookup: %w", err)
		}

		now := time.Now().UTC()

		if existing != nil {
			// Step 1: update in place, never touching the streak.
			existing.IntervalDays = candidate.IntervalDays
			existing.PatternCase = candidate.PatternCase
			existing.AmountBehaviour = candidate.AmountBehaviour
			existing.RepresentativeAmount = candidate.RepresentativeAmount
			existing.AmountMin = candidate.AmountMin
			existing.AmountMax = candidate.AmountMax
			existing.DayOfMonthHint = candidate.DayOfMonthHint
			existing.Confidence = candidate.Confidence
			existing.DetectionVersion++
			existing.LastEvaluatedAt = now

			if err := tx.Save(existing).Error; err != nil {
				return fmt.Errorf("update pattern: %w", err)
			}
			result.Pattern = existing
			result.Created = false
		} else {
			// Step 2: create a new pattern row.
			p := &models.Pattern{
				UserID:               candidate.UserID,
				PayeeID:              candidate.PayeeID,
				Direction:            candidate.Direction,
				CurrencyID:           candidate.CurrencyID,
				IntervalDays:         candidate.IntervalDays,
				PatternCase:          candidate.PatternCase,
				AmountBehaviour:      candidate.AmountBehaviour,
				RepresentativeAmount: candidate.RepresentativeAmount,
				AmountMin:            candidate.AmountMin,
				AmountMax:            candidate.AmountMax,
				DayOfMonthHint:       candidate.DayOfMonthHint,
				DayWindowLow:         candidate.DayWindowLow,
				DayWindowHigh:        candidate.DayWindowHigh,
				Status:               models.PatternActive,
				Confidence:           candidate.Confidence,
				DetectionVersion:     1,
				LastEvaluatedAt:      now,
			}
			if err := tx.Create(p).Error; err != nil {
				return fmt.Errorf("create pattern: %w", err)
			}
			result.Pattern = p
			result.Created = true

			// Step 4: seed streak (new patterns only).
			last := lastTransactionDate(candidate.Transactions)
			streak := &models.PatternStreak{
				PatternID:            p.ID,
				CurrentStreak:        len(candidate.Transactions),
				LongestStreak:        len(candidate.Transactions),
				MissedCount:          0,
				LastActualDate:       &last,
				ConfidenceMultiplier: 1.0,
			}
			if err := tx.Create(streak).Error; err != nil {
				return fmt.Errorf("seed streak: %w", err)
			}
		}

		// Step 3: create a link row for every transaction in the candidate
		// if absent. Never delete a link.
		for _, t := range candidate.Transactions {
			link := models.PatternTransactionLink{
				PatternID:     result.Pattern.ID,
				TransactionID: t.ID,
				LinkedAt:      now,
			}
			if candidate.OutlierTransactionIDs[t.ID] {
				link.Metadata = datatypes.JSON(`{"outlier":true}`)
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
				return fmt.Errorf("link transaction %s: %w", t.ID, err)
			}
		}

		// Step 5: first expected obligation O₀ (new patterns only).
		if result.Created {
			o0 := firstObligation(result.Pattern, inlierTransactions(candidate))
			if err := tx.Create(o0).Error; err != nil {
				return fmt.Errorf("seed first obligation: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}

	r.logger.Info("pattern upserted",
		zap.String("pattern_id", result.Pattern.ID.String()),
		zap.Bool("created", result.Created),
		zap.Int("detection_version", result.Pattern.DetectionVersion))

	return result, nil
}

// findByNaturalKey looks up a pattern sharing (user, payee, direction,
// currency, day window) whose representative amount is within
// amountBandRangeTolerance of the candidate's (spec.md §4.4: "the
// natural-key lookup uses a range query on amount").
func findByNaturalKey(tx *gorm.DB, candidate discovery.PatternCandidate) (*models.Pattern, error) {
	band := candidate.RepresentativeAmount.Mul(decimal.NewFromFloat(amountBandRangeTolerance)).Abs()

	var patterns []models.Pattern
	err := tx.Where(
		"user_id = ? AND payee_id = ? AND direction = ? AND currency_id = ? AND day_window_low = ? AND day_window_high = ?",
		candidate.UserID, candidate.PayeeID, candidate.Direction, candidate.CurrencyID,
		candidate.DayWindowLow, candidate.DayWindowHigh,
	).Find(&patterns).Error
	if err != nil {
		return nil, err
	}

	for i := range patterns {
		diff := patterns[i].RepresentativeAmount.Sub(candidate.RepresentativeAmount).Abs()
		if diff.LessThanOrEqual(band) {
			return &patterns[i], nil
		}
	}
	return nil, nil
}

func lastTransactionDate(txs []models.Transaction) time.Time {
	last := txs[0].OccurredAt
	for _, t := range txs[1:] {
		if t.OccurredAt.After(last) {
			last = t.OccurredAt
		}
	}
	return last
}

// firstObligation seeds O₀ using §4.5's rolling rules against the last
// transaction of the candidate cluster (spec.md §4.4 step 5).
func firstObligation(p *models.Pattern, txs []models.Transaction) *models.Obligation {
	last := lastTransactionDate(txs)
	tolerance := obligation.ToleranceDays(p.PatternCase, p.IntervalDays)

	window := lastNInlierAmounts(txs, 3)
	min, max := obligation.AmountRange(p.AmountBehaviour, p.RepresentativeAmount, window)

	return &models.Obligation{
		PatternID:         p.ID,
		ExpectedDate:      last.AddDate(0, 0, p.IntervalDays),
		ToleranceDays:     tolerance,
		ExpectedMinAmount: min,
		ExpectedMaxAmount: max,
		Status:            models.ObligationExpected,
	}
}

func inlierTransactions(candidate discovery.PatternCandidate) []models.Transaction {
	out := make([]models.Transaction, 0, len(candidate.Transactions))
	for _, t := range candidate.Transactions {
		if !candidate.OutlierTransactionIDs[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

func lastNInlierAmounts(txs []models.Transaction, n int) []decimal.Decimal {
	sorted := append([]models.Transaction(nil), txs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OccurredAt.Before(sorted[j].OccurredAt) })
	if len(sorted) > n {
		sorted = sorted[len(sorted)-n:]
	}
	out := make([]decimal.Decimal, len(sorted))
	for i, t := range sorted {
		out[i] = t.Amount
	}
	return out
}
