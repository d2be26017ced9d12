// Package matcher implements C5, the runtime matcher / obligation manager
// (spec.md §4.5): matching one newly persisted transaction against the
// pending obligations of its candidate patterns, never creating patterns.
package matcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/balajiparimelazhagan/fincoach-api/internal/coreerrors"
	"github.com/balajiparimelazhagan/fincoach-api/internal/locking"
	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

var tracer = otel.Tracer("fincoach-api/matcher")

// maxMissSweepCyclesDefault bounds the lazy-miss-sweep loop (spec.md §4.5
// step 2b: "repeat up to a bounded number of cycles (≤6)").
const maxMissSweepCyclesDefault = 6

// dateOnly truncates a time.Time to midnight UTC, the granularity every
// obligation-window comparison in this package operates at.
type dateOnly time.Time

func toDateOnly(t time.Time) dateOnly {
	t = t.UTC()
	return dateOnly(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
}

func absDays(a, b dateOnly) int {
	d := time.Time(a).Sub(time.Time(b)).Hours() / 24
	if d < 0 {
		d = -d
	}
	return int(d + 0.5)
}

// Matcher owns the per-transaction matching algorithm.
type Matcher struct {
	db                 *gorm.DB
	logger             *zap.Logger
	locker             locking.Locker
	maxMissSweepCycles int
}

func NewMatcher(db *gorm.DB, logger *zap.Logger, locker locking.Locker, maxMissSweepCycles int) *Matcher {
	if maxMissSweepCycles <= 0 {
		maxMissSweepCycles = maxMissSweepCyclesDefault
	}
	return &Matcher{db: db, logger: logger, locker: locker, maxMissSweepCycles: maxMissSweepCycles}
}

// MatchTransaction runs spec.md §4.5's algorithm for one transaction id.
// The caller (the retry coordinator, or a direct synchronous call) supplies
// a context with whatever wall-clock deadline spec.md §5 requires.
func (m *Matcher) MatchTransaction(ctx context.Context, transactionID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "matcher.MatchTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction_id", transactionID.String()))

	var tx models.Transaction
	if err := m.db.WithContext(ctx).First(&tx, "id = ?", transactionID).Error; err != nil {
		return coreerrors.NotFound(fmt.Sprintf("transaction %s not found", transactionID))
	}

	key := fmt.Sprintf("matcher:%s:%s:%s:%s", tx.UserID, tx.PayeeID, tx.Direction, tx.CurrencyID)
	lease, err := m.locker.Acquire(ctx, key)
	if err != nil {
		return coreerrors.Retryable("acquire matcher lock", err)
	}
	defer func() {
		if releaseErr := lease.Release(ctx); releaseErr != nil {
			m.logger.Warn("failed to release matcher lock", zap.String("key", key), zap.Error(releaseErr))
		}
	}()

	var patterns []models.Pattern
	err = m.db.WithContext(ctx).
		Where("user_id = ? AND payee_id = ? AND direction = ? AND currency_id = ? AND status IN ?",
			tx.UserID, tx.PayeeID, tx.Direction, tx.CurrencyID,
			[]models.PatternStatus{models.PatternActive, models.PatternPaused, models.PatternBroken}).
		Find(&patterns).Error
	if err != nil {
		return coreerrors.Retryable("load candidate patterns", err)
	}

	txDate := toDateOnly(tx.OccurredAt)

	var candidates []candidate
	for _, p := range patterns {
		ob, err := m.pendingObligation(ctx, p.ID)
		if err != nil {
			return err
		}
		if ob == nil {
			// Step 2a: malformed pattern, schedule for repair rather than
			// matching against it.
			if repairErr := m.repair(ctx, p); repairErr != nil {
				m.logger.Error("pattern repair failed", zap.String("pattern_id", p.ID.String()), zap.Error(repairErr))
			}
			continue
		}
		candidates = append(candidates, candidate{Pattern: p, Obligation: *ob})
	}

	// Priority order is computed once, up front, against each pattern's
	// obligation as it stands before any miss sweep (spec.md §4.5 "Pattern
	// priority on ambiguity"); the sweep below then runs in that order,
	// stopping at the first pattern whose (possibly rolled-forward)
	// obligation actually matches T.
	sortByPriority(candidates, txDate, tx.Amount)

	for _, c := range candidates {
		matched, err := m.evaluateAgainstPattern(ctx, c.Pattern, c.Obligation, tx, txDate)
		if err != nil {
			return err
		}
		if matched {
			// First-match-wins (spec.md §4.5 step 2d default).
			return nil
		}
	}

	return nil
}

// evaluateAgainstPattern runs the lazy miss sweep and match test for one
// pattern (spec.md §4.5 steps 2b-2d), returning true if T fulfilled an
// obligation of this pattern.
func (m *Matcher) evaluateAgainstPattern(ctx context.Context, p models.Pattern, ob models.Obligation, tx models.Transaction, txDate dateOnly) (bool, error) {
	ctx, span := tracer.Start(ctx, "matcher.evaluateAgainstPattern")
	defer span.End()
	span.SetAttributes(attribute.String("pattern_id", p.ID.String()))

	current := ob
	for cycle := 0; cycle < m.maxMissSweepCycles; cycle++ {
		windowEnd := current.ExpectedDate.AddDate(0, 0, current.ToleranceDays)
		if !tx.OccurredAt.After(windowEnd) {
			break
		}

		// T is past this obligation's window: mark missed and roll
		// forward before re-evaluating.
		var err error
		current, p, err = m.markMissedAndRoll(ctx, p, current)
		if err != nil {
			return false, err
		}
	}

	if !current.Matches(tx.OccurredAt) {
		return false, nil
	}

	return true, m.fulfil(ctx, p, current, tx)
}

// pendingObligation loads the single `expected` obligation for a pattern,
// or nil if none exists (spec.md §4.5 step 2a).
func (m *Matcher) pendingObligation(ctx context.Context, patternID uuid.UUID) (*models.Obligation, error) {
	var ob models.Obligation
	err := m.db.WithContext(ctx).
		Where("pattern_id = ? AND status = ?", patternID, models.ObligationExpected).
		First(&ob).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, coreerrors.Retryable("load pending obligation", err)
	}
	return &ob, nil
}

