package matcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

const confidenceRecovery = 0.05

// fulfil implements spec.md §4.5 step 2d: mark ob fulfilled, link the
// transaction, update the streak (including the recovery path when the
// pattern was paused/broken), and roll the next expected obligation. The
// whole sequence runs inside one db.Transaction (spec.md §5/§7: "all
// mutations are through ACID transactions"), so a failure partway through
// — e.g. the next-obligation create — rolls back the fulfilled-obligation
// write too, instead of leaving the pattern with zero expected obligations.
func (m *Matcher) fulfil(ctx context.Context, p models.Pattern, ob models.Obligation, tx models.Transaction) error {
	now := time.Now().UTC()
	daysEarly := int(ob.ExpectedDate.Sub(tx.OccurredAt).Hours() / 24)
	var finalStreak models.PatternStreak

	err := m.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		ob.Status = models.ObligationFulfilled
		ob.FulfilledByTransactionID = &tx.ID
		ob.FulfilledAt = &now
		ob.DaysEarly = &daysEarly
		if err := dbtx.Save(&ob).Error; err != nil {
			return fmt.Errorf("mark obligation fulfilled: %w", err)
		}

		link := models.PatternTransactionLink{PatternID: p.ID, TransactionID: tx.ID, LinkedAt: now}
		if err := dbtx.Create(&link).Error; err != nil {
			return fmt.Errorf("link fulfilling transaction: %w", err)
		}

		var streak models.PatternStreak
		if err := dbtx.First(&streak, "pattern_id = ?", p.ID).Error; err != nil {
			return fmt.Errorf("load streak for pattern %s: %w", p.ID, err)
		}
		streak.CurrentStreak++
		if streak.CurrentStreak > streak.LongestStreak {
			streak.LongestStreak = streak.CurrentStreak
		}
		streak.LastActualDate = &tx.OccurredAt
		expected := ob.ExpectedDate
		streak.LastExpectedDate = &expected
		streak.ConfidenceMultiplier += confidenceRecovery
		if streak.ConfidenceMultiplier > 1.0 {
			streak.ConfidenceMultiplier = 1.0
		}

		recovering := streak.MissedCount > 0
		streak.MissedCount = 0
		if err := dbtx.Save(&streak).Error; err != nil {
			return fmt.Errorf("update streak for pattern %s: %w", p.ID, err)
		}

		if recovering && p.Status != models.PatternActive {
			p.Status = models.PatternActive
			if err := dbtx.Save(&p).Error; err != nil {
				return fmt.Errorf("recover pattern status %s: %w", p.ID, err)
			}
		}

		next, err := m.rollNextObligation(ctx, dbtx, p, ob)
		if err != nil {
			return err
		}
		if err := dbtx.Create(&next).Error; err != nil {
			return fmt.Errorf("create next obligation for pattern %s: %w", p.ID, err)
		}

		finalStreak = streak
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("obligation fulfilled",
		zap.String("pattern_id", p.ID.String()),
		zap.String("transaction_id", tx.ID.String()),
		zap.Int("current_streak", finalStreak.CurrentStreak))

	return nil
}
