package matcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

const (
	pausedAfterMissedCount = 1
	brokenAfterMissedCount = 3
	confidencePenalty      = 0.15
)

// markMissedAndRoll implements spec.md §4.5's "Miss handling" plus the
// roll-forward half of step 2b: mark ob missed, degrade the streak and
// pattern status, then create the next expected obligation. It returns the
// rolled-forward obligation and the pattern with its (possibly degraded)
// status, both persisted. The whole sequence runs inside one
// db.Transaction (spec.md §5/§7) so a failure partway through can't leave
// the pattern with a missed obligation and no replacement expected one.
func (m *Matcher) markMissedAndRoll(ctx context.Context, p models.Pattern, ob models.Obligation) (models.Obligation, models.Pattern, error) {
	var streak models.PatternStreak
	var next models.Obligation

	err := m.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		ob.Status = models.ObligationMissed
		if err := dbtx.Save(&ob).Error; err != nil {
			return fmt.Errorf("mark obligation missed: %w", err)
		}

		if err := dbtx.First(&streak, "pattern_id = ?", p.ID).Error; err != nil {
			return fmt.Errorf("load streak for pattern %s: %w", p.ID, err)
		}
		streak.MissedCount++
		streak.CurrentStreak = 0
		streak.ConfidenceMultiplier -= confidencePenalty
		if streak.ConfidenceMultiplier < 0 {
			streak.ConfidenceMultiplier = 0
		}
		if err := dbtx.Save(&streak).Error; err != nil {
			return fmt.Errorf("update streak for pattern %s: %w", p.ID, err)
		}

		p.Status = statusForMissedCount(streak.MissedCount)
		if err := dbtx.Save(&p).Error; err != nil {
			return fmt.Errorf("update pattern status %s: %w", p.ID, err)
		}

		var err error
		next, err = m.rollNextObligation(ctx, dbtx, p, ob)
		if err != nil {
			return err
		}
		if err := dbtx.Create(&next).Error; err != nil {
			return fmt.Errorf("create rolled obligation for pattern %s: %w", p.ID, err)
		}
		return nil
	})
	if err != nil {
		return models.Obligation{}, models.Pattern{}, err
	}

	m.logger.Info("obligation missed",
		zap.String("pattern_id", p.ID.String()),
		zap.String("obligation_id", ob.ID.String()),
		zap.Int("missed_count", streak.MissedCount),
		zap.String("new_status", string(p.Status)))

	return next, p, nil
}

// statusForMissedCount implements the degradation thresholds: missed_count
// ≤1 stays active, 1<missed_count≤3 pauses, >3 breaks.
func statusForMissedCount(missedCount int) models.PatternStatus {
	switch {
	case missedCount <= pausedAfterMissedCount:
		return models.PatternActive
	case missedCount <= brokenAfterMissedCount:
		return models.PatternPaused
	default:
		return models.PatternBroken
	}
}
