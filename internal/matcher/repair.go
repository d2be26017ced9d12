package matcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
	"github.com/balajiparimelazhagan/fincoach-api/internal/obligation"
)

// repair implements spec.md §7's recoverable-inconsistency path: an
// active-or-paused pattern found with no `expected` obligation (step 2a)
// is not an error — the matcher synthesizes a replacement from the
// streak's last_actual_date, or pauses the pattern for re-discovery if
// even that is missing. The read-then-write sequence runs inside one
// db.Transaction (spec.md §5/§7) so the streak lookup and the resulting
// pause/create stay consistent with each other.
func (m *Matcher) repair(ctx context.Context, p models.Pattern) error {
	var pausedForRediscovery bool
	var replacement models.Obligation

	err := m.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var streak models.PatternStreak
		if err := dbtx.First(&streak, "pattern_id = ?", p.ID).Error; err != nil {
			return fmt.Errorf("load streak for repair of pattern %s: %w", p.ID, err)
		}

		if streak.LastActualDate == nil {
			p.Status = models.PatternPaused
			if err := dbtx.Save(&p).Error; err != nil {
				return fmt.Errorf("pause unrepairable pattern %s: %w", p.ID, err)
			}
			pausedForRediscovery = true
			return nil
		}

		window, err := m.lastInlierAmounts(ctx, dbtx, p.ID, rollingWindowSize)
		if err != nil {
			return err
		}
		minAmount, maxAmount := obligation.AmountRange(p.AmountBehaviour, p.RepresentativeAmount, window)

		replacement = models.Obligation{
			PatternID:         p.ID,
			ExpectedDate:      streak.LastActualDate.AddDate(0, 0, p.IntervalDays),
			ToleranceDays:     obligation.ToleranceDays(p.PatternCase, p.IntervalDays),
			ExpectedMinAmount: minAmount,
			ExpectedMaxAmount: maxAmount,
			Status:            models.ObligationExpected,
			DiagnosticData:    datatypes.JSON(`{"repaired":true}`),
		}
		if err := dbtx.Create(&replacement).Error; err != nil {
			return fmt.Errorf("create repaired obligation for pattern %s: %w", p.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if pausedForRediscovery {
		m.logger.Warn("pattern paused for re-discovery: no expected obligation and no streak history",
			zap.String("pattern_id", p.ID.String()))
		return nil
	}

	m.logger.Warn("repaired pattern missing expected obligation",
		zap.String("pattern_id", p.ID.String()),
		zap.Time("synthesized_expected_date", replacement.ExpectedDate))
	return nil
}
