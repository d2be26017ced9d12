package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/balajiparimelazhagan/fincoach-api/internal/locking"
	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

func setupMatcherTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Transaction{},
		&models.Pattern{},
		&models.PatternStreak{},
		&models.PatternTransactionLink{},
		&models.Obligation{},
	))
	return db
}

func setupTestLocker(t *testing.T) locking.Locker {
	return locking.NewMemoryLocker()
}

// seedMonthlyPattern creates a fixed_monthly pattern with a streak and a
// single expected obligation, mirroring what C4's UpsertPattern would have
// produced for scenario C's chit 2 series.
func seedMonthlyPattern(t *testing.T, db *gorm.DB, expectedDate time.Time) *models.Pattern {
	p := &models.Pattern{
		UserID:               uuid.New(),
		PayeeID:              uuid.New(),
		Direction:            models.DirectionDebit,
		CurrencyID:           "INR",
		IntervalDays:         30,
		PatternCase:          models.CaseFixedMonthly,
		AmountBehaviour:      models.AmountFixed,
		RepresentativeAmount: decimal.NewFromInt(4300),
		AmountMin:            decimal.NewFromInt(4300),
		AmountMax:            decimal.NewFromInt(4300),
		DayWindowLow:         1,
		DayWindowHigh:        10,
		Status:               models.PatternActive,
		Confidence:           0.85,
		DetectionVersion:     1,
		LastEvaluatedAt:      time.Now().UTC(),
	}
	require.NoError(t, db.Create(p).Error)

	streak := &models.PatternStreak{
		PatternID:            p.ID,
		CurrentStreak:        3,
		LongestStreak:        3,
		ConfidenceMultiplier: 1.0,
	}
	require.NoError(t, db.Create(streak).Error)

	ob := &models.Obligation{
		PatternID:         p.ID,
		ExpectedDate:      expectedDate,
		ToleranceDays:     3,
		ExpectedMinAmount: decimal.NewFromInt(4300),
		ExpectedMaxAmount: decimal.NewFromInt(4300),
		Status:            models.ObligationExpected,
	}
	require.NoError(t, db.Create(ob).Error)

	return p
}

func createTransaction(t *testing.T, db *gorm.DB, p *models.Pattern, occurredAt time.Time, amount decimal.Decimal) *models.Transaction {
	tx := &models.Transaction{
		ID:              uuid.New(),
		UserID:          p.UserID,
		PayeeID:         p.PayeeID,
		Direction:       p.Direction,
		CurrencyID:      p.CurrencyID,
		OccurredAt:      occurredAt,
		Amount:          amount,
		SourceMessageID: uuid.New().String(),
	}
	require.NoError(t, db.Create(tx).Error)
	return tx
}

// TestMatchTransaction_LazyMissThenFulfil mirrors spec.md §8 scenario D:
// a January obligation goes unfulfilled; the February transaction triggers
// a lazy miss sweep that marks January missed before fulfilling February.
func TestMatchTransaction_LazyMissThenFulfil(t *testing.T) {
	db := setupMatcherTestDB(t)
	locker := setupTestLocker(t)
	jan := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	p := seedMonthlyPattern(t, db, jan)

	feb := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)
	tx := createTransaction(t, db, p, feb, decimal.NewFromInt(4300))

	m := NewMatcher(db, zap.NewNop(), locker, 6)
	require.NoError(t, m.MatchTransaction(context.Background(), tx.ID))

	var obligations []models.Obligation
	require.NoError(t, db.Where("pattern_id = ?", p.ID).Order("expected_date ASC").Find(&obligations).Error)
	require.Len(t, obligations, 3)

	assert_StatusEquals(t, models.ObligationMissed, obligations[0].Status)
	assert_StatusEquals(t, models.ObligationFulfilled, obligations[1].Status)
	assert_StatusEquals(t, models.ObligationExpected, obligations[2].Status)
	require.Equal(t, jan.AddDate(0, 0, 60), obligations[2].ExpectedDate)

	var streak models.PatternStreak
	require.NoError(t, db.First(&streak, "pattern_id = ?", p.ID).Error)
	require.Equal(t, 0, streak.MissedCount)
	require.Equal(t, 1, streak.CurrentStreak)
	require.InDelta(t, 0.90, streak.ConfidenceMultiplier, 0.001)

	var pattern models.Pattern
	require.NoError(t, db.First(&pattern, "id = ?", p.ID).Error)
	require.Equal(t, models.PatternActive, pattern.Status)
}

// TestMatchTransaction_AmountAgnostic mirrors spec.md §8 property 4: a
// transaction within the tolerance window matches regardless of amount.
func TestMatchTransaction_AmountAgnostic(t *testing.T) {
	db := setupMatcherTestDB(t)
	locker := setupTestLocker(t)
	expected := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	p := seedMonthlyPattern(t, db, expected)

	onTime := expected.AddDate(0, 0, 2)
	tx := createTransaction(t, db, p, onTime, decimal.NewFromInt(999999))

	m := NewMatcher(db, zap.NewNop(), locker, 6)
	require.NoError(t, m.MatchTransaction(context.Background(), tx.ID))

	var fulfilled models.Obligation
	require.NoError(t, db.Where("pattern_id = ? AND status = ?", p.ID, models.ObligationFulfilled).First(&fulfilled).Error)
	require.Equal(t, tx.ID, *fulfilled.FulfilledByTransactionID)
}

// TestMatchTransaction_RecoveryFromBroken mirrors spec.md §8 property 5: a
// broken pattern receiving a transaction within tolerance recovers to
// active with its streak restarted at 1.
func TestMatchTransaction_RecoveryFromBroken(t *testing.T) {
	db := setupMatcherTestDB(t)
	locker := setupTestLocker(t)
	expected := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	p := seedMonthlyPattern(t, db, expected)

	p.Status = models.PatternBroken
	require.NoError(t, db.Save(p).Error)
	require.NoError(t, db.Model(&models.PatternStreak{}).Where("pattern_id = ?", p.ID).
		Updates(map[string]interface{}{"missed_count": 4, "current_streak": 0}).Error)

	onTime := expected.AddDate(0, 0, 1)
	tx := createTransaction(t, db, p, onTime, decimal.NewFromInt(4300))

	m := NewMatcher(db, zap.NewNop(), locker, 6)
	require.NoError(t, m.MatchTransaction(context.Background(), tx.ID))

	var pattern models.Pattern
	require.NoError(t, db.First(&pattern, "id = ?", p.ID).Error)
	require.Equal(t, models.PatternActive, pattern.Status)

	var streak models.PatternStreak
	require.NoError(t, db.First(&streak, "pattern_id = ?", p.ID).Error)
	require.Equal(t, 1, streak.CurrentStreak)
	require.Equal(t, 0, streak.MissedCount)
}

func assert_StatusEquals(t *testing.T, want, got models.ObligationStatus) {
	t.Helper()
	require.Equal(t, want, got)
}
