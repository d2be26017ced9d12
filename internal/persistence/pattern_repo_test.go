package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/balajiparimelazhagan/fincoach-api/internal/discovery"
	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

func setupRepoTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Pattern{},
		&models.PatternStreak{},
		&models.PatternTransactionLink{},
		&models.Obligation{},
	))
	return db
}

func candidateTxs(n int, day int) []models.Transaction {
	base := time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC)
	out := make([]models.Transaction, n)
	for i := 0; i < n; i++ {
		out[i] = models.Transaction{
			ID:         uuid.New(),
			OccurredAt: base.AddDate(0, -i, 0),
			Amount:     decimal.NewFromInt(1000),
		}
	}
	return out
}

func baseCandidate() discovery.PatternCandidate {
	return discovery.PatternCandidate{
		UserID:                uuid.New(),
		PayeeID:               uuid.New(),
		Direction:             models.DirectionDebit,
		CurrencyID:            "AUD",
		IntervalDays:          30,
		PatternCase:           models.CaseFixedMonthly,
		AmountBehaviour:       models.AmountFixed,
		Confidence:            0.9,
		RepresentativeAmount:  decimal.NewFromInt(1000),
		AmountMin:             decimal.NewFromInt(1000),
		AmountMax:             decimal.NewFromInt(1000),
		DayWindowLow:          1,
		DayWindowHigh:         1,
		Transactions:          candidateTxs(4, 1),
		OutlierTransactionIDs: map[uuid.UUID]bool{},
	}
}

func TestUpsertPattern_CreatesNewPatternWithStreakAndObligation(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPatternRepo(db, zap.NewNop())
	candidate := baseCandidate()

	result, err := repo.UpsertPattern(context.Background(), candidate)

	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, 1, result.Pattern.DetectionVersion)

	var streak models.PatternStreak
	require.NoError(t, db.First(&streak, "pattern_id = ?", result.Pattern.ID).Error)
	assert.Equal(t, 4, streak.CurrentStreak)
	assert.Equal(t, 1.0, streak.ConfidenceMultiplier)

	var links []models.PatternTransactionLink
	require.NoError(t, db.Where("pattern_id = ?", result.Pattern.ID).Find(&links).Error)
	assert.Len(t, links, 4)

	var ob models.Obligation
	require.NoError(t, db.First(&ob, "pattern_id = ?", result.Pattern.ID).Error)
	assert.Equal(t, models.ObligationExpected, ob.Status)
	assert.Equal(t, 3, ob.ToleranceDays)
}

func TestUpsertPattern_UpdatesExistingPatternWithoutTouchingStreak(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPatternRepo(db, zap.NewNop())
	candidate := baseCandidate()

	first, err := repo.UpsertPattern(context.Background(), candidate)
	require.NoError(t, err)

	var streakBefore models.PatternStreak
	require.NoError(t, db.First(&streakBefore, "pattern_id = ?", first.Pattern.ID).Error)

	second := candidate
	second.Confidence = 0.95
	second.Transactions = append(candidateTxs(4, 1), candidateTxs(1, 1)[0])

	result, err := repo.UpsertPattern(context.Background(), second)

	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, first.Pattern.ID, result.Pattern.ID)
	assert.Equal(t, 2, result.Pattern.DetectionVersion)
	assert.Equal(t, 0.95, result.Pattern.Confidence)

	var streakAfter models.PatternStreak
	require.NoError(t, db.First(&streakAfter, "pattern_id = ?", first.Pattern.ID).Error)
	assert.Equal(t, streakBefore.CurrentStreak, streakAfter.CurrentStreak)

	var obligations []models.Obligation
	require.NoError(t, db.Where("pattern_id = ?", first.Pattern.ID).Find(&obligations).Error)
	assert.Len(t, obligations, 1)
}

func TestFindByNaturalKey_MatchesWithinAmountBand(t *testing.T) {
	db := setupRepoTestDB(t)
	candidate := baseCandidate()
	repo := NewPatternRepo(db, zap.NewNop())
	first, err := repo.UpsertPattern(context.Background(), candidate)
	require.NoError(t, err)

	drifted := candidate
	drifted.RepresentativeAmount = decimal.NewFromInt(1005)

	found, err := findByNaturalKey(db, drifted)

	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.Pattern.ID, found.ID)
}
