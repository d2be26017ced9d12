package grouping

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

	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Transaction{},
		&models.Pattern{},
		&models.PatternTransactionLink{},
	))
	return db
}

func seedTransaction(t *testing.T, db *gorm.DB, userID, payeeID uuid.UUID, daysAgo int, amount float64) models.Transaction {
	tx := models.Transaction{
		ID:              uuid.New(),
		UserID:          userID,
		PayeeID:         payeeID,
		Direction:       models.DirectionDebit,
		CurrencyID:      "AUD",
		OccurredAt:      time.Now().UTC().AddDate(0, 0, -daysAgo),
		Amount:          decimal.NewFromFloat(amount),
		SourceMessageID: uuid.NewString(),
	}
	require.NoError(t, db.Create(&tx).Error)
	return tx
}

func TestBuildCandidateGroups_GroupsByPayeeDirectionCurrency(t *testing.T) {
	db := setupTestDB(t)
	logger := zap.NewNop()
	userID := uuid.New()
	payeeA := uuid.New()
	payeeB := uuid.New()

	seedTransaction(t, db, userID, payeeA, 90, 100)
	seedTransaction(t, db, userID, payeeA, 60, 100)
	seedTransaction(t, db, userID, payeeA, 30, 100)
	seedTransaction(t, db, userID, payeeB, 60, 50)
	seedTransaction(t, db, userID, payeeB, 30, 50)

	groups, dropped, err := BuildCandidateGroups(context.Background(), db, logger, userID, Filters{}, 3)

	require.NoError(t, err)
	assert.Len(t, groups, 1)
	assert.Len(t, groups[0].Transactions, 3)
	assert.Len(t, dropped, 1)
	assert.Equal(t, "below_minimum_group_size", dropped[0].Reason)
}

func TestBuildCandidateGroups_ExcludesAlreadyLinkedTransactions(t *testing.T) {
	db := setupTestDB(t)
	logger := zap.NewNop()
	userID := uuid.New()
	payeeA := uuid.New()

	t1 := seedTransaction(t, db, userID, payeeA, 90, 100)
	seedTransaction(t, db, userID, payeeA, 60, 100)
	seedTransaction(t, db, userID, payeeA, 30, 100)

	pattern := models.Pattern{
		ID:                   uuid.New(),
		UserID:               userID,
		PayeeID:              payeeA,
		Direction:            models.DirectionDebit,
		CurrencyID:           "AUD",
		IntervalDays:         30,
		PatternCase:          models.CaseFixedMonthly,
		AmountBehaviour:      models.AmountFixed,
		RepresentativeAmount: decimal.NewFromInt(100),
		AmountMin:            decimal.NewFromInt(100),
		AmountMax:            decimal.NewFromInt(100),
		DayWindowLow:         1,
		DayWindowHigh:        31,
		Confidence:           0.9,
		LastEvaluatedAt:      time.Now().UTC(),
	}
	require.NoError(t, db.Create(&pattern).Error)
	require.NoError(t, db.Create(&models.PatternTransactionLink{
		PatternID:     pattern.ID,
		TransactionID: t1.ID,
		LinkedAt:      time.Now().UTC(),
	}).Error)

	groups, _, err := BuildCandidateGroups(context.Background(), db, logger, userID, Filters{}, 2)

	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Transactions, 2)
}

func TestBuildCandidateGroups_FiltersByPayeeAndDirection(t *testing.T) {
	db := setupTestDB(t)
	logger := zap.NewNop()
	userID := uuid.New()
	payeeA := uuid.New()
	payeeB := uuid.New()

	seedTransaction(t, db, userID, payeeA, 90, 100)
	seedTransaction(t, db, userID, payeeA, 60, 100)
	seedTransaction(t, db, userID, payeeA, 30, 100)
	seedTransaction(t, db, userID, payeeB, 90, 100)
	seedTransaction(t, db, userID, payeeB, 60, 100)
	seedTransaction(t, db, userID, payeeB, 30, 100)

	groups, _, err := BuildCandidateGroups(context.Background(), db, logger, userID, Filters{PayeeID: &payeeA}, 3)

	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, payeeA, groups[0].Key.PayeeID)
}
