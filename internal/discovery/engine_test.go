package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balajiparimelazhagan/fincoach-api/internal/clustering"
	"github.com/balajiparimelazhagan/fincoach-api/internal/grouping"
	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

func seriesTx(monthsAgo int, amount float64) models.Transaction {
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	return models.Transaction{
		ID:         uuid.New(),
		OccurredAt: base.AddDate(0, -monthsAgo, 0),
		Amount:     decimal.NewFromFloat(amount),
	}
}

func testConfig() Config {
	return Config{
		Tolerance:     clustering.Tolerance{RelativePct: 0.05, AbsoluteAmount: 5},
		MinConfidence: 0.40,
		MinGroupSize:  3,
	}
}

func TestEvaluateCluster_EmitsFixedMonthlyCandidate(t *testing.T) {
	key := grouping.Key{PayeeID: uuid.New(), Direction: models.DirectionDebit, CurrencyID: "AUD"}
	userID := uuid.New()
	cluster := clustering.Cluster{
		Transactions: []models.Transaction{
			seriesTx(5, 1200), seriesTx(4, 1200), seriesTx(3, 1200),
			seriesTx(2, 1200), seriesTx(1, 1200), seriesTx(0, 1200),
		},
		DayWindowLow:  1,
		DayWindowHigh: 1,
	}

	candidate, rejection := evaluateCluster(context.Background(), key, userID, cluster, testConfig())

	require.Nil(t, rejection)
	require.NotNil(t, candidate)
	assert.Equal(t, models.CaseFixedMonthly, candidate.PatternCase)
	assert.Equal(t, models.AmountFixed, candidate.AmountBehaviour)
	assert.InDelta(t, 30, candidate.IntervalDays, 2)
	assert.GreaterOrEqual(t, candidate.Confidence, 0.40)
	assert.True(t, candidate.RepresentativeAmount.Equal(decimal.NewFromInt(1200)))
}

func TestEvaluateCluster_RejectsTooFewTransactions(t *testing.T) {
	key := grouping.Key{PayeeID: uuid.New(), Direction: models.DirectionDebit, CurrencyID: "AUD"}
	cluster := clustering.Cluster{
		Transactions: []models.Transaction{seriesTx(1, 100), seriesTx(0, 100)},
	}

	candidate, rejection := evaluateCluster(context.Background(), key, uuid.New(), cluster, testConfig())

	assert.Nil(t, candidate)
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonTooFewTransactions, rejection.Reason)
}

func TestEvaluateCluster_RejectsUnstableInterval(t *testing.T) {
	key := grouping.Key{PayeeID: uuid.New(), Direction: models.DirectionDebit, CurrencyID: "AUD"}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cluster := clustering.Cluster{
		Transactions: []models.Transaction{
			{ID: uuid.New(), OccurredAt: base, Amount: decimal.NewFromInt(100)},
			{ID: uuid.New(), OccurredAt: base.AddDate(0, 0, 15), Amount: decimal.NewFromInt(100)},
			{ID: uuid.New(), OccurredAt: base.AddDate(0, 0, 80), Amount: decimal.NewFromInt(100)},
			{ID: uuid.New(), OccurredAt: base.AddDate(0, 0, 95), Amount: decimal.NewFromInt(100)},
		},
	}

	candidate, rejection := evaluateCluster(context.Background(), key, uuid.New(), cluster, testConfig())

	assert.Nil(t, candidate)
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonUnstableInterval, rejection.Reason)
}
