package discovery

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

func monthlyTx(monthsAgo int, day int) models.Transaction {
	base := time.Date(2026, 6, day, 0, 0, 0, 0, time.UTC)
	return models.Transaction{
		ID:         uuid.New(),
		OccurredAt: base.AddDate(0, -monthsAgo, 0),
		Amount:     decimal.NewFromInt(100),
	}
}

func TestComputeIntervals(t *testing.T) {
	txs := []models.Transaction{monthlyTx(2, 1), monthlyTx(1, 1), monthlyTx(0, 1)}

	intervals := computeIntervals(txs)

	assert.Len(t, intervals, 2)
	for _, d := range intervals {
		assert.InDelta(t, 30, d, 2)
	}
}

func TestTooFrequent_RejectsShortIntervals(t *testing.T) {
	txs := []models.Transaction{
		{OccurredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{OccurredAt: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)},
		{OccurredAt: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)},
	}
	intervals := computeIntervals(txs)

	reason, reject := tooFrequent(txs, intervals)
	assert.True(t, reject)
	assert.Equal(t, ReasonTooFrequent, reason)
}

func TestTooFrequent_RejectsDenseRollingWindow(t *testing.T) {
	var txs []models.Transaction
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		txs = append(txs, models.Transaction{OccurredAt: start.AddDate(0, 0, i*10)})
	}
	intervals := computeIntervals(txs)

	reason, reject := tooFrequent(txs, intervals)
	assert.True(t, reject)
	assert.Equal(t, ReasonTooManyPerWindow, reason)
}

func TestDetectStableInterval_StableMonthly(t *testing.T) {
	stability := detectStableInterval([]int{30, 31, 29, 30})

	assert.True(t, stability.Stable)
	assert.Equal(t, 30, stability.CandidateDays)
}

func TestDetectStableInterval_UnstableRejects(t *testing.T) {
	stability := detectStableInterval([]int{10, 60, 15, 90})

	assert.False(t, stability.Stable)
}

func TestSortAndDedupe_RemovesExactDuplicateTimestamps(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	txs := []models.Transaction{
		{ID: uuid.New(), OccurredAt: ts},
		{ID: uuid.New(), OccurredAt: ts},
		{ID: uuid.New(), OccurredAt: ts.AddDate(0, 0, 30)},
	}

	out := sortAndDedupe(txs)

	assert.Len(t, out, 2)
}
