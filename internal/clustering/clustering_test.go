package clustering

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

func tx(day int, month int, amount float64) models.Transaction {
	return models.Transaction{
		ID:         uuid.New(),
		OccurredAt: time.Date(2026, time.Month(month), day, 0, 0, 0, 0, time.UTC),
		Amount:     decimal.NewFromFloat(amount),
	}
}

func TestSplit_SingleRecurringSeries(t *testing.T) {
	txs := []models.Transaction{
		tx(1, 1, 1200),
		tx(1, 2, 1200),
		tx(1, 3, 1205),
		tx(1, 4, 1198),
	}

	clusters := Split(txs, Tolerance{RelativePct: 0.05, AbsoluteAmount: 20})

	assert.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Transactions, 4)
}

func TestSplit_TwoDistinctAmountSeries(t *testing.T) {
	txs := []models.Transaction{
		tx(1, 1, 15),
		tx(1, 2, 15),
		tx(1, 3, 15),
		tx(15, 1, 900),
		tx(15, 2, 900),
		tx(15, 3, 900),
	}

	clusters := Split(txs, Tolerance{RelativePct: 0.05, AbsoluteAmount: 5})

	assert.Len(t, clusters, 2)
}

func TestSplit_DropsClusterBelowMinimumSize(t *testing.T) {
	txs := []models.Transaction{
		tx(1, 1, 500),
		tx(1, 2, 500),
	}

	clusters := Split(txs, Tolerance{RelativePct: 0.05, AbsoluteAmount: 10})

	assert.Empty(t, clusters)
}

func TestWrapAwareWindow_HandlesMonthBoundary(t *testing.T) {
	lo, hi, ok := wrapAwareWindow([]int{29, 30, 1, 2})

	assert.True(t, ok)
	assert.LessOrEqual(t, (hi-lo+31)%31, 10)
}

func TestWrapAwareWindow_RejectsWideSpread(t *testing.T) {
	_, _, ok := wrapAwareWindow([]int{1, 10, 20, 30})

	assert.False(t, ok)
}

func TestMinSpanRotation_FindsTighterSpanAcrossMonthBoundary(t *testing.T) {
	rotated := MinSpanRotation([]int{31, 1, 30})

	assert.Equal(t, []int{30, 31, 31}, rotated)
}

func TestMinSpanRotation_LeavesAlreadyTightSpanAlone(t *testing.T) {
	rotated := MinSpanRotation([]int{5, 7, 9})

	assert.Equal(t, []int{5, 7, 9}, rotated)
}

func TestWithinTolerance_RespectsWiderBand(t *testing.T) {
	centroid := decimal.NewFromInt(1000)

	assert.True(t, withinTolerance(centroid, decimal.NewFromInt(1010), Tolerance{RelativePct: 0.001, AbsoluteAmount: 20}))
	assert.False(t, withinTolerance(centroid, decimal.NewFromInt(1050), Tolerance{RelativePct: 0.001, AbsoluteAmount: 20}))
}
