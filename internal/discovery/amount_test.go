package discovery

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balajiparimelazhagan/fincoach-api/internal/clustering"
	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

func amountTx(day int, amount float64) models.Transaction {
	return models.Transaction{
		ID:         uuid.New(),
		OccurredAt: time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC),
		Amount:     decimal.NewFromFloat(amount),
	}
}

func TestSplitAmountOutliers_FlagsMinorityOutlier(t *testing.T) {
	txs := []models.Transaction{
		amountTx(1, 100), amountTx(2, 101), amountTx(3, 99), amountTx(4, 98),
		amountTx(5, 250),
	}

	band, ok := splitAmountOutliers(txs, clustering.Tolerance{RelativePct: 0.05, AbsoluteAmount: 5})

	require.True(t, ok)
	assert.Len(t, band.Inliers, 4)
	assert.Len(t, band.Outliers, 1)
	assert.Equal(t, 250.0, mustFloat(band.Outliers[0].Amount))
}

func TestSplitAmountOutliers_RejectsWhenInlierFractionTooLow(t *testing.T) {
	txs := []models.Transaction{
		amountTx(1, 100), amountTx(2, 200), amountTx(3, 300),
	}

	_, ok := splitAmountOutliers(txs, clustering.Tolerance{RelativePct: 0.01, AbsoluteAmount: 1})

	assert.False(t, ok)
}

func TestClassifyAmountBehaviour(t *testing.T) {
	assert.Equal(t, models.AmountFixed, classifyAmountBehaviour(0.01))
	assert.Equal(t, models.AmountVariable, classifyAmountBehaviour(0.20))
	assert.Equal(t, models.AmountHighlyVariable, classifyAmountBehaviour(0.50))
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
