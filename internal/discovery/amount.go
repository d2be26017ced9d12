package discovery

import (
	"github.com/shopspring/decimal"

	"github.com/balajiparimelazhagan/fincoach-api/internal/clustering"
	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

const inlierFraction = 0.80

// amountBand is the result of step 5: the inlier amount band plus whichever
// transactions fell outside it.
type amountBand struct {
	Inliers  []models.Transaction
	Outliers []models.Transaction
	Centroid decimal.Decimal
}

// splitAmountOutliers implements step 5: using the same tolerance as C2,
// confirm that at least inlierFraction of the cluster falls into a single
// amount band. Transactions outside it are outliers, withheld from amount
// statistics but still linked to the pattern.
func splitAmountOutliers(txs []models.Transaction, tol clustering.Tolerance) (amountBand, bool) {
	bands := splitByAmountBand(txs, tol)
	if len(bands) == 0 {
		return amountBand{}, false
	}

	best := bands[0]
	for _, b := range bands[1:] {
		if len(b) > len(best) {
			best = b
		}
	}

	if float64(len(best))/float64(len(txs)) < inlierFraction {
		return amountBand{}, false
	}

	inlierSet := make(map[int]bool, len(best))
	for _, tx := range best {
		inlierSet[indexOf(txs, tx)] = true
	}

	band := amountBand{Centroid: meanAmount(best)}
	for i, tx := range txs {
		if inlierSet[i] {
			band.Inliers = append(band.Inliers, tx)
		} else {
			band.Outliers = append(band.Outliers, tx)
		}
	}
	return band, true
}

// splitByAmountBand is a single-cluster-seeking pass reusing C2's splitter
// (clustering.Split): it returns the transactions of every cluster Split
// keeps — amount bands, split further by day-of-month window, with any
// cluster under three transactions dropped — and the caller picks the
// largest as the inlier band (a cluster already split by C2 is expected to
// be dominated by one band, with a minority of outliers).
func splitByAmountBand(txs []models.Transaction, tol clustering.Tolerance) [][]models.Transaction {
	dummyCluster := clustering.Split(txs, tol)
	if len(dummyCluster) == 0 {
		return nil
	}
	var bands [][]models.Transaction
	for _, c := range dummyCluster {
		bands = append(bands, c.Transactions)
	}
	return bands
}

func indexOf(txs []models.Transaction, target models.Transaction) int {
	for i, tx := range txs {
		if tx.ID == target.ID {
			return i
		}
	}
	return -1
}

func meanAmount(txs []models.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range txs {
		sum = sum.Add(tx.Amount)
	}
	return sum.Div(decimal.NewFromInt(int64(len(txs))))
}

// amountCV returns the coefficient of variation of the inlier amounts, used
// both for step 7's behaviour classification and step 8's confidence score.
func amountCV(inliers []models.Transaction) float64 {
	amounts := make([]decimal.Decimal, len(inliers))
	for i, tx := range inliers {
		amounts[i] = tx.Amount
	}
	return coefficientOfVariation(decimalsToFloats(amounts))
}

// classifyAmountBehaviour implements step 7.
func classifyAmountBehaviour(cv float64) models.AmountBehaviour {
	switch {
	case cv <= 0.05:
		return models.AmountFixed
	case cv <= 0.30:
		return models.AmountVariable
	default:
		return models.AmountHighlyVariable
	}
}
