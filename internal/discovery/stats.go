package discovery

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// mean/stddev/cv below mirror the shape of the teacher's own time-series
// math in api/internal/analytics/trend_analyzer.go
// (calculateTrendMetrics/calculateTrendConfidence: sum, mean, variance,
// coefficient-style confidence from a slice of float64), applied here to
// interval-in-days and amount series instead of failure-rate series.

func meanFloat(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func medianInt(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]int(nil), xs...)
	sort.Ints(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return float64(sorted[n/2-1]+sorted[n/2]) / 2.0
}

func stdDevFloat(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

// coefficientOfVariation returns stddev/mean, or 0 when mean is 0 (a
// degenerate all-zero series is treated as perfectly regular rather than
// dividing by zero).
func coefficientOfVariation(xs []float64) float64 {
	m := meanFloat(xs)
	if m == 0 {
		return 0
	}
	return stdDevFloat(xs, m) / m
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func decimalsToFloats(ds []decimal.Decimal) []float64 {
	out := make([]float64, len(ds))
	for i, d := range ds {
		f, _ := d.Float64()
		out[i] = f
	}
	return out
}

func medianDecimal(ds []decimal.Decimal) decimal.Decimal {
	if len(ds) == 0 {
		return decimal.Zero
	}
	sorted := append([]decimal.Decimal(nil), ds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
}
