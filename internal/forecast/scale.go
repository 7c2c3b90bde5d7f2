package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	// scaleThreshold is the mean price below which a series is rescaled.
	scaleThreshold = 0.01
	// scaleTarget is the mean the rescaled series is brought close to.
	scaleTarget = 10.0
)

// ScaleFactor returns 1 for series whose mean is at least one cent and
// otherwise the power of ten that brings the mean closest to 10.
func ScaleFactor(prices []float64) float64 {
	if len(prices) == 0 {
		return 1
	}
	mean := stat.Mean(prices, nil)
	if mean >= scaleThreshold || mean <= 0 || math.IsNaN(mean) {
		return 1
	}
	return math.Pow(10, math.RoundToEven(math.Log10(scaleTarget/mean)))
}

// Scale multiplies every price by factor.
func Scale(prices []float64, factor float64) []float64 {
	out := make([]float64, len(prices))
	for i, p := range prices {
		out[i] = p * factor
	}
	return out
}

// Descale divides every value by factor.
func Descale(values []float64, factor float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v / factor
	}
	return out
}
