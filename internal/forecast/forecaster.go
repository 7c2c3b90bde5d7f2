// Package forecast produces fixed-length price forecasts from daily closes.
// An Orchestrator tries a chain of forecasters in priority order and falls
// back to a damped trend extrapolation that cannot fail.
package forecast

import (
	"fmt"
	"math"
	"sort"
)

// Forecaster predicts the next days values of a price series. Implementations
// anchor their output to the last price they were given.
type Forecaster interface {
	Name() string
	Forecast(prices []float64, days int) ([]float64, error)
}

// safeForecast isolates a forecaster: panics become ErrNumericalFit and the
// output must be days finite values.
func safeForecast(f Forecaster, prices []float64, days int) (out []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%s: %w: panic: %v", f.Name(), ErrNumericalFit, r)
		}
	}()
	out, err = f.Forecast(prices, days)
	if err != nil {
		return nil, err
	}
	if len(out) != days {
		return nil, fmt.Errorf("%s: %w: got %d values, want %d", f.Name(), ErrNumericalFit, len(out), days)
	}
	if !allFinite(out) {
		return nil, fmt.Errorf("%s: %w: non-finite output", f.Name(), ErrNumericalFit)
	}
	return out, nil
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidateSeries rejects series the core cannot meaningfully scale: empty,
// non-finite or non-positive prices.
func ValidateSeries(prices []float64) error {
	if len(prices) == 0 {
		return fmt.Errorf("%w: empty series", ErrInvalidInput)
	}
	for i, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return fmt.Errorf("%w: price %d is %v", ErrInvalidInput, i, p)
		}
	}
	return nil
}
