package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Trend extrapolates a damped, exponentially weighted linear trend over the
// most recent prices. It never fails.
type Trend struct {
	Window  int
	Damping float64
	Decay   float64
	Band    float64
}

func NewTrend() *Trend {
	return &Trend{Window: 14, Damping: 0.6, Decay: 0.05, Band: 0.2}
}

func (t *Trend) Name() string { return "trend" }

func (t *Trend) Forecast(prices []float64, days int) ([]float64, error) {
	return t.Extrapolate(prices, days), nil
}

// Slope returns the damped per-day slope used by Extrapolate.
func (t *Trend) Slope(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	window := prices[len(prices)-min(t.Window, len(prices)):]
	n := len(window)
	x := make([]float64, n)
	w := make([]float64, n)
	for i := range window {
		x[i] = float64(i)
		// Residuals are scaled by exp(i/(n-1)), so squared-error weights are
		// its square.
		e := math.Exp(float64(i) / float64(n-1))
		w[i] = e * e
	}
	_, beta := stat.LinearRegression(x, window, w, false)
	return beta * t.Damping
}

// Extrapolate returns days anchored values, each within Band of the last
// price. Past 1/Decay steps the decay factor turns negative and the trend
// reverses.
func (t *Trend) Extrapolate(prices []float64, days int) []float64 {
	if days < 1 || len(prices) == 0 {
		return []float64{}
	}
	current := prices[len(prices)-1]
	if len(prices) < 2 {
		return repeat(current, days)
	}

	lo, hi := current*(1-t.Band), current*(1+t.Band)
	if lo > hi {
		lo, hi = hi, lo
	}
	slope := t.Slope(prices)
	out := make([]float64, days)
	last := current
	for i := range out {
		step := slope * (1 - t.Decay*float64(i))
		last = clamp(last+step, lo, hi)
		out[i] = last
	}
	out = Anchor(out, current)
	for i := range out {
		out[i] = clamp(out[i], lo, hi)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
