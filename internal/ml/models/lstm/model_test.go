package lstm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyOptions() Options {
	return Options{
		Lookback:     5,
		Hidden1:      4,
		Hidden2:      3,
		Dense:        4,
		Dropout:      0.2,
		Epochs:       15,
		BatchSize:    8,
		LearningRate: 0.01,
		Seed:         7,
	}
}

func TestDefaultOptionsStackSizes(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 64, opts.Hidden1)
	assert.Equal(t, 32, opts.Hidden2)
	assert.Equal(t, 16, opts.Dense)
	assert.Equal(t, 30, opts.Lookback)
}

func wave(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 0.3*float64(i) + 5*math.Sin(float64(i)/3)
	}
	return out
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	opts := tinyOptions()
	opts.Dropout = 0
	net := newNetwork(opts)
	window := []float64{0.1, 0.4, 0.35, 0.8, 0.6}
	target := 0.7

	net.zeroGrad()
	net.accumulate(window, target, 1, false)

	const eps = 1e-6
	for pi, p := range net.params {
		for _, i := range []int{0, len(p.w) / 2, len(p.w) - 1} {
			orig := p.w[i]
			p.w[i] = orig + eps
			up := net.predict(window) - target
			p.w[i] = orig - eps
			down := net.predict(window) - target
			p.w[i] = orig
			numeric := (up*up - down*down) / (2 * eps)
			assert.InDelta(t, numeric, p.g[i], 1e-5+1e-3*math.Abs(numeric), "param %d index %d", pi, i)
		}
	}
}

func TestFitForecastLength(t *testing.T) {
	m := New(tinyOptions())
	series := wave(60)
	require.NoError(t, m.Fit(series))
	assert.False(t, math.IsNaN(m.Loss()))

	got, err := m.Forecast(series, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for _, v := range got {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestFitDeterministic(t *testing.T) {
	series := wave(40)
	a, b := New(tinyOptions()), New(tinyOptions())
	require.NoError(t, a.Fit(series))
	require.NoError(t, b.Fit(series))
	fa, err := a.Forecast(series, 3)
	require.NoError(t, err)
	fb, err := b.Forecast(series, 3)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
}

func TestFitRequiresOneWindow(t *testing.T) {
	m := New(tinyOptions())
	assert.ErrorIs(t, m.Fit(wave(5)), ErrInsufficientData)
	require.NoError(t, m.Fit(wave(6)))

	_, err := New(tinyOptions()).Forecast(wave(10), 2)
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestFitConstantSeries(t *testing.T) {
	series := make([]float64, 20)
	for i := range series {
		series[i] = 3
	}
	m := New(tinyOptions())
	require.NoError(t, m.Fit(series))
	got, err := m.Forecast(series, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
