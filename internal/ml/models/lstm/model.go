// Package lstm trains a small stacked LSTM regressor on a single price series
// and forecasts by feeding predictions back into the input window.
package lstm

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInsufficientData = errors.New("lstm: insufficient data")
	ErrNotFitted        = errors.New("lstm: model not fitted")
	ErrDiverged         = errors.New("lstm: training diverged")
)

type Options struct {
	Lookback     int
	Hidden1      int
	Hidden2      int
	Dense        int
	Dropout      float64
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         uint64
}

func DefaultOptions() Options {
	return Options{
		Lookback:     30,
		Hidden1:      64,
		Hidden2:      32,
		Dense:        16,
		Dropout:      0.2,
		Epochs:       50,
		BatchSize:    16,
		LearningRate: 0.001,
		Seed:         42,
	}
}

type Model struct {
	opts     Options
	net      *network
	min, max float64
	loss     float64
}

func New(opts Options) *Model {
	def := DefaultOptions()
	if opts.Lookback <= 0 {
		opts.Lookback = def.Lookback
	}
	if opts.Hidden1 <= 0 {
		opts.Hidden1 = def.Hidden1
	}
	if opts.Hidden2 <= 0 {
		opts.Hidden2 = def.Hidden2
	}
	if opts.Dense <= 0 {
		opts.Dense = def.Dense
	}
	if opts.Dropout < 0 || opts.Dropout >= 1 {
		opts.Dropout = def.Dropout
	}
	if opts.Epochs <= 0 {
		opts.Epochs = def.Epochs
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = def.LearningRate
	}
	return &Model{opts: opts}
}

// MinHistory is the shortest series that yields one training window.
func (m *Model) MinHistory() int {
	return m.opts.Lookback + 1
}

// Loss is the mean squared error of the final training epoch on the [0,1]
// scale.
func (m *Model) Loss() float64 {
	return m.loss
}

func (m *Model) scale(v float64) float64 {
	return (v - m.min) / (m.max - m.min)
}

func (m *Model) unscale(v float64) float64 {
	return v*(m.max-m.min) + m.min
}

func (m *Model) Fit(series []float64) error {
	if len(series) < m.MinHistory() {
		return fmt.Errorf("%w: need %d points, got %d", ErrInsufficientData, m.MinHistory(), len(series))
	}
	m.min, m.max = math.Inf(1), math.Inf(-1)
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite input", ErrDiverged)
		}
		m.min = math.Min(m.min, v)
		m.max = math.Max(m.max, v)
	}
	if m.max == m.min {
		m.max = m.min + 1
	}
	scaled := make([]float64, len(series))
	for i, v := range series {
		scaled[i] = m.scale(v)
	}

	lb := m.opts.Lookback
	samples := len(scaled) - lb
	order := make([]int, samples)
	for i := range order {
		order[i] = i
	}

	m.net = newNetwork(m.opts)
	for epoch := 0; epoch < m.opts.Epochs; epoch++ {
		m.net.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		var total float64
		for start := 0; start < samples; start += m.opts.BatchSize {
			end := min(start+m.opts.BatchSize, samples)
			scale := 1 / float64(end-start)
			for _, s := range order[start:end] {
				total += m.net.accumulate(scaled[s:s+lb], scaled[s+lb], scale, true)
			}
			m.net.adam(m.opts.LearningRate)
		}
		m.loss = total / float64(samples)
		if math.IsNaN(m.loss) || math.IsInf(m.loss, 0) {
			m.net = nil
			return fmt.Errorf("%w: epoch %d", ErrDiverged, epoch+1)
		}
	}
	return nil
}

// Forecast predicts days values after history, which must be at least one
// lookback window long.
func (m *Model) Forecast(history []float64, days int) ([]float64, error) {
	if m.net == nil {
		return nil, ErrNotFitted
	}
	lb := m.opts.Lookback
	if len(history) < lb {
		return nil, fmt.Errorf("%w: need %d points of history", ErrInsufficientData, lb)
	}
	window := make([]float64, lb)
	for i, v := range history[len(history)-lb:] {
		window[i] = m.scale(v)
	}
	out := make([]float64, 0, days)
	for d := 0; d < days; d++ {
		next := m.net.predict(window)
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return nil, fmt.Errorf("%w: non-finite prediction", ErrDiverged)
		}
		out = append(out, m.unscale(next))
		copy(window, window[1:])
		window[lb-1] = next
	}
	return out, nil
}
