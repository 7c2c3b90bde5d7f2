package forecast

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"cryptobeacon/internal/ml/models/lstm"
)

type fakeForecaster struct {
	name   string
	out    []float64
	err    error
	panics bool
	calls  int
	seen   []float64
}

func (f *fakeForecaster) Name() string { return f.name }

func (f *fakeForecaster) Forecast(prices []float64, days int) ([]float64, error) {
	f.calls++
	f.seen = append([]float64(nil), prices...)
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	out := make([]float64, days)
	for i := range out {
		out[i] = prices[len(prices)-1] * (1 + 0.01*float64(i))
	}
	return out, nil
}

var errFake = errors.New("fake failure")

func walk(n int, start float64) []float64 {
	out := make([]float64, n)
	p := start
	for i := range out {
		p *= 1 + 0.01*math.Sin(float64(i)/2) + 0.002
		out[i] = p
	}
	return out
}

type fakeRecorder struct {
	models   []string
	outcomes []string
}

func (r *fakeRecorder) RecordAttempt(model, outcome string, _ time.Duration) {
	r.models = append(r.models, model)
	r.outcomes = append(r.outcomes, outcome)
}

func tinySequence() lstm.Options {
	return lstm.Options{Lookback: 10, Hidden1: 4, Hidden2: 3, Dense: 4, Dropout: 0.2, Epochs: 5, BatchSize: 16, LearningRate: 0.01, Seed: 1}
}

// noisy is walk with seeded multiplicative noise.
func noisy(n int, start float64, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed))
	out := walk(n, start)
	for i := range out {
		out[i] *= 1 + 0.01*rng.NormFloat64()
	}
	return out
}
