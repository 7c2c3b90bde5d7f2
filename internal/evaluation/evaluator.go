package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"cryptobeacon/internal/forecast"
	"cryptobeacon/internal/ml/models/arima"
)

var ErrShortHistory = errors.New("not enough history for rolling evaluation")

// Options control the rolling evaluation.
type Options struct {
	Days        int
	Samples     int
	MinTrain    int
	Window      int
	Concurrency int
}

func DefaultOptions() Options {
	return Options{Days: 7, Samples: 5, MinTrain: 100, Window: 60, Concurrency: 4}
}

// Sample is one model's forecast at one test point.
type Sample struct {
	Model     string
	TrainSize int
	Forecast  []float64
	Actual    []float64
	Metrics   Metrics
	Elapsed   time.Duration
}

// Results holds every successful sample plus per-model failure counts.
type Results struct {
	Days     int
	Points   []int
	Samples  []Sample
	Failures map[string]int
}

// ByModel groups samples by model name.
func (r *Results) ByModel() map[string][]Sample {
	out := make(map[string][]Sample)
	for _, s := range r.Samples {
		out[s.Model] = append(out[s.Model], s)
	}
	return out
}

type Evaluator struct {
	models   []forecast.Forecaster
	ensemble *forecast.Ensemble
	opts     Options
	logger   zerolog.Logger
}

// DefaultModels are the primitive forecasters compared by the CLI. The
// sequence and tree models follow the tier flags in cfg.
func DefaultModels(cfg forecast.Config) []forecast.Forecaster {
	models := []forecast.Forecaster{
		forecast.NewSeasonal(cfg.Now),
		forecast.NewStatisticalWith("sarima", arima.DefaultOptions()),
		forecast.NewStatisticalWith("arima", arima.NonSeasonalOptions()),
		forecast.NewTrend(),
	}
	if cfg.EnableSequence {
		models = append(models, forecast.NewSequence(cfg.Sequence))
	}
	if factory, err := forecast.TreeFactory(cfg); err == nil && factory != nil {
		backend := strings.ToLower(strings.TrimSpace(cfg.TreeBackend))
		if backend == "" {
			backend = forecast.BackendGBRT
		}
		models = append(models, forecast.NewTree(backend, factory))
	}
	return models
}

// NewEvaluator compares models and, when ens is non-nil, the ensemble fed
// with the forecasts of models whose names match its members.
func NewEvaluator(models []forecast.Forecaster, ens *forecast.Ensemble, opts Options) *Evaluator {
	def := DefaultOptions()
	if opts.Days < 1 {
		opts.Days = def.Days
	}
	if opts.Samples < 1 {
		opts.Samples = def.Samples
	}
	if opts.MinTrain < 1 {
		opts.MinTrain = def.MinTrain
	}
	if opts.Window < 1 {
		opts.Window = def.Window
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = def.Concurrency
	}
	return &Evaluator{models: models, ensemble: ens, opts: opts, logger: log.With().Str("component", "evaluation").Logger()}
}

// TestPoints returns linspace(max(minTrain, n-window), n-days-1, samples)
// truncated to integers.
func TestPoints(n, days, samples, minTrain, window int) ([]int, error) {
	start := max(minTrain, n-window)
	stop := n - days - 1
	if samples < 1 || stop < start {
		return nil, fmt.Errorf("%w: %d prices, need %d", ErrShortHistory, n, start+days+1)
	}
	if samples == 1 {
		return []int{start}, nil
	}
	step := float64(stop-start) / float64(samples-1)
	points := make([]int, samples)
	for i := range points {
		points[i] = int(float64(start) + step*float64(i))
	}
	points[samples-1] = stop
	return points, nil
}

// Run evaluates every model at every test point. Models at one point run
// concurrently; failing models are counted, not fatal.
func (e *Evaluator) Run(ctx context.Context, prices []float64) (*Results, error) {
	days := e.opts.Days
	points, err := TestPoints(len(prices), days, e.opts.Samples, e.opts.MinTrain, e.opts.Window)
	if err != nil {
		return nil, err
	}
	res := &Results{Days: days, Points: points, Failures: make(map[string]int)}

	for i, idx := range points {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		train := prices[:idx]
		actual := prices[idx : idx+days]
		e.logger.Info().Int("sample", i+1).Int("of", len(points)).Int("train", idx).Msg("rolling evaluation")

		var mu sync.Mutex
		preds := make(map[string][]float64)
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(e.opts.Concurrency)
		for _, m := range e.models {
			g.Go(func() error {
				s, err := e.evaluate(m, train, actual)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					e.logger.Warn().Err(err).Str("model", m.Name()).Int("train", idx).Msg("model failed")
					res.Failures[m.Name()]++
					return nil
				}
				res.Samples = append(res.Samples, s)
				preds[m.Name()] = s.Forecast
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if e.ensemble != nil {
			supplied := e.ensembleInput(preds)
			if len(supplied) == 0 {
				e.logger.Warn().Int("train", idx).Msg("no member forecasts for the ensemble")
				res.Failures[e.ensemble.Name()]++
				continue
			}
			s, err := e.evaluateEnsemble(train, actual, supplied)
			if err != nil {
				res.Failures[e.ensemble.Name()]++
				continue
			}
			res.Samples = append(res.Samples, s)
		}
	}
	return res, nil
}

func (e *Evaluator) evaluate(m forecast.Forecaster, train, actual []float64) (s Sample, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", m.Name(), r)
		}
	}()
	start := time.Now()
	out, err := m.Forecast(train, len(actual))
	if err != nil {
		return Sample{}, err
	}
	return e.sample(m.Name(), train, actual, out, time.Since(start))
}

func (e *Evaluator) evaluateEnsemble(train, actual []float64, supplied map[string][]float64) (Sample, error) {
	start := time.Now()
	out, err := e.ensemble.ForecastWith(train, len(actual), supplied)
	if err != nil {
		return Sample{}, err
	}
	return e.sample(e.ensemble.Name(), train, actual, out, time.Since(start))
}

func (e *Evaluator) sample(name string, train, actual, out []float64, elapsed time.Duration) (Sample, error) {
	metrics, err := Score(actual, out)
	if err != nil {
		return Sample{}, fmt.Errorf("%s: %w", name, err)
	}
	return Sample{
		Model:     name,
		TrainSize: len(train),
		Forecast:  out,
		Actual:    actual,
		Metrics:   metrics,
		Elapsed:   elapsed,
	}, nil
}

// ensembleInput keeps the predictions of models that are ensemble members.
// An empty result means the ensemble has nothing to combine.
func (e *Evaluator) ensembleInput(preds map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64)
	for _, m := range e.ensemble.Members() {
		if p, ok := preds[m.Forecaster.Name()]; ok {
			out[m.Forecaster.Name()] = p
		}
	}
	return out
}
