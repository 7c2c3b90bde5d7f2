package forecast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMinHistory is the shortest series for which anything other than the
// trend fallback is attempted.
const DefaultMinHistory = 30

// Outcome labels reported to a Recorder.
const (
	OutcomeSuccess      = "success"
	OutcomeInsufficient = "insufficient_data"
	OutcomeUnavailable  = "unavailable"
	OutcomeFailed       = "failed"
)

// Recorder observes every tier attempt.
type Recorder interface {
	RecordAttempt(model, outcome string, elapsed time.Duration)
}

// Attempt describes one tier attempt within a request.
type Attempt struct {
	Model   string
	Err     error
	Elapsed time.Duration
}

// Result is the forecast plus how it was produced.
type Result struct {
	Values      []float64
	Model       string
	ScaleFactor float64
	Attempts    []Attempt
}

type Orchestrator struct {
	tiers      []Forecaster
	fallback   *Trend
	minHistory int
	logger     zerolog.Logger
	tracer     trace.Tracer
	recorder   Recorder
}

type Option func(*Orchestrator)

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithMinHistory(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.minHistory = n
		}
	}
}

// NewOrchestrator tries tiers in order, then the trend fallback.
func NewOrchestrator(tiers []Forecaster, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tiers:      append([]Forecaster(nil), tiers...),
		fallback:   NewTrend(),
		minHistory: DefaultMinHistory,
		logger:     log.Logger,
		tracer:     otel.Tracer("cryptobeacon/forecast"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Tiers returns the names of the configured tiers in priority order.
func (o *Orchestrator) Tiers() []string {
	out := make([]string, 0, len(o.tiers)+1)
	for _, t := range o.tiers {
		out = append(out, t.Name())
	}
	return append(out, o.fallback.Name())
}

// Forecast never fails: an empty series or non-positive horizon yields an
// empty result and every other input yields exactly days values.
func (o *Orchestrator) Forecast(ctx context.Context, prices []float64, days int) Result {
	ctx, span := o.tracer.Start(ctx, "forecast.orchestrate")
	defer span.End()
	span.SetAttributes(attribute.Int("prices", len(prices)), attribute.Int("days", days))

	if len(prices) == 0 || days < 1 {
		o.logger.Debug().Int("prices", len(prices)).Int("days", days).Msg("empty forecast request")
		return Result{Values: []float64{}, ScaleFactor: 1}
	}

	if len(prices) < o.minHistory {
		o.logger.Info().
			Int("prices", len(prices)).
			Int("min_history", o.minHistory).
			Msg("short series, using trend fallback")
		start := time.Now()
		values := o.fallback.Extrapolate(prices, days)
		o.record(o.fallback.Name(), nil, time.Since(start))
		span.SetAttributes(attribute.String("model", o.fallback.Name()))
		return Result{Values: values, Model: o.fallback.Name(), ScaleFactor: 1}
	}

	factor := ScaleFactor(prices)
	scaled := prices
	if factor != 1 {
		o.logger.Info().Float64("factor", factor).Msg("low-value series, scaling prices")
		scaled = Scale(prices, factor)
	}
	span.SetAttributes(attribute.Float64("scale_factor", factor))

	res := Result{ScaleFactor: factor}
	for i, tier := range o.tiers {
		start := time.Now()
		out, err := o.attempt(ctx, tier, scaled, days)
		elapsed := time.Since(start)
		res.Attempts = append(res.Attempts, Attempt{Model: tier.Name(), Err: err, Elapsed: elapsed})
		o.record(tier.Name(), err, elapsed)
		if err == nil {
			o.logger.Info().Str("model", tier.Name()).Dur("elapsed", elapsed).Msg("forecast generated")
			res.Values = Descale(out, factor)
			res.Model = tier.Name()
			span.SetAttributes(attribute.String("model", res.Model))
			return res
		}
		next := o.fallback.Name()
		if i+1 < len(o.tiers) {
			next = o.tiers[i+1].Name()
		}
		o.logger.Warn().Err(err).Str("model", tier.Name()).Str("next", next).Msg("forecast tier failed")
	}

	start := time.Now()
	out := o.fallback.Extrapolate(scaled, days)
	o.record(o.fallback.Name(), nil, time.Since(start))
	res.Attempts = append(res.Attempts, Attempt{Model: o.fallback.Name(), Elapsed: time.Since(start)})
	res.Values = Descale(out, factor)
	res.Model = o.fallback.Name()
	span.SetAttributes(attribute.String("model", res.Model))
	return res
}

func (o *Orchestrator) attempt(ctx context.Context, tier Forecaster, prices []float64, days int) ([]float64, error) {
	_, span := o.tracer.Start(ctx, "forecast.tier", trace.WithAttributes(attribute.String("model", tier.Name())))
	defer span.End()
	out, err := safeForecast(tier, prices, days)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tier failed")
	}
	return out, err
}

func (o *Orchestrator) record(model string, err error, elapsed time.Duration) {
	if o.recorder == nil {
		return
	}
	o.recorder.RecordAttempt(model, outcome(err), elapsed)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrInsufficientData):
		return OutcomeInsufficient
	case errors.Is(err, ErrModelUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeFailed
	}
}

var (
	defaultOnce sync.Once
	defaultOrch *Orchestrator
)

// Generate runs the default orchestrator and returns only the values.
func Generate(prices []float64, days int) []float64 {
	defaultOnce.Do(func() {
		defaultOrch = Build(DefaultConfig())
	})
	return defaultOrch.Forecast(context.Background(), prices, days).Values
}
