package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptobeacon/internal/cache"
	"cryptobeacon/internal/domain"
	"cryptobeacon/internal/forecast"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// MinForecastHistory is the shortest daily history served for a symbol.
const MinForecastHistory = 7

var (
	ErrInvalidSymbol       = errors.New("invalid symbol")
	ErrInvalidDays         = errors.New("invalid forecast horizon")
	ErrInsufficientHistory = errors.New("insufficient historical data for forecast")
	ErrForecastTimeout     = errors.New("forecast timed out")
	ErrRunsUnavailable     = errors.New("forecast run log unavailable")
)

// ForecastEngine is satisfied by *forecast.Orchestrator.
type ForecastEngine interface {
	Forecast(ctx context.Context, prices []float64, days int) forecast.Result
}

// HistorySource is satisfied by *PriceService.
type HistorySource interface {
	GetDailyCloses(ctx context.Context, symbol string, days int) ([]float64, error)
}

// RunStore is satisfied by *repository.ForecastRunRepository.
type RunStore interface {
	RecordRun(ctx context.Context, run *domain.ForecastRun) error
	RecentRuns(ctx context.Context, symbol string, limit int) ([]domain.ForecastRun, error)
}

type ForecastOptions struct {
	HistoryDays   int
	MaxDays       int
	CacheTTL      time.Duration
	Timeout       time.Duration
	MaxConcurrent int64
}

func DefaultForecastOptions() ForecastOptions {
	return ForecastOptions{
		HistoryDays:   180,
		MaxDays:       30,
		CacheTTL:      time.Hour,
		Timeout:       60 * time.Second,
		MaxConcurrent: 2,
	}
}

// ForecastService serves symbol forecasts. Model runs are CPU bound, so at
// most MaxConcurrent run at once and callers stop waiting after Timeout.
type ForecastService struct {
	tracer   trace.Tracer
	engine   ForecastEngine
	history  HistorySource
	redis    RedisClient
	recorder CacheRecorder
	runs     RunStore
	opts     ForecastOptions
	sem      *semaphore.Weighted
	now      func() time.Time
}

func NewForecastService(
	tracer trace.Tracer,
	engine ForecastEngine,
	history HistorySource,
	redisClient RedisClient,
	opts ForecastOptions,
) *ForecastService {
	def := DefaultForecastOptions()
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = def.HistoryDays
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = def.MaxDays
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = def.MaxConcurrent
	}
	return &ForecastService{
		tracer:  tracer,
		engine:  engine,
		history: history,
		redis:   redisClient,
		opts:    opts,
		sem:     semaphore.NewWeighted(opts.MaxConcurrent),
		now:     time.Now,
	}
}

func (s *ForecastService) SetCacheRecorder(r CacheRecorder) {
	s.recorder = r
}

// SetRunStore enables the per-symbol forecast run log.
func (s *ForecastService) SetRunStore(store RunStore) {
	s.runs = store
}

func (s *ForecastService) MaxDays() int { return s.opts.MaxDays }

// Models lists the forecast tiers in the order they are tried.
func (s *ForecastService) Models() []string {
	if t, ok := s.engine.(interface{ Tiers() []string }); ok {
		return t.Tiers()
	}
	return nil
}

// ForecastSymbol returns a days-ahead forecast built from the symbol's daily
// closes. Stablecoins short-circuit to a flat 1.00 forecast.
func (s *ForecastService) ForecastSymbol(ctx context.Context, symbol string, days int) (*domain.ForecastResult, error) {
	ctx, span := s.tracer.Start(ctx, "forecast-service.forecast-symbol")
	defer span.End()

	sym, ok := domain.NormalizeSymbol(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	if days < 1 || days > s.opts.MaxDays {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidDays, days, s.opts.MaxDays)
	}
	span.SetAttributes(attribute.String("symbol", sym), attribute.Int("days", days))

	if domain.Stablecoins[sym] {
		return s.stablecoin(sym, days), nil
	}

	key := cache.ForecastKey(sym, days)
	if cached := s.getCached(ctx, key); cached != nil {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached, nil
	}

	prices, err := s.history.GetDailyCloses(ctx, sym, s.opts.HistoryDays)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(prices) < MinForecastHistory {
		return nil, fmt.Errorf("%w: %s has %d daily closes", ErrInsufficientHistory, sym, len(prices))
	}

	start := time.Now()
	res, err := s.run(ctx, prices, days)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "forecast failed")
		return nil, err
	}
	elapsed := time.Since(start)

	out := s.buildResult(sym, prices, res)
	span.SetAttributes(attribute.String("model", out.Model))
	log.Info().
		Str("symbol", sym).
		Int("days", days).
		Int("history", len(prices)).
		Str("model", out.Model).
		Float64("change_pct", out.ChangePercent).
		Msg("forecast served")

	s.setCached(ctx, key, out)
	s.recordRun(ctx, out, res.ScaleFactor, elapsed)
	return out, nil
}

// RecentRuns lists the latest logged forecast runs for a symbol, newest first.
func (s *ForecastService) RecentRuns(ctx context.Context, symbol string, limit int) ([]domain.ForecastRun, error) {
	ctx, span := s.tracer.Start(ctx, "forecast-service.recent-runs")
	defer span.End()

	sym, ok := domain.NormalizeSymbol(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	if s.runs == nil {
		return nil, ErrRunsUnavailable
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.runs.RecentRuns(ctx, sym, limit)
}

// ForecastSeries forecasts a caller supplied series without caching.
func (s *ForecastService) ForecastSeries(ctx context.Context, prices []float64, days int) (*domain.SeriesForecast, error) {
	ctx, span := s.tracer.Start(ctx, "forecast-service.forecast-series")
	defer span.End()
	span.SetAttributes(attribute.Int("prices", len(prices)), attribute.Int("days", days))

	if days < 1 || days > s.opts.MaxDays {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidDays, days, s.opts.MaxDays)
	}
	if err := forecast.ValidateSeries(prices); err != nil {
		return nil, err
	}
	res, err := s.run(ctx, prices, days)
	if err != nil {
		return nil, err
	}
	return &domain.SeriesForecast{Forecast: res.Values, Model: res.Model, ScaleFactor: res.ScaleFactor}, nil
}

// run executes the engine under the concurrency cap. A run that outlives the
// timeout keeps its slot until it finishes; only the caller stops waiting.
func (s *ForecastService) run(ctx context.Context, prices []float64, days int) (forecast.Result, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if err := s.sem.Acquire(waitCtx, 1); err != nil {
		return forecast.Result{}, fmt.Errorf("%w: waiting for a forecast slot: %w", ErrForecastTimeout, err)
	}

	done := make(chan forecast.Result, 1)
	go func() {
		defer s.sem.Release(1)
		done <- s.engine.Forecast(context.WithoutCancel(ctx), prices, days)
	}()

	select {
	case res := <-done:
		return res, nil
	case <-waitCtx.Done():
		log.Warn().Dur("timeout", s.opts.Timeout).Int("days", days).Msg("forecast abandoned")
		return forecast.Result{}, fmt.Errorf("%w after %s", ErrForecastTimeout, s.opts.Timeout)
	}
}

func (s *ForecastService) buildResult(symbol string, prices []float64, res forecast.Result) *domain.ForecastResult {
	current := prices[len(prices)-1]
	predicted := current
	if len(res.Values) > 0 {
		predicted = res.Values[len(res.Values)-1]
	}
	now := s.now().UTC()
	return &domain.ForecastResult{
		Symbol:           symbol,
		CurrentPrice:     current,
		PredictedPrice:   predicted,
		ChangePercent:    changePercent(current, predicted),
		Forecast:         res.Values,
		Labels:           domain.DayLabels(now, len(res.Values)),
		HistoricalPrices: tail(prices, domain.HistoryWindow),
		Model:            res.Model,
		GeneratedAt:      now,
	}
}

func (s *ForecastService) stablecoin(symbol string, days int) *domain.ForecastResult {
	now := s.now().UTC()
	return &domain.ForecastResult{
		Symbol:           symbol,
		CurrentPrice:     1,
		PredictedPrice:   1,
		Forecast:         flat(1, days),
		Labels:           domain.DayLabels(now, days),
		HistoricalPrices: flat(1, domain.HistoryWindow),
		Model:            "stablecoin",
		IsStablecoin:     true,
		GeneratedAt:      now,
	}
}

func (s *ForecastService) getCached(ctx context.Context, key string) *domain.ForecastResult {
	if s.redis == nil {
		return nil
	}
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("key", key).Msg("redis cache read error")
		}
		s.recordCache(false)
		return nil
	}
	var out domain.ForecastResult
	if err := json.Unmarshal(data, &out); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("discarding malformed cached forecast")
		s.recordCache(false)
		return nil
	}
	s.recordCache(true)
	return &out
}

func (s *ForecastService) setCached(ctx context.Context, key string, res *domain.ForecastResult) {
	if s.redis == nil || s.opts.CacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode forecast for cache")
		return
	}
	if err := s.redis.Set(ctx, key, data, s.opts.CacheTTL).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis cache write error")
	}
}

func (s *ForecastService) recordRun(ctx context.Context, res *domain.ForecastResult, scale float64, elapsed time.Duration) {
	if s.runs == nil {
		return
	}
	run := &domain.ForecastRun{
		Symbol:         res.Symbol,
		Days:           len(res.Forecast),
		Model:          res.Model,
		ScaleFactor:    scale,
		CurrentPrice:   res.CurrentPrice,
		PredictedPrice: res.PredictedPrice,
		ChangePercent:  res.ChangePercent,
		ElapsedMS:      elapsed.Milliseconds(),
		CreatedAt:      res.GeneratedAt,
	}
	if err := s.runs.RecordRun(ctx, run); err != nil {
		log.Warn().Err(err).Str("symbol", res.Symbol).Msg("failed to log forecast run")
	}
}

func (s *ForecastService) recordCache(hit bool) {
	if s.recorder != nil {
		s.recorder.RecordCache("forecast", hit)
	}
}

// changePercent is rounded half away from zero to two places.
func changePercent(current, predicted float64) float64 {
	if current <= 0 {
		return 0
	}
	cur := decimal.NewFromFloat(current)
	pct := decimal.NewFromFloat(predicted).Sub(cur).Div(cur).Mul(decimal.NewFromInt(100))
	return pct.Round(2).InexactFloat64()
}

func tail(values []float64, n int) []float64 {
	if len(values) > n {
		values = values[len(values)-n:]
	}
	return append([]float64(nil), values...)
}

func flat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
