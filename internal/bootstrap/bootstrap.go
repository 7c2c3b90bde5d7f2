// Package bootstrap assembles the price and forecast services shared by the
// HTTP server, the SSH dashboard and the MCP server.
package bootstrap

import (
	"time"

	"cryptobeacon/internal/config"
	"cryptobeacon/internal/forecast"
	"cryptobeacon/internal/metrics"
	"cryptobeacon/internal/provider"
	"cryptobeacon/internal/repository"
	"cryptobeacon/internal/service"
	"cryptobeacon/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// Stack is the wired service graph.
type Stack struct {
	Prices       *service.PriceService
	Forecasts    *service.ForecastService
	Orchestrator *forecast.Orchestrator
	Candles      *repository.CandleRepository
}

// ForecastConfig maps settings onto the orchestrator configuration.
func ForecastConfig(cfg *config.Config) forecast.Config {
	fc := forecast.DefaultConfig()
	fc.TreeBackend = cfg.ForecastTreeBackend
	fc.EnableEnsemble = cfg.ForecastEnableEnsemble
	fc.EnableSequence = cfg.ForecastEnableSequence
	if cfg.ForecastMinHistory > 0 {
		fc.MinHistory = cfg.ForecastMinHistory
	}
	return fc
}

func ForecastOptions(cfg *config.Config) service.ForecastOptions {
	return service.ForecastOptions{
		HistoryDays:   cfg.ForecastHistoryDays,
		MaxDays:       cfg.ForecastMaxDays,
		CacheTTL:      time.Duration(cfg.ForecastCacheTTLSecs) * time.Second,
		Timeout:       time.Duration(cfg.ForecastTimeoutSecs) * time.Second,
		MaxConcurrent: int64(cfg.ForecastMaxConcurrent),
	}
}

// NewStack wires providers, storage and services. pool, redisClient and rec
// may be nil; the matching features are then disabled.
func NewStack(cfg *config.Config, tracer trace.Tracer, pool *pgxpool.Pool, redisClient *redis.Client, rec *metrics.Recorder) *Stack {
	st := &Stack{}

	var candles service.CandleRepository
	var runs service.RunStore
	if pool != nil {
		st.Candles = repository.NewCandleRepository(pool, tracer)
		candles = st.Candles
		runs = repository.NewForecastRunRepository(pool, tracer)
	}
	var rc service.RedisClient
	if redisClient != nil {
		rc = redisClient
	}

	coingecko := provider.NewCoinGeckoProvider(tracer)
	binance := provider.NewBinanceProvider(tracer, cfg.BinanceBaseURL)
	st.Prices = service.NewPriceService(tracer, coingecko, candles, rc, binance, coingecko)

	opts := []forecast.Option{
		forecast.WithTracer(tracer),
		forecast.WithLogger(logger.Component("forecast")),
	}
	if rec != nil {
		opts = append(opts, forecast.WithRecorder(rec))
	}
	st.Orchestrator = forecast.Build(ForecastConfig(cfg), opts...)

	st.Forecasts = service.NewForecastService(tracer, st.Orchestrator, st.Prices, rc, ForecastOptions(cfg))
	if rec != nil {
		st.Prices.SetCacheRecorder(rec)
		st.Forecasts.SetCacheRecorder(rec)
	}
	if runs != nil {
		st.Forecasts.SetRunStore(runs)
	}
	return st
}
