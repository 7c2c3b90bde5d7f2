package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptobeacon/internal/cache"
	"cryptobeacon/internal/domain"
	"cryptobeacon/internal/provider"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const priceCacheTTL = 90 * time.Second

// ErrUnsupportedSymbol is returned for symbols without a spot price source.
var ErrUnsupportedSymbol = errors.New("unsupported symbol")

type PriceProvider interface {
	FetchPrices(ctx context.Context) (map[string]*domain.PriceSnapshot, error)
	FetchMarketChart(ctx context.Context, symbol string, days int, intervals []string) ([]*domain.Candle, error)
}

// HistoryProvider returns daily candles, oldest first.
type HistoryProvider interface {
	FetchDailyCandles(ctx context.Context, symbol string, limit int) ([]*domain.Candle, error)
}

type CandleRepository interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error)
	UpsertCandles(ctx context.Context, candles []*domain.Candle) error
	DailyCloses(ctx context.Context, symbol string, days int) ([]float64, error)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// CacheRecorder observes cache hits and misses.
type CacheRecorder interface {
	RecordCache(kind string, hit bool)
}

// PriceService orchestrates price data fetching, caching, and retrieval.
type PriceService struct {
	tracer   trace.Tracer
	provider PriceProvider
	history  []HistoryProvider
	repo     CandleRepository
	redis    RedisClient
	recorder CacheRecorder
}

// NewPriceService wires the spot provider, the daily history sources in
// priority order, and optional storage. repo and redisClient may be nil.
func NewPriceService(
	tracer trace.Tracer,
	provider PriceProvider,
	repo CandleRepository,
	redisClient RedisClient,
	history ...HistoryProvider,
) *PriceService {
	return &PriceService{
		tracer:   tracer,
		provider: provider,
		history:  history,
		repo:     repo,
		redis:    redisClient,
	}
}

func (s *PriceService) SetCacheRecorder(r CacheRecorder) {
	s.recorder = r
}

// GetCurrentPrice returns the latest cached price for a symbol.
// Falls back to a live API call if cache is empty/expired.
func (s *PriceService) GetCurrentPrice(ctx context.Context, symbol string) (*domain.PriceSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "price-service.get-current-price")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	if _, ok := domain.CoinGeckoID[symbol]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSymbol, symbol)
	}

	if s.redis != nil {
		cached, err := s.getPriceCache(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("redis cache read error")
		}
		s.recordCache(cached != nil)
		if cached != nil {
			return cached, nil
		}
	}

	// Cache miss: fetch all prices (single batched API call), cache them
	prices, err := s.provider.FetchPrices(ctx)
	if err != nil {
		return nil, err
	}

	s.cachePrices(ctx, prices)

	snap, ok := prices[symbol]
	if !ok {
		return nil, fmt.Errorf("price not available for %s", symbol)
	}
	return snap, nil
}

// GetCurrentPrices returns latest cached prices for all supported symbols.
func (s *PriceService) GetCurrentPrices(ctx context.Context) ([]*domain.PriceSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "price-service.get-current-prices")
	defer span.End()

	var snapshots []*domain.PriceSnapshot
	var missing []string

	for _, symbol := range domain.SupportedSymbols {
		if s.redis != nil {
			cached, _ := s.getPriceCache(ctx, symbol)
			if cached != nil {
				snapshots = append(snapshots, cached)
				continue
			}
		}
		missing = append(missing, symbol)
	}

	if len(missing) > 0 {
		prices, err := s.provider.FetchPrices(ctx)
		if err != nil {
			return snapshots, err
		}
		s.cachePrices(ctx, prices)
		for _, symbol := range missing {
			if snap, ok := prices[symbol]; ok {
				snapshots = append(snapshots, snap)
			}
		}
	}

	return snapshots, nil
}

// GetCandles returns historical candles for a symbol and interval from Postgres.
func (s *PriceService) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	if s.repo == nil {
		return nil, errors.New("candle storage not configured")
	}
	return s.repo.GetCandles(ctx, symbol, interval, limit)
}

// GetDailyCloses returns up to days daily closes, oldest first. History
// sources are tried in order; stored candles are the last resort. An unknown
// symbol on the primary source is returned as is.
func (s *PriceService) GetDailyCloses(ctx context.Context, symbol string, days int) ([]float64, error) {
	ctx, span := s.tracer.Start(ctx, "price-service.get-daily-closes")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.Int("days", days))

	var lastErr error
	for i, h := range s.history {
		candles, err := h.FetchDailyCandles(ctx, symbol, days)
		if err == nil && len(candles) > 0 {
			s.storeCandles(ctx, candles)
			span.SetAttributes(attribute.Int("source", i))
			return domain.Closes(candles), nil
		}
		if i == 0 && errors.Is(err, provider.ErrUnknownSymbol) {
			return nil, err
		}
		if err == nil {
			err = fmt.Errorf("no candles for %s", symbol)
		}
		log.Warn().Err(err).Str("symbol", symbol).Int("source", i).Msg("daily history source failed")
		lastErr = err
	}

	if s.repo != nil {
		closes, err := s.repo.DailyCloses(ctx, symbol, days)
		if err == nil && len(closes) > 0 {
			log.Info().Str("symbol", symbol).Int("closes", len(closes)).Msg("serving daily history from storage")
			return closes, nil
		}
		if err != nil {
			lastErr = err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no history source configured")
	}
	return nil, fmt.Errorf("daily closes for %s: %w", symbol, lastErr)
}

// RefreshPrices fetches latest prices from CoinGecko and caches in Redis.
func (s *PriceService) RefreshPrices(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "price-service.refresh-prices")
	defer span.End()

	prices, err := s.provider.FetchPrices(ctx)
	if err != nil {
		return err
	}

	s.cachePrices(ctx, prices)
	log.Debug().Int("assets", len(prices)).Msg("refreshed prices")
	return nil
}

// RefreshShortCandles fetches market_chart data (days=1) and stores 5m, 15m, 1h candles.
func (s *PriceService) RefreshShortCandles(ctx context.Context, symbol string) error {
	ctx, span := s.tracer.Start(ctx, "price-service.refresh-short-candles")
	defer span.End()

	if s.repo == nil {
		return nil
	}
	candles, err := s.provider.FetchMarketChart(ctx, symbol, 1, []string{"5m", "15m", "1h"})
	if err != nil {
		return err
	}

	if err := s.repo.UpsertCandles(ctx, candles); err != nil {
		return fmt.Errorf("upsert short candles for %s: %w", symbol, err)
	}

	log.Debug().Str("symbol", symbol).Int("candles", len(candles)).Msg("refreshed short candles")
	return nil
}

// RefreshDailyCandles pulls limit daily candles from the primary history
// source and stores them.
func (s *PriceService) RefreshDailyCandles(ctx context.Context, symbol string, limit int) error {
	ctx, span := s.tracer.Start(ctx, "price-service.refresh-daily-candles")
	defer span.End()

	if s.repo == nil || len(s.history) == 0 {
		return nil
	}
	candles, err := s.history[0].FetchDailyCandles(ctx, symbol, limit)
	if err != nil {
		return err
	}
	if err := s.repo.UpsertCandles(ctx, candles); err != nil {
		return fmt.Errorf("upsert daily candles for %s: %w", symbol, err)
	}

	log.Debug().Str("symbol", symbol).Int("candles", len(candles)).Msg("refreshed daily candles")
	return nil
}

func (s *PriceService) storeCandles(ctx context.Context, candles []*domain.Candle) {
	if s.repo == nil {
		return
	}
	if err := s.repo.UpsertCandles(ctx, candles); err != nil {
		log.Warn().Err(err).Msg("failed to store daily candles")
	}
}

func (s *PriceService) recordCache(hit bool) {
	if s.recorder != nil {
		s.recorder.RecordCache("price", hit)
	}
}

// cachePrices stores every snapshot under its price key. Write failures
// only cost a later cache miss.
func (s *PriceService) cachePrices(ctx context.Context, prices map[string]*domain.PriceSnapshot) {
	if s.redis == nil {
		return
	}
	for symbol, snap := range prices {
		data, err := json.Marshal(snap)
		if err == nil {
			err = s.redis.Set(ctx, cache.PriceKey(symbol), data, priceCacheTTL).Err()
		}
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("price cache write failed")
		}
	}
}

func (s *PriceService) getPriceCache(ctx context.Context, symbol string) (*domain.PriceSnapshot, error) {
	data, err := s.redis.Get(ctx, cache.PriceKey(symbol)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, err
	}
	snapshot := new(domain.PriceSnapshot)
	if err := json.Unmarshal(data, snapshot); err != nil {
		return nil, fmt.Errorf("decode cached price for %s: %w", symbol, err)
	}
	return snapshot, nil
}
