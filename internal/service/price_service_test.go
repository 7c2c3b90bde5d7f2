package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"cryptobeacon/internal/domain"
	"cryptobeacon/internal/provider"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

func TestPriceService_GetCurrentPriceCacheHit(t *testing.T) {
	t.Parallel()

	redis := newFakeRedis()
	snap := &domain.PriceSnapshot{Symbol: "BTC", PriceUSD: 123.45}
	data, _ := json.Marshal(snap)
	_ = redis.Set(context.Background(), "price:BTC", data, 0)

	svc := NewPriceService(testTracer, &mockProvider{}, &mockCandleRepo{}, redis)

	got, err := svc.GetCurrentPrice(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PriceUSD != snap.PriceUSD {
		t.Fatalf("expected %.2f, got %.2f", snap.PriceUSD, got.PriceUSD)
	}
}

func TestPriceService_GetCurrentPriceFetchesOnMiss(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		prices: map[string]*domain.PriceSnapshot{
			"BTC": {Symbol: "BTC", PriceUSD: 42},
		},
	}
	redis := newFakeRedis()
	svc := NewPriceService(testTracer, provider, &mockCandleRepo{}, redis)

	got, err := svc.GetCurrentPrice(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Symbol != "BTC" || got.PriceUSD != 42 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if provider.fetchPricesCalls != 1 {
		t.Fatalf("expected FetchPrices to be called once, got %d", provider.fetchPricesCalls)
	}
	if _, ok := redis.data["price:BTC"]; !ok {
		t.Fatalf("price not cached")
	}
}

func TestPriceService_GetCurrentPriceUnsupported(t *testing.T) {
	t.Parallel()

	svc := NewPriceService(testTracer, &mockProvider{}, &mockCandleRepo{}, nil)
	if _, err := svc.GetCurrentPrice(context.Background(), "FAKE"); err == nil {
		t.Fatal("expected error for unsupported symbol")
	}
}

func TestPriceService_GetCurrentPricesUsesCache(t *testing.T) {
	t.Parallel()

	redis := newFakeRedis()
	cached := &domain.PriceSnapshot{Symbol: "BTC", PriceUSD: 1}
	data, _ := json.Marshal(cached)
	_ = redis.Set(context.Background(), "price:BTC", data, 0)

	prices := make(map[string]*domain.PriceSnapshot)
	for _, symbol := range domain.SupportedSymbols {
		if symbol == "BTC" {
			continue
		}
		prices[symbol] = &domain.PriceSnapshot{Symbol: symbol, PriceUSD: float64(len(symbol))}
	}

	provider := &mockProvider{prices: prices}
	svc := NewPriceService(testTracer, provider, &mockCandleRepo{}, redis)

	snapshots, err := svc.GetCurrentPrices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.fetchPricesCalls != 1 {
		t.Fatalf("expected fetch once, got %d", provider.fetchPricesCalls)
	}
	if len(snapshots) != len(domain.SupportedSymbols) {
		t.Fatalf("expected %d snapshots, got %d", len(domain.SupportedSymbols), len(snapshots))
	}
}

func TestPriceService_GetCurrentPricesNoDuplicates(t *testing.T) {
	t.Parallel()

	redis := newFakeRedis()
	data, _ := json.Marshal(&domain.PriceSnapshot{Symbol: "BTC", PriceUSD: 1})
	_ = redis.Set(context.Background(), "price:BTC", data, 0)

	prices := make(map[string]*domain.PriceSnapshot)
	for _, symbol := range domain.SupportedSymbols {
		prices[symbol] = &domain.PriceSnapshot{Symbol: symbol, PriceUSD: 2}
	}
	svc := NewPriceService(testTracer, &mockProvider{prices: prices}, &mockCandleRepo{}, redis)

	snapshots, err := svc.GetCurrentPrices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := make(map[string]int)
	for _, snap := range snapshots {
		seen[snap.Symbol]++
	}
	if seen["BTC"] != 1 {
		t.Fatalf("expected BTC once, got %d", seen["BTC"])
	}
	if len(snapshots) != len(domain.SupportedSymbols) {
		t.Fatalf("expected %d snapshots, got %d", len(domain.SupportedSymbols), len(snapshots))
	}
}

func TestPriceService_CacheFailuresFallBackToProvider(t *testing.T) {
	t.Parallel()

	redis := newFakeRedis()
	redis.data["price:BTC"] = []byte("{not json")
	redis.setErr = errors.New("read only replica")
	provider := &mockProvider{prices: map[string]*domain.PriceSnapshot{"BTC": {Symbol: "BTC", PriceUSD: 42}}}
	svc := NewPriceService(testTracer, provider, &mockCandleRepo{}, redis)

	snap, err := svc.GetCurrentPrice(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.PriceUSD != 42 || provider.fetchPricesCalls != 1 {
		t.Fatalf("expected live price, got %+v after %d fetches", snap, provider.fetchPricesCalls)
	}
}

func TestPriceService_RefreshPricesCachesAll(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		prices: map[string]*domain.PriceSnapshot{
			"BTC": {Symbol: "BTC", PriceUSD: 10},
			"ETH": {Symbol: "ETH", PriceUSD: 20},
		},
	}
	redis := newFakeRedis()
	svc := NewPriceService(testTracer, provider, &mockCandleRepo{}, redis)

	if err := svc.RefreshPrices(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.fetchPricesCalls != 1 {
		t.Fatalf("expected fetch once, got %d", provider.fetchPricesCalls)
	}
	if len(redis.data) != 2 {
		t.Fatalf("expected cached entries, got %d", len(redis.data))
	}
}

func TestPriceService_RefreshShortCandles(t *testing.T) {
	t.Parallel()

	candles := []*domain.Candle{{Symbol: "BTC", Interval: "5m"}}
	provider := &mockProvider{marketCandles: candles}
	repo := &mockCandleRepo{}
	svc := NewPriceService(testTracer, provider, repo, nil)

	if err := svc.RefreshShortCandles(context.Background(), "BTC"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.lastMarketSymbol != "BTC" || provider.lastMarketDays != 1 {
		t.Fatalf("unexpected market chart args: %+v", provider)
	}
	if repo.upsertCalls != 1 || len(repo.upsertArg) != 1 {
		t.Fatalf("expected 1 upsert call, got %d", repo.upsertCalls)
	}
}

func TestPriceService_RefreshDailyCandles(t *testing.T) {
	t.Parallel()

	history := &mockHistory{candles: []*domain.Candle{{Symbol: "BTC", Interval: "1d", Close: 1}}}
	repo := &mockCandleRepo{}
	svc := NewPriceService(testTracer, &mockProvider{}, repo, nil, history)

	if err := svc.RefreshDailyCandles(context.Background(), "BTC", 180); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if history.lastLimit != 180 {
		t.Fatalf("expected limit=180, got %d", history.lastLimit)
	}
	if repo.upsertCalls != 1 || repo.upsertArg[0].Interval != "1d" {
		t.Fatalf("unexpected upsert payload: %+v", repo.upsertArg)
	}
}

func TestPriceService_GetDailyClosesPrimary(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	primary := &mockHistory{candles: []*domain.Candle{
		{Symbol: "BTC", OpenTime: base.AddDate(0, 0, 1), Close: 2},
		{Symbol: "BTC", OpenTime: base, Close: 1},
	}}
	secondary := &mockHistory{}
	repo := &mockCandleRepo{}
	svc := NewPriceService(testTracer, &mockProvider{}, repo, nil, primary, secondary)

	closes, err := svc.GetDailyCloses(context.Background(), "BTC", 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(closes) != 2 || closes[0] != 1 || closes[1] != 2 {
		t.Fatalf("unexpected closes: %v", closes)
	}
	if secondary.calls != 0 {
		t.Fatal("secondary source should not be called")
	}
	if repo.upsertCalls != 1 {
		t.Fatalf("expected fetched candles to be stored, got %d upserts", repo.upsertCalls)
	}
}

func TestPriceService_GetDailyClosesUnknownSymbol(t *testing.T) {
	t.Parallel()

	primary := &mockHistory{err: fmt.Errorf("wrapped: %w", provider.ErrUnknownSymbol)}
	secondary := &mockHistory{}
	svc := NewPriceService(testTracer, &mockProvider{}, &mockCandleRepo{}, nil, primary, secondary)

	_, err := svc.GetDailyCloses(context.Background(), "NOPE", 30)
	if !errors.Is(err, provider.ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
	if secondary.calls != 0 {
		t.Fatal("secondary source should not be called for unknown symbols")
	}
}

func TestPriceService_GetDailyClosesFallsBack(t *testing.T) {
	t.Parallel()

	primary := &mockHistory{err: errors.New("exchange down")}
	secondary := &mockHistory{candles: []*domain.Candle{{Close: 5}}}
	svc := NewPriceService(testTracer, &mockProvider{}, nil, nil, primary, secondary)

	closes, err := svc.GetDailyCloses(context.Background(), "BTC", 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(closes) != 1 || closes[0] != 5 {
		t.Fatalf("unexpected closes: %v", closes)
	}
}

func TestPriceService_GetDailyClosesFromStorage(t *testing.T) {
	t.Parallel()

	primary := &mockHistory{err: errors.New("exchange down")}
	repo := &mockCandleRepo{closes: []float64{8, 9}}
	svc := NewPriceService(testTracer, &mockProvider{}, repo, nil, primary)

	closes, err := svc.GetDailyCloses(context.Background(), "BTC", 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(closes) != 2 || closes[1] != 9 {
		t.Fatalf("unexpected closes: %v", closes)
	}
	if repo.lastClosesSymbol != "BTC" || repo.lastClosesDays != 60 {
		t.Fatalf("unexpected repo args: %s %d", repo.lastClosesSymbol, repo.lastClosesDays)
	}

	repo.closes = nil
	if _, err := svc.GetDailyCloses(context.Background(), "BTC", 60); err == nil {
		t.Fatal("expected error when no source has data")
	}
}

func TestPriceService_GetCandles(t *testing.T) {
	t.Parallel()

	repo := &mockCandleRepo{
		getResp: []*domain.Candle{{Symbol: "BTC", Interval: "1h"}},
	}
	svc := NewPriceService(testTracer, &mockProvider{}, repo, nil)

	candles, err := svc.GetCandles(context.Background(), "BTC", "1h", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastGetSymbol != "BTC" || repo.lastGetInterval != "1h" || repo.lastGetLimit != 5 {
		t.Fatalf("unexpected repo args: %s %s %d", repo.lastGetSymbol, repo.lastGetInterval, repo.lastGetLimit)
	}
	if len(candles) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(candles))
	}
}

type mockProvider struct {
	prices        map[string]*domain.PriceSnapshot
	marketCandles []*domain.Candle
	priceErr      error
	marketErr     error

	fetchPricesCalls    int
	marketCalls         int
	lastMarketSymbol    string
	lastMarketDays      int
	lastMarketIntervals []string
}

func (m *mockProvider) FetchPrices(ctx context.Context) (map[string]*domain.PriceSnapshot, error) {
	m.fetchPricesCalls++
	if m.priceErr != nil {
		return nil, m.priceErr
	}
	return m.prices, nil
}

func (m *mockProvider) FetchMarketChart(ctx context.Context, symbol string, days int, intervals []string) ([]*domain.Candle, error) {
	m.marketCalls++
	m.lastMarketSymbol = symbol
	m.lastMarketDays = days
	m.lastMarketIntervals = append([]string(nil), intervals...)
	if m.marketErr != nil {
		return nil, m.marketErr
	}
	return m.marketCandles, nil
}

type mockHistory struct {
	candles   []*domain.Candle
	err       error
	calls     int
	lastLimit int
}

func (m *mockHistory) FetchDailyCandles(ctx context.Context, symbol string, limit int) ([]*domain.Candle, error) {
	m.calls++
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.candles, nil
}

type mockCandleRepo struct {
	getResp []*domain.Candle
	getErr  error

	lastGetSymbol   string
	lastGetInterval string
	lastGetLimit    int

	upsertArg   []*domain.Candle
	upsertErr   error
	upsertCalls int

	closes           []float64
	lastClosesSymbol string
	lastClosesDays   int
}

func (m *mockCandleRepo) DailyCloses(ctx context.Context, symbol string, days int) ([]float64, error) {
	m.lastClosesSymbol = symbol
	m.lastClosesDays = days
	return m.closes, nil
}

func (m *mockCandleRepo) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	m.lastGetSymbol = symbol
	m.lastGetInterval = interval
	m.lastGetLimit = limit
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.getResp, nil
}

func (m *mockCandleRepo) UpsertCandles(ctx context.Context, candles []*domain.Candle) error {
	m.upsertCalls++
	m.upsertArg = candles
	if m.upsertErr != nil {
		return m.upsertErr
	}
	return nil
}

type fakeRedis struct {
	data   map[string][]byte
	setErr error
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte)}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = append([]byte(nil), v...)
	case string:
		f.data[key] = []byte(v)
	default:
		bytes, _ := json.Marshal(v)
		f.data[key] = bytes
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(string(v), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}
