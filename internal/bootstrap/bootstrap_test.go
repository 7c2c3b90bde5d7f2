package bootstrap

import (
	"context"
	"testing"
	"time"

	"cryptobeacon/internal/config"
	"cryptobeacon/internal/metrics"
	"cryptobeacon/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

func testConfig() *config.Config {
	return &config.Config{
		BinanceBaseURL:         "http://127.0.0.1:1",
		ForecastMaxDays:        30,
		ForecastHistoryDays:    90,
		ForecastTreeBackend:    "none",
		ForecastEnableEnsemble: true,
		ForecastEnableSequence: false,
		ForecastCacheTTLSecs:   60,
		ForecastTimeoutSecs:    5,
		ForecastMaxConcurrent:  3,
		ForecastMinHistory:     40,
	}
}

func TestForecastConfig(t *testing.T) {
	fc := ForecastConfig(testConfig())
	if fc.TreeBackend != "none" || !fc.EnableEnsemble || fc.EnableSequence {
		t.Fatalf("unexpected tier flags: %+v", fc)
	}
	if fc.MinHistory != 40 {
		t.Fatalf("expected min history 40, got %d", fc.MinHistory)
	}
	if fc.Now == nil {
		t.Fatal("expected clock from defaults")
	}
}

func TestForecastOptions(t *testing.T) {
	opts := ForecastOptions(testConfig())
	want := service.ForecastOptions{HistoryDays: 90, MaxDays: 30, CacheTTL: time.Minute, Timeout: 5 * time.Second, MaxConcurrent: 3}
	if opts != want {
		t.Fatalf("expected %+v, got %+v", want, opts)
	}
}

func TestNewStackWithoutStorage(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	st := NewStack(testConfig(), tracer, nil, nil, metrics.New(prometheus.NewRegistry()))
	if st.Candles != nil {
		t.Fatal("expected no candle repository without a pool")
	}
	if got := st.Orchestrator.Tiers(); len(got) != 2 || got[0] != "ensemble" || got[1] != "trend" {
		t.Fatalf("unexpected tiers: %v", got)
	}

	res, err := st.Forecasts.ForecastSymbol(context.Background(), "USDT", 3)
	if err != nil || !res.IsStablecoin || len(res.Forecast) != 3 {
		t.Fatalf("unexpected stablecoin result: %+v %v", res, err)
	}
	if _, err := st.Forecasts.RecentRuns(context.Background(), "BTC", 5); err != service.ErrRunsUnavailable {
		t.Fatalf("expected ErrRunsUnavailable, got %v", err)
	}
}
