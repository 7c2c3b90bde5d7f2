package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const klinesFixture = `[
 [1735689600000,"93576.00","95151.15","92888.00","94591.79","10373.32613",1735775999999,"976013338.11",1443837,"5142.92","483858557.37","0"],
 [1735776000000,"94591.78","97839.50","94392.00","96984.79","21970.48948",1735862399999,"2109425466.37",2792661,"11205.90","1075991436.51","0"]
]`

func TestParseKlines(t *testing.T) {
	candles, err := parseKlines("BTC", []byte(klinesFixture))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	first := candles[0]
	if !first.OpenTime.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected open time %v", first.OpenTime)
	}
	if first.Close != 94591.79 || first.Interval != "1d" || first.Symbol != "BTC" {
		t.Fatalf("unexpected candle: %+v", first)
	}
	if candles[1].Volume != 21970.48948 {
		t.Fatalf("unexpected volume %f", candles[1].Volume)
	}
}

func TestParseKlinesRejectsShortRows(t *testing.T) {
	if _, err := parseKlines("BTC", []byte(`[[1735689600000,"1","2"]]`)); err == nil {
		t.Fatal("expected error for short row")
	}
	if _, err := parseKlines("BTC", []byte(`[[1735689600000,"1","2","3","x","5"]]`)); err == nil {
		t.Fatal("expected error for malformed price")
	}
}

func TestFetchDailyCandles(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(klinesFixture))
	}))
	defer srv.Close()

	p := NewBinanceProvider(trace.NewNoopTracerProvider().Tracer("test"), srv.URL)
	candles, err := p.FetchDailyCandles(context.Background(), "BTC", 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if gotQuery != "interval=1d&limit=1000&symbol=BTCUSDT" {
		t.Fatalf("unexpected query %s", gotQuery)
	}
}

func TestFetchDailyCandlesUnknownSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	p := NewBinanceProvider(trace.NewNoopTracerProvider().Tracer("test"), srv.URL)
	_, err := p.FetchDailyCandles(context.Background(), "NOPE", 30)
	if !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestFetchDailyCandlesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewBinanceProvider(trace.NewNoopTracerProvider().Tracer("test"), srv.URL)
	_, err := p.FetchDailyCandles(context.Background(), "BTC", 30)
	if err == nil || errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("expected generic error, got %v", err)
	}
}
