package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cryptobeacon/internal/domain"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	binanceBaseURL  = "https://api.binance.com"
	binanceMaxLimit = 1000
)

// ErrUnknownSymbol is returned when the exchange has no USDT pair for a symbol.
var ErrUnknownSymbol = errors.New("unknown symbol")

// BinanceProvider reads public daily klines. No API key is required.
type BinanceProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *RateLimiter
}

// NewBinanceProvider allows 20 requests per second, well inside the public
// weight budget.
func NewBinanceProvider(tracer trace.Tracer, baseURL string) *BinanceProvider {
	if baseURL == "" {
		baseURL = binanceBaseURL
	}
	return &BinanceProvider{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		tracer:  tracer,
		limiter: NewRateLimiter("binance", 20, 50*time.Millisecond),
	}
}

// FetchDailyCandles returns up to limit daily candles for symbol/USDT, oldest
// first.
func (p *BinanceProvider) FetchDailyCandles(ctx context.Context, symbol string, limit int) ([]*domain.Candle, error) {
	ctx, span := p.tracer.Start(ctx, "binance.fetch-daily-candles")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.Int("limit", limit))

	if limit <= 0 {
		limit = 30
	}
	if limit > binanceMaxLimit {
		limit = binanceMaxLimit
	}

	q := url.Values{}
	q.Set("symbol", domain.BinancePair(symbol))
	q.Set("interval", domain.DailyInterval)
	q.Set("limit", strconv.Itoa(limit))

	body, err := p.doRequest(ctx, p.baseURL+"/api/v3/klines?"+q.Encode())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "klines request failed")
		return nil, fmt.Errorf("fetch klines for %s: %w", symbol, err)
	}

	candles, err := parseKlines(symbol, body)
	if err != nil {
		return nil, fmt.Errorf("parse klines for %s: %w", symbol, err)
	}
	span.SetAttributes(attribute.Int("candles", len(candles)))
	return candles, nil
}

func (p *BinanceProvider) doRequest(ctx context.Context, u string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, apiErr.Msg)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("binance API error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// parseKlines decodes rows of
// [openTime, open, high, low, close, volume, closeTime, ...] where prices are
// decimal strings.
func parseKlines(symbol string, body []byte) ([]*domain.Candle, error) {
	var rows [][]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	candles := make([]*domain.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("row %d: expected at least 6 fields, got %d", i, len(row))
		}
		openMs, ok := row[0].(float64)
		if !ok {
			return nil, fmt.Errorf("row %d: invalid open time %v", i, row[0])
		}
		var vals [5]float64
		for j := range vals {
			v, err := klineFloat(row[j+1])
			if err != nil {
				return nil, fmt.Errorf("row %d field %d: %w", i, j+1, err)
			}
			vals[j] = v
		}
		candles = append(candles, &domain.Candle{
			Symbol:   symbol,
			Interval: domain.DailyInterval,
			OpenTime: time.UnixMilli(int64(openMs)).UTC(),
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		})
	}
	return candles, nil
}

func klineFloat(v any) (float64, error) {
	switch x := v.(type) {
	case string:
		return strconv.ParseFloat(x, 64)
	case float64:
		return x, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
