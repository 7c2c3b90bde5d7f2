package provider

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"cryptobeacon/internal/domain"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const coingeckoBaseURL = "https://api.coingecko.com/api/v3"

// CoinGeckoProvider serves spot prices for the tracked symbols and acts as the
// secondary daily history source behind Binance.
type CoinGeckoProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *RateLimiter
}

// NewCoinGeckoProvider allows 8 requests per minute, the free tier budget.
func NewCoinGeckoProvider(tracer trace.Tracer) *CoinGeckoProvider {
	return &CoinGeckoProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: coingeckoBaseURL,
		tracer:  tracer,
		limiter: NewRateLimiter("coingecko", 8, 7500*time.Millisecond),
	}
}

type simplePrice struct {
	USD       float64 `json:"usd"`
	Volume24h float64 `json:"usd_24h_vol"`
	Change24h float64 `json:"usd_24h_change"`
}

// FetchPrices returns a snapshot per tracked symbol from one simple/price call.
// Entries without a positive USD price are dropped.
func (p *CoinGeckoProvider) FetchPrices(ctx context.Context) (map[string]*domain.PriceSnapshot, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-prices")
	defer span.End()

	ids := make([]string, 0, len(domain.CoinGeckoID))
	for _, id := range domain.CoinGeckoID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_vol", "true")
	q.Set("include_24hr_change", "true")

	var raw map[string]simplePrice
	if err := p.getJSON(ctx, "/simple/price", q, &raw); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "simple price failed")
		return nil, fmt.Errorf("fetch prices: %w", err)
	}

	now := time.Now().Unix()
	result := make(map[string]*domain.PriceSnapshot, len(raw))
	for id, data := range raw {
		symbol, ok := domain.CoinGeckoIDToSymbol[id]
		if !ok || data.USD <= 0 {
			continue
		}
		result[symbol] = &domain.PriceSnapshot{
			Symbol:          symbol,
			PriceUSD:        data.USD,
			Volume24h:       data.Volume24h,
			Change24hPct:    data.Change24h,
			LastUpdatedUnix: now,
		}
	}
	span.SetAttributes(attribute.Int("assets", len(result)))
	return result, nil
}

// FetchMarketChart folds market_chart points into candles for each interval.
// days=1 yields roughly 5 minute points, longer ranges hourly or daily ones.
func (p *CoinGeckoProvider) FetchMarketChart(ctx context.Context, symbol string, days int, intervals []string) ([]*domain.Candle, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-market-chart")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.Int("days", days))

	id, ok := domain.CoinGeckoID[symbol]
	if !ok {
		return nil, fmt.Errorf("coingecko has no id for %s", symbol)
	}

	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("days", fmt.Sprint(days))

	var raw struct {
		Prices       [][]float64 `json:"prices"`
		TotalVolumes [][]float64 `json:"total_volumes"`
	}
	if err := p.getJSON(ctx, "/coins/"+id+"/market_chart", q, &raw); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "market chart failed")
		return nil, fmt.Errorf("fetch market chart for %s: %w", symbol, err)
	}

	var out []*domain.Candle
	for _, interval := range intervals {
		out = append(out, buildCandlesFromMarketChart(symbol, interval, raw.Prices, raw.TotalVolumes)...)
	}
	return out, nil
}

// FetchDailyCandles returns up to limit completed daily candles, oldest first.
// The trailing partial day is dropped.
func (p *CoinGeckoProvider) FetchDailyCandles(ctx context.Context, symbol string, limit int) ([]*domain.Candle, error) {
	if limit <= 0 {
		limit = 30
	}
	candles, err := p.FetchMarketChart(ctx, symbol, limit+1, []string{domain.DailyInterval})
	if err != nil {
		return nil, err
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	end := sort.Search(len(candles), func(i int) bool { return !candles[i].OpenTime.Before(today) })
	complete := candles[:end]
	if len(complete) > limit {
		complete = complete[len(complete)-limit:]
	}
	return complete, nil
}

func (p *CoinGeckoProvider) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("coingecko API error %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type volumePoint struct {
	ts  int64
	vol float64
}

// buildCandlesFromMarketChart buckets [ms, price] points into OHLC candles
// aligned to interval boundaries in UTC. Each candle takes the volume sample
// closest to its close time.
func buildCandlesFromMarketChart(symbol, interval string, prices, volumes [][]float64) []*domain.Candle {
	step := intervalToDuration(interval)
	if step == 0 || len(prices) == 0 {
		return nil
	}

	points := make([][]float64, 0, len(prices))
	for _, pt := range prices {
		if len(pt) >= 2 {
			points = append(points, pt)
		}
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i][0] < points[j][0] })

	vols := make([]volumePoint, 0, len(volumes))
	for _, v := range volumes {
		if len(v) >= 2 {
			vols = append(vols, volumePoint{ts: int64(v[0]), vol: v[1]})
		}
	}
	sort.Slice(vols, func(i, j int) bool { return vols[i].ts < vols[j].ts })

	var candles []*domain.Candle
	var cur *domain.Candle
	for _, pt := range points {
		price := pt[1]
		open := time.UnixMilli(int64(pt[0])).UTC().Truncate(step)
		if cur == nil || !cur.OpenTime.Equal(open) {
			cur = &domain.Candle{
				Symbol:   symbol,
				Interval: interval,
				OpenTime: open,
				Open:     price,
				High:     price,
				Low:      price,
			}
			candles = append(candles, cur)
		}
		cur.High = math.Max(cur.High, price)
		cur.Low = math.Min(cur.Low, price)
		cur.Close = price
	}

	for _, c := range candles {
		c.Volume = findClosestVolume(vols, c.OpenTime.Add(step).UnixMilli())
	}
	return candles
}

// findClosestVolume expects volumes sorted by ts.
func findClosestVolume(volumes []volumePoint, targetMs int64) float64 {
	if len(volumes) == 0 {
		return 0
	}
	i := sort.Search(len(volumes), func(i int) bool { return volumes[i].ts >= targetMs })
	switch {
	case i == 0:
		return volumes[0].vol
	case i == len(volumes):
		return volumes[i-1].vol
	}
	if targetMs-volumes[i-1].ts <= volumes[i].ts-targetMs {
		return volumes[i-1].vol
	}
	return volumes[i].vol
}

func intervalToDuration(interval string) time.Duration {
	switch interval {
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return 0
	}
}
