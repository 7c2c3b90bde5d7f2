package domain

import (
	"slices"
	"time"
)

// Candle represents a single OHLCV candle for an asset at a given interval.
type Candle struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// PriceSnapshot represents the latest price data for an asset.
type PriceSnapshot struct {
	Symbol          string  `json:"symbol"`
	PriceUSD        float64 `json:"price_usd"`
	Volume24h       float64 `json:"volume_24h"`
	Change24hPct    float64 `json:"change_24h_pct"`
	LastUpdatedUnix int64   `json:"last_updated_unix"`
}

// Asset is a tracked coin with a spot price source.
type Asset struct {
	Symbol      string
	CoinGeckoID string
}

// TrackedAssets is the spot price universe, in display order.
var TrackedAssets = []Asset{
	{"BTC", "bitcoin"},
	{"ETH", "ethereum"},
	{"SOL", "solana"},
	{"XRP", "ripple"},
	{"ADA", "cardano"},
	{"DOGE", "dogecoin"},
	{"DOT", "polkadot"},
	{"AVAX", "avalanche-2"},
	{"LINK", "chainlink"},
	{"MATIC", "matic-network"},
	{"SHIB", "shiba-inu"},
	{"PEPE", "pepe"},
}

// Lookup tables derived from TrackedAssets.
var (
	SupportedSymbols    []string
	CoinGeckoID         map[string]string
	CoinGeckoIDToSymbol map[string]string
)

func init() {
	SupportedSymbols = make([]string, len(TrackedAssets))
	CoinGeckoID = make(map[string]string, len(TrackedAssets))
	CoinGeckoIDToSymbol = make(map[string]string, len(TrackedAssets))
	for i, a := range TrackedAssets {
		SupportedSymbols[i] = a.Symbol
		CoinGeckoID[a.Symbol] = a.CoinGeckoID
		CoinGeckoIDToSymbol[a.CoinGeckoID] = a.Symbol
	}
}

// SupportedIntervals defines the candle intervals we store.
var SupportedIntervals = []string{"5m", "15m", "1h", "4h", "1d"}

// DailyInterval is the candle interval the forecaster consumes.
const DailyInterval = "1d"

// Closes extracts close prices, oldest first. Candles may arrive in either
// order; they are sorted by open time.
func Closes(candles []*Candle) []float64 {
	sorted := make([]*Candle, 0, len(candles))
	for _, c := range candles {
		if c != nil {
			sorted = append(sorted, c)
		}
	}
	slices.SortStableFunc(sorted, func(a, b *Candle) int { return a.OpenTime.Compare(b.OpenTime) })
	out := make([]float64, len(sorted))
	for i, c := range sorted {
		out[i] = c.Close
	}
	return out
}
