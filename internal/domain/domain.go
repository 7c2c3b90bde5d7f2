package domain

import (
	"regexp"
	"strings"
	"time"
)

// ForecastResult is the served forecast for one symbol.
type ForecastResult struct {
	Symbol           string    `json:"symbol"`
	CurrentPrice     float64   `json:"currentPrice"`
	PredictedPrice   float64   `json:"predictedPrice"`
	ChangePercent    float64   `json:"changePercent"`
	Forecast         []float64 `json:"forecast"`
	Labels           []string  `json:"labels"`
	HistoricalPrices []float64 `json:"historicalPrices"`
	Model            string    `json:"model"`
	IsStablecoin     bool      `json:"isStablecoin"`
	GeneratedAt      time.Time `json:"generatedAt"`
}

// SeriesForecastRequest asks for a forecast of a caller supplied series.
type SeriesForecastRequest struct {
	Prices []float64 `json:"prices" binding:"required,min=1"`
	Days   int       `json:"days" binding:"omitempty,min=1,max=30"`
}

// SeriesForecast is the raw result for a supplied series.
type SeriesForecast struct {
	Forecast    []float64 `json:"forecast"`
	Model       string    `json:"model"`
	ScaleFactor float64   `json:"scaleFactor"`
}

// ForecastRun is one logged model run.
type ForecastRun struct {
	ID             int64     `json:"id"`
	Symbol         string    `json:"symbol"`
	Days           int       `json:"days"`
	Model          string    `json:"model"`
	ScaleFactor    float64   `json:"scaleFactor"`
	CurrentPrice   float64   `json:"currentPrice"`
	PredictedPrice float64   `json:"predictedPrice"`
	ChangePercent  float64   `json:"changePercent"`
	ElapsedMS      int64     `json:"elapsedMs"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Stablecoins are pegged to USD and never run through the models.
var Stablecoins = map[string]bool{
	"USDT": true,
	"USDC": true,
	"DAI":  true,
	"BUSD": true,
	"TUSD": true,
}

// HistoryWindow is the number of trailing closes returned with a forecast.
const HistoryWindow = 7

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,12}$`)

// NormalizeSymbol upper-cases s and reports whether it looks like a ticker.
func NormalizeSymbol(s string) (string, bool) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	return sym, symbolPattern.MatchString(sym)
}

// BinancePair is the USDT quoted spot pair for a symbol.
func BinancePair(symbol string) string {
	return symbol + "USDT"
}

// DayLabels returns weekday abbreviations for the days following from.
func DayLabels(from time.Time, days int) []string {
	out := make([]string, days)
	for i := range out {
		out[i] = from.AddDate(0, 0, i+1).Weekday().String()[:3]
	}
	return out
}
