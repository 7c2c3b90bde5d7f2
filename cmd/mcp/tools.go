package main

import (
	"context"
	"time"

	"cryptobeacon/internal/domain"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Forecaster is satisfied by *service.ForecastService.
type Forecaster interface {
	ForecastSymbol(ctx context.Context, symbol string, days int) (*domain.ForecastResult, error)
	ForecastSeries(ctx context.Context, prices []float64, days int) (*domain.SeriesForecast, error)
}

type symbolInput struct {
	Symbol string `json:"symbol" jsonschema:"asset symbol such as BTC or ETH"`
	Days   int    `json:"days,omitempty" jsonschema:"forecast horizon in days, 1 to 30, default 7"`
}

type symbolOutput struct {
	Symbol           string    `json:"symbol"`
	CurrentPrice     float64   `json:"currentPrice"`
	PredictedPrice   float64   `json:"predictedPrice"`
	ChangePercent    float64   `json:"changePercent"`
	Forecast         []float64 `json:"forecast"`
	Labels           []string  `json:"labels"`
	HistoricalPrices []float64 `json:"historicalPrices"`
	Model            string    `json:"model"`
	IsStablecoin     bool      `json:"isStablecoin"`
	GeneratedAt      string    `json:"generatedAt"`
}

type seriesInput struct {
	Prices []float64 `json:"prices" jsonschema:"daily closing prices, oldest first"`
	Days   int       `json:"days,omitempty" jsonschema:"forecast horizon in days, 1 to 30, default 7"`
}

type seriesOutput struct {
	Forecast    []float64 `json:"forecast"`
	Model       string    `json:"model"`
	ScaleFactor float64   `json:"scaleFactor"`
}

type tools struct {
	forecasts   Forecaster
	defaultDays int
}

func (t *tools) days(d int) int {
	if d == 0 {
		return t.defaultDays
	}
	return d
}

func (t *tools) forecastSymbol(ctx context.Context, _ *mcp.CallToolRequest, in symbolInput) (*mcp.CallToolResult, symbolOutput, error) {
	res, err := t.forecasts.ForecastSymbol(ctx, in.Symbol, t.days(in.Days))
	if err != nil {
		return nil, symbolOutput{}, err
	}
	return nil, symbolOutput{
		Symbol:           res.Symbol,
		CurrentPrice:     res.CurrentPrice,
		PredictedPrice:   res.PredictedPrice,
		ChangePercent:    res.ChangePercent,
		Forecast:         res.Forecast,
		Labels:           res.Labels,
		HistoricalPrices: res.HistoricalPrices,
		Model:            res.Model,
		IsStablecoin:     res.IsStablecoin,
		GeneratedAt:      res.GeneratedAt.Format(time.RFC3339),
	}, nil
}

func (t *tools) forecastSeries(ctx context.Context, _ *mcp.CallToolRequest, in seriesInput) (*mcp.CallToolResult, seriesOutput, error) {
	res, err := t.forecasts.ForecastSeries(ctx, in.Prices, t.days(in.Days))
	if err != nil {
		return nil, seriesOutput{}, err
	}
	return nil, seriesOutput{Forecast: res.Forecast, Model: res.Model, ScaleFactor: res.ScaleFactor}, nil
}

func newServer(forecasts Forecaster, defaultDays int) *mcp.Server {
	if defaultDays <= 0 {
		defaultDays = 7
	}
	t := &tools{forecasts: forecasts, defaultDays: defaultDays}
	server := mcp.NewServer(&mcp.Implementation{Name: "cryptobeacon", Version: "1.0.0"}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "forecast_symbol",
		Description: "Forecast the next daily closing prices of a crypto asset from its exchange history.",
	}, t.forecastSymbol)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "forecast_series",
		Description: "Forecast the next values of a supplied daily price series.",
	}, t.forecastSeries)
	return server
}
