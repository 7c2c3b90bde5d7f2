package handler

import (
	"context"

	"cryptobeacon/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// PriceReader is satisfied by *service.PriceService.
type PriceReader interface {
	GetCurrentPrice(ctx context.Context, symbol string) (*domain.PriceSnapshot, error)
	GetCurrentPrices(ctx context.Context) ([]*domain.PriceSnapshot, error)
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error)
}

// Forecaster is satisfied by *service.ForecastService.
type Forecaster interface {
	ForecastSymbol(ctx context.Context, symbol string, days int) (*domain.ForecastResult, error)
	ForecastSeries(ctx context.Context, prices []float64, days int) (*domain.SeriesForecast, error)
	RecentRuns(ctx context.Context, symbol string, limit int) ([]domain.ForecastRun, error)
}

type Handler struct {
	tracer       trace.Tracer
	priceService PriceReader
	forecasts    Forecaster
	defaultDays  int
	apiKey       string
}

func New(tracer trace.Tracer, priceService PriceReader, forecasts Forecaster, defaultDays int, apiKey string) *Handler {
	if defaultDays <= 0 {
		defaultDays = 7
	}
	return &Handler{
		tracer:       tracer,
		priceService: priceService,
		forecasts:    forecasts,
		defaultDays:  defaultDays,
		apiKey:       apiKey,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.GET("/health", h.Health)
	api.GET("/prices", h.GetAllPrices)
	api.GET("/price/:symbol", h.GetPrice)
	api.GET("/candles/:symbol", h.GetCandles)
	api.GET("/forecast/:symbol", h.GetForecast)
	api.GET("/forecast/:symbol/runs", h.GetForecastRuns)
	api.POST("/forecast", APIKeyAuth(h.apiKey), h.PostForecast)
}
