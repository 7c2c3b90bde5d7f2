package handler

import (
	"errors"
	"net/http"

	"cryptobeacon/internal/domain"
	"cryptobeacon/internal/forecast"
	"cryptobeacon/internal/provider"
	"cryptobeacon/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

type forecastQuery struct {
	Days *int `form:"days" binding:"omitempty,min=1,max=30"`
}

type runsQuery struct {
	Limit *int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// GetForecast godoc
// @Summary      Forecast daily closes for a crypto asset
// @Description  Runs the model chain over the asset's daily closes and returns the next days closes. Stablecoins return a flat 1.00 forecast.
// @Tags         forecast
// @Produce      json
// @Param        symbol  path   string  true   "Asset symbol (e.g., BTC, ETH)"
// @Param        days    query  int     false  "Forecast horizon in days (1-30)"  default(7)
// @Success      200  {object}  domain.ForecastResult
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Failure      504  {object}  map[string]string
// @Router       /api/forecast/{symbol} [get]
func (h *Handler) GetForecast(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-forecast")
	defer span.End()

	var q forecastQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 30"})
		return
	}
	days := h.defaultDays
	if q.Days != nil {
		days = *q.Days
	}

	symbol := c.Param("symbol")
	span.SetAttributes(attribute.String("symbol", symbol), attribute.Int("days", days))

	res, err := h.forecasts.ForecastSymbol(ctx, symbol, days)
	if err != nil {
		span.RecordError(err)
		c.JSON(forecastStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// PostForecast godoc
// @Summary      Forecast a supplied price series
// @Description  Forecasts an arbitrary daily series, oldest first. Requires X-API-Key when the server has an API key configured.
// @Tags         forecast
// @Accept       json
// @Produce      json
// @Param        request  body  domain.SeriesForecastRequest  true  "Series and horizon"
// @Param        X-API-Key  header  string  false  "API key"
// @Security     ApiKeyAuth
// @Success      200  {object}  domain.SeriesForecast
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      504  {object}  map[string]string
// @Router       /api/forecast [post]
func (h *Handler) PostForecast(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.post-forecast")
	defer span.End()

	var req domain.SeriesForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Days == 0 {
		req.Days = h.defaultDays
	}
	span.SetAttributes(attribute.Int("prices", len(req.Prices)), attribute.Int("days", req.Days))

	res, err := h.forecasts.ForecastSeries(ctx, req.Prices, req.Days)
	if err != nil {
		span.RecordError(err)
		c.JSON(forecastStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetForecastRuns godoc
// @Summary      List recent forecast runs for an asset
// @Description  Returns logged model runs, newest first. Needs the Postgres run log.
// @Tags         forecast
// @Produce      json
// @Param        symbol  path   string  true   "Asset symbol (e.g., BTC, ETH)"
// @Param        limit   query  int     false  "Number of runs (1-100)"  default(20)
// @Success      200  {array}   domain.ForecastRun
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/forecast/{symbol}/runs [get]
func (h *Handler) GetForecastRuns(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-forecast-runs")
	defer span.End()

	var q runsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}
	limit := 20
	if q.Limit != nil {
		limit = *q.Limit
	}

	runs, err := h.forecasts.RecentRuns(ctx, c.Param("symbol"), limit)
	if err != nil {
		span.RecordError(err)
		c.JSON(forecastStatus(err), gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []domain.ForecastRun{}
	}
	c.JSON(http.StatusOK, runs)
}

func forecastStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidSymbol),
		errors.Is(err, service.ErrInvalidDays),
		errors.Is(err, service.ErrInsufficientHistory),
		errors.Is(err, forecast.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrUnknownSymbol):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForecastTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, service.ErrRunsUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
