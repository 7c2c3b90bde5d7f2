package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements forecast.Recorder and exposes HTTP and cache counters.
type Recorder struct {
	attempts    *prometheus.CounterVec
	attemptTime *prometheus.HistogramVec
	fallbacks   prometheus.Counter
	cache       *prometheus.CounterVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptobeacon_forecast_attempts_total",
				Help: "Forecast tier attempts by model and outcome",
			},
			[]string{"model", "outcome"},
		),
		attemptTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cryptobeacon_forecast_attempt_duration_seconds",
				Help:    "Duration of forecast tier attempts",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "cryptobeacon_forecast_trend_fallbacks_total",
			Help: "Forecasts served by the trend fallback",
		}),
		cache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptobeacon_cache_lookups_total",
				Help: "Redis cache lookups by key kind and result",
			},
			[]string{"kind", "result"},
		),
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptobeacon_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cryptobeacon_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

func (r *Recorder) RecordAttempt(model, outcome string, elapsed time.Duration) {
	r.attempts.WithLabelValues(model, outcome).Inc()
	r.attemptTime.WithLabelValues(model).Observe(elapsed.Seconds())
	if model == "trend" {
		r.fallbacks.Inc()
	}
}

// RecordCache counts a cache hit or miss for kind ("price", "forecast").
func (r *Recorder) RecordCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cache.WithLabelValues(kind, result).Inc()
}

// Middleware records request count and latency per route template.
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		r.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
