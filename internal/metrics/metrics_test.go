package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAttempt(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordAttempt("tree/gbrt", "failed", 20*time.Millisecond)
	r.RecordAttempt("ensemble", "success", time.Second)
	r.RecordAttempt("trend", "success", time.Millisecond)

	if got := testutil.ToFloat64(r.attempts.WithLabelValues("tree/gbrt", "failed")); got != 1 {
		t.Fatalf("expected 1 failed tree attempt, got %v", got)
	}
	if got := testutil.ToFloat64(r.fallbacks); got != 1 {
		t.Fatalf("expected 1 fallback, got %v", got)
	}
}

func TestRecordCache(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.RecordCache("forecast", true)
	r.RecordCache("forecast", false)
	r.RecordCache("forecast", false)

	if got := testutil.ToFloat64(r.cache.WithLabelValues("forecast", "miss")); got != 2 {
		t.Fatalf("expected 2 misses, got %v", got)
	}
}

func TestMiddlewareCountsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := New(prometheus.NewRegistry())
	router := gin.New()
	router.Use(r.Middleware())
	router.GET("/api/price/:symbol", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/price/BTC", nil))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if got := testutil.ToFloat64(r.requests.WithLabelValues("/api/price/:symbol", "418")); got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(r.requests.WithLabelValues("unmatched", "404")); got != 1 {
		t.Fatalf("expected 1 unmatched request, got %v", got)
	}
}
