package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptobeacon/internal/bootstrap"
	"cryptobeacon/internal/bot"
	"cryptobeacon/internal/cache"
	"cryptobeacon/internal/config"
	"cryptobeacon/internal/db"
	"cryptobeacon/internal/handler"
	"cryptobeacon/internal/job"
	"cryptobeacon/internal/metrics"
	"cryptobeacon/internal/repository"
	"cryptobeacon/pkg/logger"
	"cryptobeacon/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "cryptobeacon/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initLoggerFunc         = logger.Init
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	newStackFunc           = bootstrap.NewStack
	newPricePollerFunc     = job.NewPricePoller
	startPollerFunc        = func(p *job.PricePoller, ctx context.Context) { go p.Start(ctx) }
	startTelegramBotFunc   = bot.StartTelegramBot
	newHandlerFunc         = handler.New
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Cryptobeacon API
// @version         1.0
// @description     Daily price forecasts for crypto assets.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-Key
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()
	if err := initLoggerFunc(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		log.Warn().Err(err).Msg("logger configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	defer db.Close()
	initRedisFunc(ctx)
	defer cache.Close()

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer tracing.Shutdown(tp)

	reg := newRegistry()
	recorder := metrics.New(reg)

	stack := newStackFunc(cfg, tracer, db.Pool, cache.Client, recorder)
	if stack.Candles != nil {
		if err := repository.EnsureSchema(ctx, db.Pool, tracer); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure database schema")
		}
	}
	log.Info().Strs("tiers", stack.Orchestrator.Tiers()).Msg("forecast chain ready")

	// Start price poller (background goroutines, stopped by ctx cancel)
	poller := newPricePollerFunc(tracer, stack.Prices, cfg.CoinGeckoPollSecs, cfg.ForecastHistoryDays)
	if cfg.ForecastWarmCache {
		poller.SetWarmer(stack.Forecasts, cfg.ForecastDefaultDays)
	}
	startPollerFunc(poller, ctx)

	// Start Telegram bot
	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	startTelegramBotFunc(stack.Prices, stack.Forecasts)

	h := newHandlerFunc(tracer, stack.Prices, stack.Forecasts, cfg.ForecastDefaultDays, cfg.APIKey)

	r := newRouterFunc()
	mountRoutes(r, h, reg, recorder)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info().Msg("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}

// newRegistry is a private registry carrying the runtime collectors next to
// the forecast metrics.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func mountRoutes(r *gin.Engine, h *handler.Handler, reg *prometheus.Registry, recorder *metrics.Recorder) {
	r.Use(otelgin.Middleware(tracing.ServiceName))
	r.Use(recorder.Middleware())

	h.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
