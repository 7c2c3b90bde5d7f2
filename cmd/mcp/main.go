package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cryptobeacon/internal/bootstrap"
	"cryptobeacon/internal/cache"
	"cryptobeacon/internal/config"
	"cryptobeacon/internal/db"
	"cryptobeacon/pkg/logger"
	"cryptobeacon/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	initLoggerFunc   = logger.Init
	initPostgresFunc = db.InitPostgres
	initRedisFunc    = cache.InitRedis
	initTracerFunc   = tracing.InitTracer
	newStackFunc     = bootstrap.NewStack
	runServerFunc    = func(ctx context.Context, s *mcp.Server) error { return s.Run(ctx, &mcp.StdioTransport{}) }
)

// Stdout carries the protocol, so logs go to stderr only.
func main() {
	loadEnvFunc()
	cfg := loadConfigFunc()
	cfg.LogFormat = "json"
	if err := initLoggerFunc(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		log.Warn().Err(err).Msg("logger configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	defer db.Close()
	initRedisFunc(ctx)
	defer cache.Close()

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer tracing.Shutdown(tp)

	stack := newStackFunc(cfg, tracer, db.Pool, cache.Client, nil)
	server := newServer(stack.Forecasts, cfg.ForecastDefaultDays)

	log.Info().Msg("MCP server running on stdio")
	if err := runServerFunc(ctx, server); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("MCP server stopped")
	}
}
