package main

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"cryptobeacon/internal/bootstrap"
	"cryptobeacon/internal/config"
	"cryptobeacon/internal/metrics"
	"cryptobeacon/pkg/logger"

	"github.com/charmbracelet/ssh"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func testConfig() *config.Config {
	return &config.Config{
		SSHPort:             2222,
		SSHHostKeyPath:      ".ssh/test_key",
		BinanceBaseURL:      "http://127.0.0.1:1",
		ForecastDefaultDays: 5,
		ForecastMaxDays:     14,
		ForecastTreeBackend: "none",
	}
}

type sshRun struct {
	stackBuilt bool
	options    int
	redisSeen  bool
}

func TestMainBootstrap(t *testing.T) {
	run := &sshRun{}
	restore := stubSSHDeps(run)
	defer restore()

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}

	if !run.stackBuilt {
		t.Fatal("expected forecast stack to be built")
	}
	if run.redisSeen {
		t.Fatal("expected nil redis client when cache init is stubbed")
	}
	if run.options < 3 {
		t.Fatalf("expected address, host key and middleware options, got %d", run.options)
	}
}

func TestDashboardModelUsesConfiguredHorizon(t *testing.T) {
	cfg := testConfig()
	stack := bootstrap.NewStack(cfg, trace.NewNoopTracerProvider().Tracer("test"), nil, nil, nil)

	model := dashboardModel(stack, cfg, "alice", 100, 40)
	if model.Days() != 5 {
		t.Fatalf("expected 5 day horizon, got %d", model.Days())
	}
	if model.Symbol() == "" {
		t.Fatal("expected an initial symbol")
	}
	if view := model.View(); !strings.Contains(view, "alice") {
		t.Fatalf("expected username in view, got %q", view)
	}
}

func stubSSHDeps(run *sshRun) func() {
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitLogger := initLoggerFunc
	origInitPostgres := initPostgresFunc
	origInitRedis := initRedisFunc
	origInitTracer := initTracerFunc
	origNewStack := newStackFunc
	origNewWishServer := newWishServerFunc
	origSetupSignal := setupSignalNotify
	origWait := waitForSignalFunc

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = testConfig
	initLoggerFunc = func(logger.Config) error { return nil }
	initPostgresFunc = func(context.Context) {}
	initRedisFunc = func(context.Context) {}
	initTracerFunc = func(ctx context.Context) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	newStackFunc = func(cfg *config.Config, tracer trace.Tracer, pool *pgxpool.Pool, rc *redis.Client, rec *metrics.Recorder) *bootstrap.Stack {
		run.stackBuilt = true
		run.redisSeen = rc != nil
		return origNewStack(cfg, tracer, pool, rc, rec)
	}
	newWishServerFunc = func(ops ...ssh.Option) (*ssh.Server, error) {
		run.options = len(ops)
		return nil, nil
	}
	setupSignalNotify = func(c chan<- os.Signal, sig ...os.Signal) {}
	waitForSignalFunc = func(<-chan os.Signal) {}

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initLoggerFunc = origInitLogger
		initPostgresFunc = origInitPostgres
		initRedisFunc = origInitRedis
		initTracerFunc = origInitTracer
		newStackFunc = origNewStack
		newWishServerFunc = origNewWishServer
		setupSignalNotify = origSetupSignal
		waitForSignalFunc = origWait
	}
}
