package repository

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
)

const candlesSchema = `
CREATE TABLE IF NOT EXISTS candles (
    symbol      TEXT        NOT NULL,
    interval    TEXT        NOT NULL,
    open_time   TIMESTAMPTZ NOT NULL,
    open        NUMERIC     NOT NULL,
    high        NUMERIC     NOT NULL,
    low         NUMERIC     NOT NULL,
    close       NUMERIC     NOT NULL,
    volume      NUMERIC     NOT NULL,
    PRIMARY KEY (symbol, interval, open_time)
);

CREATE INDEX IF NOT EXISTS idx_candles_symbol_interval_time
    ON candles (symbol, interval, open_time DESC);
`

const forecastRunsSchema = `
CREATE TABLE IF NOT EXISTS forecast_runs (
    id              BIGSERIAL        PRIMARY KEY,
    symbol          TEXT             NOT NULL,
    days            INTEGER          NOT NULL CHECK (days BETWEEN 1 AND 30),
    model           TEXT             NOT NULL,
    scale_factor    DOUBLE PRECISION NOT NULL DEFAULT 1,
    current_price   DOUBLE PRECISION NOT NULL,
    predicted_price DOUBLE PRECISION NOT NULL,
    change_percent  DOUBLE PRECISION NOT NULL,
    elapsed_ms      BIGINT           NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ      NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_forecast_runs_symbol_created
    ON forecast_runs (symbol, created_at DESC);
`

// EnsureSchema creates the candles and forecast_runs tables when missing.
// Versioned changes go through cmd/migrate; this only covers a fresh database.
func EnsureSchema(ctx context.Context, pool PgxPool, tracer trace.Tracer) error {
	ctx, span := tracer.Start(ctx, "repository.ensure-schema")
	defer span.End()

	for _, s := range []struct{ name, ddl string }{
		{"candles", candlesSchema},
		{"forecast_runs", forecastRunsSchema},
	} {
		if _, err := pool.Exec(ctx, s.ddl); err != nil {
			span.RecordError(err)
			return fmt.Errorf("ensure %s schema: %w", s.name, err)
		}
	}
	return nil
}
