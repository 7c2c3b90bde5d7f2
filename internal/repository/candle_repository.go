package repository

import (
	"context"
	"fmt"
	"math"

	"cryptobeacon/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PgxPool is the subset of *pgxpool.Pool the repositories use.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const upsertCandleSQL = `
INSERT INTO candles (symbol, interval, open_time, open, high, low, close, volume)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (symbol, interval, open_time) DO UPDATE SET
    open = EXCLUDED.open,
    high = EXCLUDED.high,
    low = EXCLUDED.low,
    close = EXCLUDED.close,
    volume = EXCLUDED.volume
WHERE candles.close IS DISTINCT FROM EXCLUDED.close
   OR candles.volume IS DISTINCT FROM EXCLUDED.volume`

type CandleRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewCandleRepository(pool PgxPool, tracer trace.Tracer) *CandleRepository {
	return &CandleRepository{pool: pool, tracer: tracer}
}

// storable reports whether c has a key and a positive finite close.
func storable(c *domain.Candle) bool {
	return c != nil && c.Symbol != "" && c.Interval != "" &&
		c.Close > 0 && !math.IsInf(c.Close, 0) && !math.IsNaN(c.Close)
}

// UpsertCandles writes the storable candles in one batch.
func (r *CandleRepository) UpsertCandles(ctx context.Context, candles []*domain.Candle) error {
	batch := &pgx.Batch{}
	for _, c := range candles {
		if !storable(c) {
			continue
		}
		batch.Queue(upsertCandleSQL, c.Symbol, c.Interval, c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Volume)
	}
	if batch.Len() == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "candle-repo.upsert-candles")
	defer span.End()
	span.SetAttributes(attribute.Int("candles", batch.Len()))

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("upsert candle %d of %d: %w", i+1, batch.Len(), err)
		}
	}
	return nil
}

// GetCandles returns the newest limit candles, newest first.
func (r *CandleRepository) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	_, span := r.tracer.Start(ctx, "candle-repo.get-candles")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT symbol, interval, open_time, open, high, low, close, volume
		 FROM candles
		 WHERE symbol = $1 AND interval = $2
		 ORDER BY open_time DESC
		 LIMIT $3`,
		symbol, interval, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var candles []*domain.Candle
	for rows.Next() {
		c := &domain.Candle{}
		if err := rows.Scan(&c.Symbol, &c.Interval, &c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// DailyCloses returns up to days stored daily closes for symbol, oldest first.
func (r *CandleRepository) DailyCloses(ctx context.Context, symbol string, days int) ([]float64, error) {
	if days <= 0 {
		return nil, nil
	}
	_, span := r.tracer.Start(ctx, "candle-repo.daily-closes")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.Int("days", days))

	rows, err := r.pool.Query(ctx,
		`SELECT close::float8 FROM (
		     SELECT open_time, close
		     FROM candles
		     WHERE symbol = $1 AND interval = $2
		     ORDER BY open_time DESC
		     LIMIT $3
		 ) recent
		 ORDER BY open_time ASC`,
		symbol, domain.DailyInterval, days,
	)
	if err != nil {
		return nil, fmt.Errorf("query daily closes: %w", err)
	}
	defer rows.Close()

	closes := make([]float64, 0, days)
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		closes = append(closes, v)
	}
	return closes, rows.Err()
}
