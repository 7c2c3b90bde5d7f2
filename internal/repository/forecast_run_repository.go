package repository

import (
	"context"
	"time"

	"cryptobeacon/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ForecastRunRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewForecastRunRepository(pool PgxPool, tracer trace.Tracer) *ForecastRunRepository {
	return &ForecastRunRepository{pool: pool, tracer: tracer}
}

func (r *ForecastRunRepository) RecordRun(ctx context.Context, run *domain.ForecastRun) error {
	_, span := r.tracer.Start(ctx, "forecast-run-repo.record-run")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", run.Symbol), attribute.String("model", run.Model))

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO forecast_runs
		     (symbol, days, model, scale_factor, current_price, predicted_price, change_percent, elapsed_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.Symbol, run.Days, run.Model, run.ScaleFactor, run.CurrentPrice, run.PredictedPrice,
		run.ChangePercent, run.ElapsedMS, createdAt,
	)
	return err
}

// RecentRuns returns runs newest first.
func (r *ForecastRunRepository) RecentRuns(ctx context.Context, symbol string, limit int) ([]domain.ForecastRun, error) {
	_, span := r.tracer.Start(ctx, "forecast-run-repo.recent-runs")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT id, symbol, days, model, scale_factor, current_price, predicted_price, change_percent, elapsed_ms, created_at
		 FROM forecast_runs
		 WHERE symbol = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		symbol, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.ForecastRun
	for rows.Next() {
		var run domain.ForecastRun
		var ts time.Time
		if err := rows.Scan(&run.ID, &run.Symbol, &run.Days, &run.Model, &run.ScaleFactor, &run.CurrentPrice,
			&run.PredictedPrice, &run.ChangePercent, &run.ElapsedMS, &ts); err != nil {
			return nil, err
		}
		run.CreatedAt = ts.UTC()
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
