package db

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Pool is nil when DATABASE_URL is unset; callers treat that as "no storage".
var Pool *pgxpool.Pool

var (
	newPool = pgxpool.New
	pingDB  = func(ctx context.Context, pool *pgxpool.Pool) error {
		return pool.Ping(ctx)
	}
)

func InitPostgres(ctx context.Context) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Warn().Msg("DATABASE_URL not set, candle storage disabled")
		return
	}

	pool, err := newPool(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Postgres pool")
	}
	if err := pingDB(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Postgres")
	}
	Pool = pool
	log.Info().Msg("Connected to Postgres")
}

func Close() {
	if Pool != nil {
		Pool.Close()
		Pool = nil
	}
}
