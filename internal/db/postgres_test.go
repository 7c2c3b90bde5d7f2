package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestInitPostgresSkipsWithoutDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	origNew := newPool
	t.Cleanup(func() { newPool = origNew })
	called := false
	newPool = func(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
		called = true
		return nil, nil
	}

	InitPostgres(context.Background())
	if called || Pool != nil {
		t.Fatal("pool should not be created without DATABASE_URL")
	}
}

func TestInitPostgresUsesDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://user:pass@db:5432/beacon")

	origNew, origPing := newPool, pingDB
	t.Cleanup(func() {
		newPool, pingDB = origNew, origPing
		Pool = nil
	})

	var captured string
	newPool = func(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
		captured = dsn
		cfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, err
		}
		return pgxpool.NewWithConfig(ctx, cfg)
	}
	pingDB = func(context.Context, *pgxpool.Pool) error { return nil }

	InitPostgres(context.Background())
	if captured != "postgres://user:pass@db:5432/beacon" {
		t.Fatalf("unexpected dsn: %s", captured)
	}
	if Pool == nil {
		t.Fatal("expected pool to be set")
	}
	Close()
}
