package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	loadEnvFunc = godotenv.Load
	openPool    = pgxpool.New
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}
}

func newRootCmd() *cobra.Command {
	var dsn string
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply or roll back the Postgres schema for candles and forecast runs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loadEnvFunc()
			if dsn == "" {
				dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
			}
			if dsn == "" {
				return fmt.Errorf("DATABASE_URL or --dsn is required")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", "", "Postgres connection string (defaults to DATABASE_URL)")

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), dsn, func(ctx context.Context, s *store, ms []migration) error {
				applied, err := s.applied(ctx)
				if err != nil {
					return err
				}
				todo := pending(ms, applied)
				for _, m := range todo {
					if err := s.apply(ctx, m, true); err != nil {
						return err
					}
					log.Info().Int64("version", m.Version).Str("name", m.Name).Msg("applied")
				}
				log.Info().Int("applied", len(todo)).Msg("migrations up complete")
				return nil
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back the newest applied migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid down steps: %q", args[0])
				}
				steps = n
			}
			return withStore(cmd.Context(), dsn, func(ctx context.Context, s *store, ms []migration) error {
				applied, err := s.applied(ctx)
				if err != nil {
					return err
				}
				plan, err := rollbackPlan(ms, applied, steps)
				if err != nil {
					return err
				}
				for _, m := range plan {
					if err := s.apply(ctx, m, false); err != nil {
						return err
					}
					log.Info().Int64("version", m.Version).Str("name", m.Name).Msg("rolled back")
				}
				log.Info().Int("rolled_back", len(plan)).Msg("migrations down complete")
				return nil
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:     "status",
		Aliases: []string{"version"},
		Short:   "List migrations and when they were applied",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withStore(cmd.Context(), dsn, func(ctx context.Context, s *store, ms []migration) error {
				applied, err := s.applied(ctx)
				if err != nil {
					return err
				}
				return writeStatus(out, ms, applied)
			})
		},
	})
	return root
}

func withStore(ctx context.Context, dsn string, fn func(context.Context, *store, []migration) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ms, err := loadMigrations(migrationsFS)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	pool, err := openPool(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	s := &store{pool: pool}
	if err := s.ensureTable(ctx); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}
	return fn(ctx, s, ms)
}

type store struct {
	pool *pgxpool.Pool
}

func (s *store) ensureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     BIGINT PRIMARY KEY,
    name        TEXT NOT NULL,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`)
	return err
}

func (s *store) applied(ctx context.Context) (map[int64]time.Time, error) {
	rows, err := s.pool.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]time.Time)
	for rows.Next() {
		var v int64
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		out[v] = at
	}
	return out, rows.Err()
}

// apply runs one migration and its bookkeeping row in a single transaction.
func (s *store) apply(ctx context.Context, m migration, up bool) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if up {
			if _, err := tx.Exec(ctx, m.UpSQL); err != nil {
				return fmt.Errorf("version %d up failed: %w", m.Version, err)
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		}
		if _, err := tx.Exec(ctx, m.DownSQL); err != nil {
			return fmt.Errorf("version %d down failed: %w", m.Version, err)
		}
		_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
		return err
	})
}
