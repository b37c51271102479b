// Package postgres holds the relational persistence for bookmarks.
// Every query is scoped by owner id; nothing here knows about HTTP or events.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" for database/sql (goose)
	"github.com/pressly/goose/v3"

	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/utils"
	"github.com/MrSnakeDoc/linkvault/migrations"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Options tunes the connection pool.
type Options struct {
	DSN             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	PingTimeout     time.Duration
}

// Open creates a pool and checks it answers.
func Open(ctx context.Context, opts Options, log logger.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		cfg.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("connected to postgres",
		logger.String("host", cfg.ConnConfig.Host),
		logger.String("database", cfg.ConnConfig.Database),
		logger.Int("max_conns", int(cfg.MaxConns)))
	return pool, nil
}

// Migrate applies every pending embedded migration.
func Migrate(ctx context.Context, dsn string, log logger.Logger) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer utils.MustClose(sqlDB, "migration connection", log)

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations.FS)
	if err != nil {
		return fmt.Errorf("create goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		log.Info("migration applied",
			logger.String("source", r.Source.Path),
			logger.Duration("duration", r.Duration))
	}
	if len(results) == 0 {
		log.Debug("database schema up to date")
	}
	return nil
}
