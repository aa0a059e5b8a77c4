package postgres

import (
	"context"
	"fmt"

	"doc-verifier/pkg/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Schema is applied on startup; the table holds one row per widget with the
// latest snapshot only.
const Schema = `
CREATE TABLE IF NOT EXISTS widget_sessions (
	widget_id      UUID PRIMARY KEY,
	generation     BIGINT NOT NULL,
	state          TEXT NOT NULL,
	file_name      TEXT,
	file_size      BIGINT,
	file_mime_type TEXT,
	fields         JSONB NOT NULL,
	display_values JSONB,
	notices        JSONB,
	document_id    TEXT,
	last_error     TEXT,
	updated_at     TIMESTAMPTZ NOT NULL
)`

func NewPool(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("Database connection established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName),
	)

	return pool, nil
}
