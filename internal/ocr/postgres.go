package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS ocr_cache (
	key TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PGCache keeps OCR results in PostgreSQL so that rebuilds skip crops that
// were already transcribed.
type PGCache struct {
	pool *pgxpool.Pool
}

// NewPGCache connects to dsn and creates the cache table if needed.
func NewPGCache(ctx context.Context, dsn string) (*PGCache, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, cacheSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create ocr_cache table: %w", err)
	}
	return &PGCache{pool: pool}, nil
}

func (c *PGCache) Get(ctx context.Context, key string) (string, bool, error) {
	var text string
	err := c.pool.QueryRow(ctx, `SELECT text FROM ocr_cache WHERE key = $1`, key).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (c *PGCache) Put(ctx context.Context, key, text string) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO ocr_cache (key, text) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET text = EXCLUDED.text, created_at = now()`,
		key, text)
	return err
}

// Close releases the pool.
func (c *PGCache) Close() {
	c.pool.Close()
}
