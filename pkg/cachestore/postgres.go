package cachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createCacheTableSQL = `
CREATE TABLE IF NOT EXISTS cache (
	identifier       TEXT PRIMARY KEY,
	download_url     TEXT NOT NULL,
	thumbnail_base64 TEXT NOT NULL,
	expires_at       BIGINT NOT NULL
);`

	selectEntrySQL = `
SELECT identifier, download_url, thumbnail_base64, expires_at
FROM cache
WHERE identifier = $1;`

	upsertEntrySQL = `
INSERT INTO cache (identifier, download_url, thumbnail_base64, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (identifier) DO UPDATE SET
	download_url     = EXCLUDED.download_url,
	thumbnail_base64 = EXCLUDED.thumbnail_base64,
	expires_at       = EXCLUDED.expires_at;`
)

// pgQuerier is the subset of pgxpool.Pool the store needs.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on the single-table layout
// cache(identifier PK, download_url, thumbnail_base64, expires_at).
type PostgresStore struct {
	db    pgQuerier
	close func()
}

// NewPostgresStore opens a pool for dsn, pings it and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{db: pool, close: pool.Close}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the cache table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createCacheTableSQL); err != nil {
		return fmt.Errorf("create cache table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, identifier string) (Entry, error) {
	var (
		entry     Entry
		expiresAt int64
	)
	err := s.db.QueryRow(ctx, selectEntrySQL, identifier).
		Scan(&entry.Identifier, &entry.DownloadURL, &entry.ThumbnailBase64, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, fmt.Errorf("select cache entry %s: %w", identifier, err)
	}
	entry.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return entry, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, entry Entry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, upsertEntrySQL,
		entry.Identifier,
		entry.DownloadURL,
		entry.ThumbnailBase64,
		entry.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry %s: %w", entry.Identifier, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
