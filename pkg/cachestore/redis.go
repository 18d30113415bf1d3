package cachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisURL       = "redis://localhost:6379"
	defaultRedisKeyPrefix = "mediaresolver:entry:"
)

// RedisStore keeps one JSON document per identifier. A single SET replaces the
// document, which is atomic for concurrent readers. Keys carry no Redis TTL;
// staleness is decided by the caller.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore connects to url and verifies the connection.
func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	if url == "" {
		url = defaultRedisURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisStoreWithClient(client, prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, identifier string) (Entry, error) {
	if s == nil || s.client == nil {
		return Entry{}, errors.New("redis store unavailable")
	}
	data, err := s.client.Get(ctx, s.key(identifier)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, fmt.Errorf("redis get %s: %w", identifier, err)
	}
	return decodeEntry(data)
}

func (s *RedisStore) Upsert(ctx context.Context, entry Entry) error {
	if s == nil || s.client == nil {
		return errors.New("redis store unavailable")
	}
	if err := validateEntry(entry); err != nil {
		return err
	}
	payload, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(entry.Identifier), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", entry.Identifier, err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) key(identifier string) string {
	return s.prefix + identifier
}
