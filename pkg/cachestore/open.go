package cachestore

import (
	"context"
	"fmt"

	"github.com/your-org/mediaresolver/pkg/storage/objectstore"
)

// Config selects and configures a backend.
type Config struct {
	Driver         string
	RedisURL       string
	RedisKeyPrefix string
	PostgresDSN    string
	Object         objectstore.Config
	ObjectPrefix   string
	MemoryTierSize int
}

// Open creates the Store named by cfg.Driver, optionally fronted by a memory tier.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case "", "memory":
		// Already in memory; a second tier would only duplicate it.
		return NewMemoryStore(), nil
	case "redis":
		store, err = NewRedisStore(ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
	case "postgres":
		store, err = NewPostgresStore(ctx, cfg.PostgresDSN)
	case "objectstore":
		var client objectstore.Client
		client, err = objectstore.New(cfg.Object)
		if err == nil {
			store = NewObjectStore(client, cfg.ObjectPrefix)
		}
	default:
		return nil, fmt.Errorf("unsupported cache store driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	if cfg.MemoryTierSize > 0 {
		tiered, err := NewTiered(store, cfg.MemoryTierSize)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		return tiered, nil
	}
	return store, nil
}
