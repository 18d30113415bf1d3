package cachestore

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mediaresolver/pkg/storage/objectstore"
)

func TestOpenMemory(t *testing.T) {
	store, err := Open(context.Background(), Config{Driver: "memory", MemoryTierSize: 10})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, store)
}

func TestOpenRedisWithMemoryTier(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	defer srv.Close()

	store, err := Open(context.Background(), Config{
		Driver:         "redis",
		RedisURL:       "redis://" + srv.Addr(),
		MemoryTierSize: 8,
	})
	require.NoError(t, err)
	defer store.Close()
	require.IsType(t, &Tiered{}, store)

	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, sampleEntry("song", "https://x", 5)))
	require.True(t, srv.Exists(defaultRedisKeyPrefix+"song"))
}

func TestOpenObjectStore(t *testing.T) {
	store, err := Open(context.Background(), Config{
		Driver:       "objectstore",
		ObjectPrefix: "resolutions",
		Object: objectstore.Config{
			Provider: "minio",
			Endpoint: "http://localhost:9000",
			Bucket:   "cache",
		},
	})
	require.NoError(t, err)
	require.IsType(t, &ObjectStore{}, store)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "sqlite"})
	require.Error(t, err)
}
