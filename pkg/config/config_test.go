package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "mediaresolver", cfg.App.Name)
	require.Equal(t, "memory", cfg.Store.Driver)
	require.Equal(t, "minio", cfg.Store.Object.Provider)
	require.Equal(t, 5, cfg.HTTP.CompressLevel)
	require.Equal(t, 2*time.Minute, cfg.Resolve.Timeout)
	require.Equal(t, int64(10<<20), cfg.Thumbnail.MaxBytes)
	require.Equal(t, int64(40_000_000), cfg.Thumbnail.MaxPixels)
	require.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("STORE_MEMORY_TIER_SIZE", "512")
	t.Setenv("STORE_OBJECT_BUCKET", "thumbs")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("YTDLP_ARGS", "--cookies cookies.txt")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "redis", cfg.Store.Driver)
	require.Equal(t, 512, cfg.Store.MemoryTierSize)
	require.Equal(t, "thumbs", cfg.Store.Object.Bucket)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, []string{"--cookies", "cookies.txt"}, cfg.Provider.Args)
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("RESOLVE_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
}
