package cachestore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleEntry(id, url string, expires int64) Entry {
	return Entry{
		Identifier:      id,
		DownloadURL:     url,
		ThumbnailBase64: "dGh1bWI=",
		ExpiresAt:       time.Unix(expires, 0).UTC(),
	}
}

func TestEntryFresh(t *testing.T) {
	now := time.Unix(1_000, 0)
	require.True(t, sampleEntry("a", "u", 1_001).Fresh(now))
	require.False(t, sampleEntry("a", "u", 1_000).Fresh(now))
	require.False(t, sampleEntry("a", "u", 999).Fresh(now))
}

func TestMemoryStoreGetUpsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "song")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Upsert(ctx, sampleEntry("song", "https://a", 100)))
	require.NoError(t, s.Upsert(ctx, sampleEntry("song", "https://b", 200)))

	got, err := s.Get(ctx, "song")
	require.NoError(t, err)
	require.Equal(t, "https://b", got.DownloadURL)
	require.Equal(t, int64(200), got.ExpiresAt.Unix())
	require.Equal(t, 1, s.Len())

	require.Error(t, s.Upsert(ctx, Entry{}))
}

func TestMemoryStoreConcurrentReadersSeeWholeEntries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Upsert(ctx, sampleEntry("song", "url-0", 0)))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 500; i++ {
			_ = s.Upsert(ctx, sampleEntry("song", fmt.Sprintf("url-%d", i), int64(i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			got, err := s.Get(ctx, "song")
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			// URL and expiry always come from the same write.
			if got.DownloadURL != fmt.Sprintf("url-%d", got.ExpiresAt.Unix()) {
				t.Errorf("torn entry: %+v", got)
				return
			}
		}
	}()
	wg.Wait()
}
