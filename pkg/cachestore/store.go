// Package cachestore persists resolved media entries keyed by identifier.
//
// A Store is a plain durable map: it has no notion of freshness and never
// expires or evicts entries on its own. Upsert replaces the whole entry in a
// single atomic operation, so readers see either the previous or the new entry
// and never a mix of both.
package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned by Get when no entry exists for the identifier.
var ErrMiss = errors.New("cache miss")

// Entry is the persisted resolution of one identifier.
type Entry struct {
	Identifier      string
	DownloadURL     string
	ThumbnailBase64 string
	ExpiresAt       time.Time
}

// Fresh reports whether the entry's expiry is strictly after now.
func (e Entry) Fresh(now time.Time) bool {
	return e.ExpiresAt.After(now)
}

// Store is the contract every backend implements.
type Store interface {
	Get(ctx context.Context, identifier string) (Entry, error)
	Upsert(ctx context.Context, entry Entry) error
	Close() error
}

// record is the serialized form shared by the document backends (redis,
// objectstore). Expiry is kept as Unix seconds to match the relational layout.
type record struct {
	Identifier      string `json:"identifier"`
	DownloadURL     string `json:"download_url"`
	ThumbnailBase64 string `json:"thumbnail_base64"`
	ExpiresAt       int64  `json:"expires_at"`
}

func encodeEntry(e Entry) ([]byte, error) {
	payload, err := json.Marshal(record{
		Identifier:      e.Identifier,
		DownloadURL:     e.DownloadURL,
		ThumbnailBase64: e.ThumbnailBase64,
		ExpiresAt:       e.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal entry: %w", err)
	}
	return payload, nil
}

func decodeEntry(data []byte) (Entry, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	return Entry{
		Identifier:      rec.Identifier,
		DownloadURL:     rec.DownloadURL,
		ThumbnailBase64: rec.ThumbnailBase64,
		ExpiresAt:       time.Unix(rec.ExpiresAt, 0).UTC(),
	}, nil
}

func validateEntry(e Entry) error {
	if e.Identifier == "" {
		return errors.New("entry identifier required")
	}
	return nil
}
