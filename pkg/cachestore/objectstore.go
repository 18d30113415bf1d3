package cachestore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/your-org/mediaresolver/pkg/storage/objectstore"
)

// ObjectStore keeps one JSON object per identifier in a bucket. A PUT replaces
// the object as a whole, so concurrent readers get either version.
type ObjectStore struct {
	client objectstore.Client
	prefix string
}

// NewObjectStore stores entries under prefix in the client's bucket.
func NewObjectStore(client objectstore.Client, prefix string) *ObjectStore {
	return &ObjectStore{client: client, prefix: strings.Trim(prefix, "/")}
}

func (s *ObjectStore) Get(ctx context.Context, identifier string) (Entry, error) {
	data, err := s.client.Get(ctx, s.key(identifier))
	if errors.Is(err, objectstore.ErrNotFound) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get cache object %s: %w", identifier, err)
	}
	return decodeEntry(data)
}

func (s *ObjectStore) Upsert(ctx context.Context, entry Entry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	payload, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	meta := map[string]string{
		"identifier": entry.Identifier,
		"expires_at": fmt.Sprintf("%d", entry.ExpiresAt.Unix()),
	}
	return s.client.Put(ctx, s.key(entry.Identifier), payload, "application/json", meta)
}

func (s *ObjectStore) Close() error {
	return s.client.Close()
}

// key escapes the identifier so it always maps to a single object name.
func (s *ObjectStore) key(identifier string) string {
	name := url.PathEscape(identifier) + ".json"
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}
