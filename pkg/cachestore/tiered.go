package cachestore

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Tiered fronts a durable Store with a bounded in-process LRU. Eviction from
// the LRU only drops the memory copy; the durable store stays authoritative.
type Tiered struct {
	durable Store
	memory  *lru.Cache[string, Entry]
}

// NewTiered wraps durable with an LRU holding at most size entries.
func NewTiered(durable Store, size int) (*Tiered, error) {
	cache, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, fmt.Errorf("create memory tier: %w", err)
	}
	return &Tiered{durable: durable, memory: cache}, nil
}

func (t *Tiered) Get(ctx context.Context, identifier string) (Entry, error) {
	if entry, ok := t.memory.Get(identifier); ok {
		return entry, nil
	}
	entry, err := t.durable.Get(ctx, identifier)
	if err != nil {
		return Entry{}, err
	}
	// Only insert if absent so a concurrent Upsert that already landed in
	// memory is not overwritten by the older durable read.
	t.memory.ContainsOrAdd(identifier, entry)
	return entry, nil
}

// Upsert writes through: durable first, then memory. A failed durable write
// leaves the memory tier untouched.
func (t *Tiered) Upsert(ctx context.Context, entry Entry) error {
	if err := t.durable.Upsert(ctx, entry); err != nil {
		return err
	}
	t.memory.Add(entry.Identifier, entry)
	return nil
}

func (t *Tiered) Close() error {
	t.memory.Purge()
	return t.durable.Close()
}
