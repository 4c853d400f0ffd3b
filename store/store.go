// Package store implements the per-environment object store: an
// in-memory keyed namespace with bounded-wait reads, plus a durable
// mirror for saved objects.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/justapithecus/adit/types"
)

// Store is a concurrency-safe keyed namespace. Values are opaque;
// keys suffixed _ref hold run records rather than values.
//
// Get supports a bounded wait so a caller polling for a result can
// interleave other work between retries instead of blocking on the
// store indefinitely.
type Store struct {
	mu      sync.RWMutex
	items   map[string]any
	changed chan struct{}
}

// New creates an empty store.
func New() *Store {
	return &Store{
		items:   make(map[string]any),
		changed: make(chan struct{}),
	}
}

// Put upserts a value. Overwrites silently.
func (s *Store) Put(key string, value any) {
	s.mu.Lock()
	s.items[key] = value
	s.notifyLocked()
	s.mu.Unlock()
}

// GetNow returns the value without waiting.
func (s *Store) GetNow(key string) (any, bool) {
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	return v, ok
}

// Get returns the value for key, waiting up to wait for it to appear.
// Absence after the wait elapses reports KeyNotFound; the caller
// decides whether to poll again. A zero or negative wait never blocks.
func (s *Store) Get(ctx context.Context, key string, wait time.Duration) (any, error) {
	s.mu.RLock()
	v, ok := s.items[key]
	ch := s.changed
	s.mu.RUnlock()
	if ok {
		return v, nil
	}
	if wait <= 0 {
		return nil, types.KeyNotFound("get", key)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ch:
			s.mu.RLock()
			v, ok = s.items[key]
			ch = s.changed
			s.mu.RUnlock()
			if ok {
				return v, nil
			}
		case <-timer.C:
			return nil, types.KeyNotFound("get", key)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Rename moves the value at oldKey to newKey. Atomic with respect to
// concurrent Gets of either key; fails with KeyNotFound if oldKey is
// absent. An existing value at newKey is overwritten.
func (s *Store) Rename(oldKey, newKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[oldKey]
	if !ok {
		return types.KeyNotFound("rename", oldKey)
	}
	delete(s.items, oldKey)
	s.items[newKey] = v
	s.notifyLocked()
	return nil
}

// Delete removes the value if present. Absence is not an error.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// DeleteExisting removes the value, failing with KeyNotFound if absent.
func (s *Store) DeleteExisting(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return types.KeyNotFound("delete", key)
	}
	delete(s.items, key)
	return nil
}

// Contains reports whether key is present.
func (s *Store) Contains(key string) bool {
	s.mu.RLock()
	_, ok := s.items[key]
	s.mu.RUnlock()
	return ok
}

// Keys returns a sorted snapshot of all keys. A Get following a
// listing may still race with a concurrent Delete; the Get result is
// authoritative.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	n := len(s.items)
	s.mu.RUnlock()
	return n
}

// notifyLocked wakes bounded-wait readers. Callers hold mu.
func (s *Store) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
