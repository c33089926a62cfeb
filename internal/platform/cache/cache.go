// Package cache provides a small in-process TTL store used for advisory
// read-through caches such as the public category listing and the curated
// product sets. Entries are short-lived and every write path that changes an
// underlying query result must invalidate explicitly; time expiry alone is
// acceptable only where a staleness window of minutes is tolerable.
package cache

import (
	"sync"
	"time"
)

// Store is a TTL-bounded map guarded for concurrent use.
type Store[T any] struct {
	ttl time.Duration
	now func() time.Time
	mu  sync.RWMutex
	m   map[string]entry[T]
}

type entry[T any] struct {
	value   T
	expires time.Time
}

// New constructs a Store with the given TTL. A nil clock defaults to
// time.Now; a non-positive TTL disables caching entirely.
func New[T any](ttl time.Duration, now func() time.Time) *Store[T] {
	if now == nil {
		now = time.Now
	}
	return &Store[T]{
		ttl: ttl,
		now: now,
		m:   make(map[string]entry[T]),
	}
}

// Get returns the cached value for key when present and unexpired.
func (s *Store[T]) Get(key string) (T, bool) {
	var zero T
	if s == nil || s.ttl <= 0 {
		return zero, false
	}
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if s.now().After(e.expires) {
		s.mu.Lock()
		delete(s.m, key)
		s.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Put stores value under key for the configured TTL.
func (s *Store[T]) Put(key string, value T) {
	if s == nil || s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	s.m[key] = entry[T]{value: value, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
}

// Invalidate drops a single key.
func (s *Store[T]) Invalidate(key string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

// InvalidateAll drops every entry, used when a write affects an unknown set
// of keys (e.g. any curation-flag change clears all per-tier product sets).
func (s *Store[T]) InvalidateAll() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.m = make(map[string]entry[T])
	s.mu.Unlock()
}
