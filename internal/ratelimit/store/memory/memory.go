// Package memory provides an in-process CounterStore. Suitable for tests and
// single-instance deployments; multi-instance deployments need the Redis
// implementation for cross-process coordination.
package memory

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	value     int64
	raw       string
	isRaw     bool
	expiresAt time.Time
}

type sortedSet struct {
	members   map[string]time.Time
	expiresAt time.Time
}

// Store is a mutex-guarded CounterStore.
type Store struct {
	mu   sync.Mutex
	kv   map[string]*counter
	sets map[string]*sortedSet

	// now is swappable for deterministic window tests.
	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		kv:   make(map[string]*counter),
		sets: make(map[string]*sortedSet),
		now:  time.Now,
	}
}

// NewWithClock creates a store with an injected clock.
func NewWithClock(now func() time.Time) *Store {
	s := New()
	s.now = now
	return s
}

func (s *Store) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c := s.liveCounter(key, now)
	if c == nil {
		c = &counter{expiresAt: now.Add(ttl)}
		s.kv[key] = c
	}
	c.value++
	return c.value, nil
}

func (s *Store) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.liveCounter(key, s.now())
	if c == nil {
		return 0, nil
	}
	return c.value, nil
}

func (s *Store) WindowCount(_ context.Context, key, member string, now time.Time, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.sets[key]
	if set == nil || !set.expiresAt.After(now) {
		set = &sortedSet{members: make(map[string]time.Time)}
		s.sets[key] = set
	}
	set.expiresAt = now.Add(window)
	set.members[member] = now

	cutoff := now.Add(-window)
	for m, at := range set.members {
		if !at.After(cutoff) {
			delete(set.members, m)
		}
	}
	return int64(len(set.members)), nil
}

func (s *Store) GetString(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.liveCounter(key, s.now())
	if c == nil {
		return "", nil
	}
	if c.isRaw {
		return c.raw, nil
	}
	return "", nil
}

func (s *Store) CompareAndSet(_ context.Context, key, expected, next string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c := s.liveCounter(key, now)

	current := ""
	if c != nil && c.isRaw {
		current = c.raw
	}
	if current != expected {
		return false, nil
	}

	s.kv[key] = &counter{raw: next, isRaw: true, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	delete(s.sets, key)
	return nil
}

// liveCounter returns the counter at key, dropping it first when expired.
// Callers must hold the mutex.
func (s *Store) liveCounter(key string, now time.Time) *counter {
	c, ok := s.kv[key]
	if !ok {
		return nil
	}
	if !c.expiresAt.After(now) {
		delete(s.kv, key)
		return nil
	}
	return c
}
