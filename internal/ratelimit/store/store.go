// Package store defines the distributed counter store contract shared by the
// rate limiter engine, the repeated-failure tracker, and the circuit tracker.
// All cross-process coordination goes through these primitives; no component
// holds durable local state.
package store

import (
	"context"
	"time"
)

// CounterStore is the abstract shared key/value store. Every operation is
// atomic per key; callers never read-modify-write around it.
type CounterStore interface {
	// Incr atomically increments the integer at key and returns the new
	// value. The first increment of a key sets ttl so unreferenced keys
	// self-clean. Concurrent first-increments may both set the TTL; that is
	// acceptable (at most one extra allowed request per expiry cycle).
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the integer at key, or 0 when absent.
	Get(ctx context.Context, key string) (int64, error)

	// WindowCount records member at the given instant in the sorted set at
	// key, prunes entries older than now-window, and returns the cardinality
	// after both operations. The set expires after window so idle keys
	// self-clean.
	WindowCount(ctx context.Context, key, member string, now time.Time, window time.Duration) (int64, error)

	// GetString returns the raw string value at key, or "" when absent.
	GetString(ctx context.Context, key string) (string, error)

	// CompareAndSet atomically replaces the value at key with next if the
	// current value equals expected. An empty expected matches only an
	// absent key (create). Returns whether the swap happened.
	CompareAndSet(ctx context.Context, key, expected, next string, ttl time.Duration) (bool, error)

	// Delete removes key. Absent keys are not an error.
	Delete(ctx context.Context, key string) error
}
