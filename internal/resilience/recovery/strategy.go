package recovery

import (
	"context"
	"sort"

	"hauler/internal/resilience/classifier"
)

// Strategy is one way of salvaging a classified failure. CanHandle is a
// cheap predicate; Recover may hit the cache or other stores. Returning a
// nil Outcome with a nil error means "pass", letting lower-priority
// strategies try.
type Strategy interface {
	Name() string
	// Priority orders strategies; higher runs first. Ties keep
	// registration order.
	Priority() int
	CanHandle(ce *classifier.ClassifiedError) bool
	Recover(ctx context.Context, ce *classifier.ClassifiedError) (*Outcome, error)
}

// Registry holds strategies sorted by descending priority. Built once at
// startup and read-only after, so it needs no locking.
type Registry struct {
	strategies []Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	sorted := make([]Strategy, len(strategies))
	copy(sorted, strategies)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})
	return &Registry{strategies: sorted}
}

// Ordered returns the strategies highest priority first.
func (r *Registry) Ordered() []Strategy {
	return r.strategies
}
