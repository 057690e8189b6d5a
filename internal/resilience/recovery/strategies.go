package recovery

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	dErrors "hauler/pkg/domain-errors"

	"hauler/internal/platform/metrics"
	"hauler/internal/resilience/circuit"
	"hauler/internal/resilience/classifier"
)

// Strategy priorities. Cached fallback outranks everything: a stale payload
// beats any hint. The degradation notice is the floor.
const (
	priorityCachedFallback = 70
	priorityCircuitOpen    = 60
	priorityRetryHint      = 40
	priorityDegradation    = 10
)

const (
	serviceRetryHintMs = 2000
	timeoutRetryHintMs = 1000
)

// cacheableCategories are the failure categories where a previously captured
// response is an acceptable substitute.
var cacheableCategories = map[dErrors.Code]bool{
	dErrors.CodeDatabase:           true,
	dErrors.CodeServiceUnavailable: true,
	dErrors.CodeCircuitOpen:        true,
	dErrors.CodeTimeout:            true,
	dErrors.CodeResource:           true,
	dErrors.CodeInternal:           true,
}

// CachedFallbackStrategy serves the last known good payload for idempotent
// reads when the live path is down. Concurrent lookups for the same key are
// collapsed through singleflight so a thundering herd of failures turns into
// one cache read.
type CachedFallbackStrategy struct {
	cache   ResponseCache
	metrics *metrics.Metrics
	group   singleflight.Group
}

// NewCachedFallbackStrategy creates the strategy. Metrics may be nil.
func NewCachedFallbackStrategy(cache ResponseCache, m *metrics.Metrics) *CachedFallbackStrategy {
	return &CachedFallbackStrategy{cache: cache, metrics: m}
}

func (s *CachedFallbackStrategy) Name() string  { return "cached_fallback" }
func (s *CachedFallbackStrategy) Priority() int { return priorityCachedFallback }

func (s *CachedFallbackStrategy) CanHandle(ce *classifier.ClassifiedError) bool {
	return ce.IsRead() && ce.Request.Path != "" && cacheableCategories[ce.Category]
}

func (s *CachedFallbackStrategy) Recover(ctx context.Context, ce *classifier.ClassifiedError) (*Outcome, error) {
	key := CacheKey(ce.Request.Method, ce.Request.Path)

	type lookup struct {
		resp  CachedResponse
		found bool
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		resp, found, err := s.cache.Get(ctx, key)
		return lookup{resp: resp, found: found}, err
	})
	if err != nil {
		return nil, err
	}
	l := v.(lookup)
	if !l.found {
		if s.metrics != nil {
			s.metrics.FallbackCacheMisses.Inc()
		}
		return nil, nil
	}
	if s.metrics != nil {
		s.metrics.FallbackCacheHits.Inc()
	}
	return &Outcome{
		Recovered:   true,
		Strategy:    s.Name(),
		Payload:     l.resp.Body,
		ContentType: l.resp.ContentType,
		Stale:       true,
		Message:     "serving cached data while the live source recovers",
	}, nil
}

// CircuitOpenStrategy turns a short-circuited call into a retry hint aligned
// with the breaker's next probe, so well-behaved clients come back exactly
// when a probe might close it.
type CircuitOpenStrategy struct {
	tracker *circuit.Tracker
	now     func() time.Time
}

func NewCircuitOpenStrategy(tracker *circuit.Tracker) *CircuitOpenStrategy {
	return &CircuitOpenStrategy{tracker: tracker, now: time.Now}
}

func (s *CircuitOpenStrategy) Name() string  { return "circuit_retry_hint" }
func (s *CircuitOpenStrategy) Priority() int { return priorityCircuitOpen }

func (s *CircuitOpenStrategy) CanHandle(ce *classifier.ClassifiedError) bool {
	return ce.Category == dErrors.CodeCircuitOpen && ce.Request.Dependency != ""
}

func (s *CircuitOpenStrategy) Recover(ctx context.Context, ce *classifier.ClassifiedError) (*Outcome, error) {
	snap, err := s.tracker.Snapshot(ctx, ce.Request.Dependency)
	if err != nil {
		return nil, err
	}
	retryAfter := snap.NextProbeAt.Sub(s.now())
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	return &Outcome{
		Strategy:     s.Name(),
		RetryAfterMs: retryAfter.Milliseconds(),
		Message:      "dependency is cooling down",
	}, nil
}

// RetryHintStrategy attaches a fixed retry hint to transient upstream
// failures that have no better salvage.
type RetryHintStrategy struct{}

func (RetryHintStrategy) Name() string  { return "retry_hint" }
func (RetryHintStrategy) Priority() int { return priorityRetryHint }

func (RetryHintStrategy) CanHandle(ce *classifier.ClassifiedError) bool {
	// Timed-out writes get no retry encouragement; the client must check
	// whether the write landed.
	if ce.Category == dErrors.CodeTimeout {
		return ce.IsRead()
	}
	return ce.Category == dErrors.CodeServiceUnavailable
}

func (RetryHintStrategy) Recover(_ context.Context, ce *classifier.ClassifiedError) (*Outcome, error) {
	hint := int64(serviceRetryHintMs)
	if ce.Category == dErrors.CodeTimeout {
		hint = timeoutRetryHintMs
	}
	return &Outcome{
		Strategy:     "retry_hint",
		RetryAfterMs: hint,
		Message:      "upstream is degraded, retry shortly",
	}, nil
}

// DegradationStrategy is the terminal catch-all: it never recovers anything,
// it just makes sure every retryable failure leaves with an honest
// degradation notice instead of silence.
type DegradationStrategy struct{}

func (DegradationStrategy) Name() string  { return "graceful_degradation" }
func (DegradationStrategy) Priority() int { return priorityDegradation }

func (DegradationStrategy) CanHandle(*classifier.ClassifiedError) bool { return true }

func (DegradationStrategy) Recover(context.Context, *classifier.ClassifiedError) (*Outcome, error) {
	return &Outcome{
		Strategy: "graceful_degradation",
		Message:  "service is temporarily degraded",
	}, nil
}
