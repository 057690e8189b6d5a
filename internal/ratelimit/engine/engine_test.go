package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hauler/internal/ratelimit/config"
	"hauler/internal/ratelimit/models"
	"hauler/internal/ratelimit/store/memory"
	"hauler/pkg/platform/audit"
)

// =============================================================================
// Rate Limiter Engine Test Suite
// =============================================================================
// Justification: the engine carries the layer's hardest guarantees - atomic
// increment-then-compare, sub-algorithm ordering, and fail-open on store
// loss. These are unit-tested here against the in-memory store; the Redis
// store shares the same contract.

type EngineSuite struct {
	suite.Suite
	store  *memory.Store
	engine *Engine
	clock  time.Time
	events *recordingPublisher
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []audit.Event
}

func (p *recordingPublisher) RecordSecurityEvent(_ context.Context, event audit.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) byType(t audit.EventType) []audit.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []audit.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// failingStore errors on every operation, simulating an unreachable backend.
type failingStore struct{}

var errStoreDown = errors.New("connection refused")

func (failingStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errStoreDown
}
func (failingStore) Get(context.Context, string) (int64, error) { return 0, errStoreDown }
func (failingStore) WindowCount(context.Context, string, string, time.Time, time.Duration) (int64, error) {
	return 0, errStoreDown
}
func (failingStore) GetString(context.Context, string) (string, error) { return "", errStoreDown }
func (failingStore) CompareAndSet(context.Context, string, string, string, time.Duration) (bool, error) {
	return false, errStoreDown
}
func (failingStore) Delete(context.Context, string) error { return errStoreDown }

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.store = memory.NewWithClock(func() time.Time { return s.clock })
	s.events = &recordingPublisher{}

	var err error
	s.engine, err = New(
		s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.events),
		WithClock(func() time.Time { return s.clock }),
	)
	s.Require().NoError(err)
}

func (s *EngineSuite) tier() config.PolicyTier {
	return config.PolicyTier{
		Name:           "test",
		WindowDuration: time.Minute,
		MaxRequests:    100,
	}
}

// =============================================================================
// Constructor
// =============================================================================

func (s *EngineSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil)
		s.Error(err)
	})
}

// =============================================================================
// Sliding Window
// =============================================================================

func (s *EngineSuite) TestWindowLimit() {
	ctx := context.Background()
	key := models.NewRateKey(models.ScopeUser, "U1", "test")
	tier := s.tier()

	s.Run("101 requests in one window: 100 allowed, 101st denied", func() {
		for i := 1; i <= 100; i++ {
			result := s.engine.Check(ctx, key, tier)
			s.True(result.Allowed, "request %d", i)
			s.Equal(100-i, result.Remaining, "request %d", i)
		}

		result := s.engine.Check(ctx, key, tier)
		s.False(result.Allowed)
		s.Equal(0, result.Remaining)
		s.Equal(models.AlgorithmWindow, result.Algorithm)
		s.InDelta(60000, result.RetryAfterMs, 1000)
	})

	s.Run("denial emits a security event", func() {
		events := s.events.byType(audit.EventRateLimitExceeded)
		s.NotEmpty(events)
		s.Equal("U1", events[0].Identity)
	})
}

func (s *EngineSuite) TestWindowSlides() {
	ctx := context.Background()
	key := models.NewRateKey(models.ScopeUser, "U2", "test")
	tier := config.PolicyTier{Name: "test", WindowDuration: time.Minute, MaxRequests: 3}

	start := s.clock
	for i := 0; i < 3; i++ {
		s.True(s.engine.Check(ctx, key, tier).Allowed)
		s.clock = s.clock.Add(time.Second)
	}

	// One millisecond past the first request's horizon, capacity returns
	// even though the later requests are still within naive wall-clock view.
	s.clock = start.Add(time.Minute + time.Millisecond)
	s.True(s.engine.Check(ctx, key, tier).Allowed)

	// The set is full again: three live entries deny the next request.
	s.False(s.engine.Check(ctx, key, tier).Allowed)
}

func (s *EngineSuite) TestKeysAreIndependent() {
	ctx := context.Background()
	tier := config.PolicyTier{Name: "test", WindowDuration: time.Minute, MaxRequests: 1}

	s.True(s.engine.Check(ctx, models.NewRateKey(models.ScopeUser, "A", "test"), tier).Allowed)
	s.False(s.engine.Check(ctx, models.NewRateKey(models.ScopeUser, "A", "test"), tier).Allowed)
	s.True(s.engine.Check(ctx, models.NewRateKey(models.ScopeUser, "B", "test"), tier).Allowed)
	s.True(s.engine.Check(ctx, models.NewRateKey(models.ScopeIP, "A", "test"), tier).Allowed)
}

// =============================================================================
// Burst Guard
// =============================================================================

func (s *EngineSuite) TestBurstGuard() {
	ctx := context.Background()
	key := models.NewRateKey(models.ScopeUser, "U3", "test")
	tier := config.PolicyTier{
		Name:           "test",
		WindowDuration: time.Minute,
		MaxRequests:    100,
		Burst:          &config.Burst{Window: time.Second, MaxRequests: 5},
	}

	s.Run("spike blocked inside a compliant window", func() {
		for i := 0; i < 5; i++ {
			s.True(s.engine.Check(ctx, key, tier).Allowed, "request %d", i)
		}
		result := s.engine.Check(ctx, key, tier)
		s.False(result.Allowed)
		s.Equal(models.AlgorithmBurst, result.Algorithm)
		s.InDelta(1000, result.RetryAfterMs, 100)
	})

	s.Run("burst counter resets after its own window", func() {
		s.clock = s.clock.Add(1100 * time.Millisecond)
		s.True(s.engine.Check(ctx, key, tier).Allowed)
	})

	s.Run("burst denial emits its own event type", func() {
		s.NotEmpty(s.events.byType(audit.EventBurstGuardTripped))
	})
}

// =============================================================================
// Quota
// =============================================================================

func (s *EngineSuite) TestQuota() {
	ctx := context.Background()
	tier := config.PolicyTier{
		Name:           "test",
		WindowDuration: time.Minute,
		MaxRequests:    100,
		Quota:          &config.Quota{Resource: "route-optimizations", Limit: 2, Window: 24 * time.Hour},
	}

	s.Run("identity quota blocks past the cap regardless of window state", func() {
		key := models.NewRateKey(models.ScopeUser, "U4", "test")
		s.True(s.engine.Check(ctx, key, tier).Allowed)
		s.clock = s.clock.Add(2 * time.Minute) // fresh primary window
		s.True(s.engine.Check(ctx, key, tier).Allowed)
		s.clock = s.clock.Add(2 * time.Minute)

		result := s.engine.Check(ctx, key, tier)
		s.False(result.Allowed)
		s.Equal(models.AlgorithmQuota, result.Algorithm)
	})

	s.Run("quota never applies to network-origin keys", func() {
		key := models.NewRateKey(models.ScopeIP, "203.0.113.9", "test")
		for i := 0; i < 5; i++ {
			s.True(s.engine.Check(ctx, key, tier).Allowed)
			s.clock = s.clock.Add(2 * time.Minute)
		}
	})
}

// =============================================================================
// Fail-Open
// =============================================================================

func (s *EngineSuite) TestFailOpen() {
	ctx := context.Background()
	engine, err := New(
		failingStore{},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.events),
	)
	s.Require().NoError(err)

	key := models.NewRateKey(models.ScopeUser, "U5", "test")
	result := engine.Check(ctx, key, s.tier())

	s.True(result.Allowed, "store loss must not throttle traffic")
	s.Equal(s.tier().MaxRequests, result.Remaining)
	s.NotEmpty(s.events.byType(audit.EventLimiterDegraded))
}
