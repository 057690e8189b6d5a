// Package engine evaluates rate limit policy tiers against the distributed
// counter store. The engine is stateless per request: every decision is an
// atomic increment-then-compare against shared counters, so concurrent
// requests for the same key across many instances serialize at the store.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"hauler/internal/platform/metrics"
	"hauler/internal/platform/middleware"
	"hauler/internal/ratelimit/config"
	"hauler/internal/ratelimit/models"
	"hauler/internal/ratelimit/store"
	"hauler/pkg/platform/audit"
)

// Engine checks requests against policy tiers.
type Engine struct {
	store        store.CounterStore
	logger       *slog.Logger
	metrics      *metrics.Metrics
	audit        audit.Publisher
	storeTimeout time.Duration
	tracer       trace.Tracer
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the Prometheus instrument set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithAuditPublisher sets the security event sink.
func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(e *Engine) { e.audit = publisher }
}

// WithStoreTimeout bounds each counter store call. Default 100ms; the
// limiter must never become the slow path.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.storeTimeout = d
		}
	}
}

// WithClock injects a clock for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine backed by the given counter store.
func New(counters store.CounterStore, opts ...Option) (*Engine, error) {
	if counters == nil {
		return nil, fmt.Errorf("counter store is required")
	}

	e := &Engine{
		store:        counters,
		logger:       slog.Default(),
		storeTimeout: 100 * time.Millisecond,
		tracer:       otel.Tracer("hauler/ratelimit"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Check evaluates all configured sub-algorithms for the key under the tier.
// Order: sliding window, burst guard, quota. All must pass for an allow.
//
// Store failures never surface to the caller: the engine fails open, logs a
// degradation event, and reports the request as allowed. Availability wins
// over strict enforcement.
func (e *Engine) Check(ctx context.Context, key models.RateKey, tier config.PolicyTier) *models.RateLimitResult {
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "ratelimit.check", trace.WithAttributes(
		attribute.String("ratelimit.tier", tier.Name),
		attribute.String("ratelimit.scope", string(key.Scope())),
	))
	result := e.check(ctx, key, tier)
	span.SetAttributes(attribute.Bool("ratelimit.allowed", result.Allowed))
	span.End()

	if e.metrics != nil {
		e.metrics.ObserveCheck(tier.Name, result.Allowed, e.now().Sub(start).Seconds())
	}
	return result
}

func (e *Engine) check(ctx context.Context, key models.RateKey, tier config.PolicyTier) *models.RateLimitResult {
	now := e.now()

	// Primary sliding window. Each request is a unique member so concurrent
	// arrivals in the same instant still count individually.
	count, err := e.windowCount(ctx, key.String(), now, tier.WindowDuration)
	if err != nil {
		return e.failOpen(ctx, key, tier, err)
	}
	if count > int64(tier.MaxRequests) {
		e.denied(ctx, key, tier, tier.MaxRequests, tier.WindowDuration, models.AlgorithmWindow)
		return models.DeniedResult(tier.MaxRequests, now.Add(tier.WindowDuration), tier.WindowDuration, models.AlgorithmWindow)
	}
	remaining := tier.MaxRequests - int(count)

	// Burst guard: an independent short counter, evaluated even when the
	// primary window has capacity.
	if tier.Burst != nil {
		burstCount, err := e.incr(ctx, key.BurstKey(), tier.Burst.Window)
		if err != nil {
			return e.failOpen(ctx, key, tier, err)
		}
		if burstCount > int64(tier.Burst.MaxRequests) {
			e.denied(ctx, key, tier, tier.Burst.MaxRequests, tier.Burst.Window, models.AlgorithmBurst)
			return models.DeniedResult(tier.MaxRequests, now.Add(tier.Burst.Window), tier.Burst.Window, models.AlgorithmBurst)
		}
	}

	// Quota: long-horizon cap, identity-scoped only. Network origins churn
	// too fast for a daily budget to mean anything.
	if tier.Quota != nil && key.Scope() != models.ScopeIP {
		quotaCount, err := e.incr(ctx, key.QuotaKey(tier.Quota.Resource), tier.Quota.Window)
		if err != nil {
			return e.failOpen(ctx, key, tier, err)
		}
		if quotaCount > int64(tier.Quota.Limit) {
			e.denied(ctx, key, tier, tier.Quota.Limit, tier.Quota.Window, models.AlgorithmQuota)
			return models.DeniedResult(tier.MaxRequests, now.Add(tier.Quota.Window), tier.Quota.Window, models.AlgorithmQuota)
		}
	}

	return models.AllowedResult(tier.MaxRequests, remaining, now.Add(tier.WindowDuration))
}

func (e *Engine) windowCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return e.store.WindowCount(ctx, key, uuid.NewString(), now, window)
}

func (e *Engine) incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return e.store.Incr(ctx, key, ttl)
}

// failOpen allows the request when the counter store is unreachable. The
// degradation is logged and audited but never returned as an error.
func (e *Engine) failOpen(ctx context.Context, key models.RateKey, tier config.PolicyTier, err error) *models.RateLimitResult {
	e.logger.WarnContext(ctx, "rate limiter degraded, failing open",
		"error", err,
		"tier", tier.Name,
		"scope", string(key.Scope()),
		"request_id", middleware.GetRequestID(ctx),
	)
	if e.metrics != nil {
		e.metrics.RateLimitFailOpen.Inc()
	}
	if e.audit != nil {
		e.audit.RecordSecurityEvent(ctx, audit.Event{
			Type:      audit.EventLimiterDegraded,
			Severity:  audit.SeverityMedium,
			RequestID: middleware.GetRequestID(ctx),
			Metadata:  map[string]any{"tier": tier.Name, "error": err.Error()},
		})
	}
	return models.AllowedResult(tier.MaxRequests, tier.MaxRequests, e.now().Add(tier.WindowDuration))
}

// denied emits the audit/security trail for a throttled request.
func (e *Engine) denied(ctx context.Context, key models.RateKey, tier config.PolicyTier, limit int, window time.Duration, algorithm models.Algorithm) {
	if e.metrics != nil {
		e.metrics.IncDenied(tier.Name, string(algorithm))
	}

	eventType := audit.EventRateLimitExceeded
	switch algorithm {
	case models.AlgorithmBurst:
		eventType = audit.EventBurstGuardTripped
	case models.AlgorithmQuota:
		eventType = audit.EventQuotaExhausted
	}

	e.logger.InfoContext(ctx, "request rate limited",
		"log_type", "audit",
		"tier", tier.Name,
		"scope", string(key.Scope()),
		"identifier", key.Identifier(),
		"algorithm", string(algorithm),
		"limit", limit,
		"window_ms", window.Milliseconds(),
		"request_id", middleware.GetRequestID(ctx),
	)
	if e.audit != nil {
		e.audit.RecordSecurityEvent(ctx, audit.Event{
			Type:      eventType,
			Severity:  audit.SeverityLow,
			Identity:  key.Identifier(),
			RequestID: middleware.GetRequestID(ctx),
			Metadata: map[string]any{
				"tier":      tier.Name,
				"limit":     limit,
				"window_ms": window.Milliseconds(),
			},
		})
	}
}
