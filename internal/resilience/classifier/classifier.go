// Package classifier turns raw failures into classified, correlatable
// errors. Classification happens once, centrally, at the request boundary;
// business code below only raises coded or plain errors.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"hauler/internal/platform/metrics"
	"hauler/internal/ratelimit/store"
	dErrors "hauler/pkg/domain-errors"
	"hauler/pkg/platform/audit"
)

// Escalation thresholds for repeated security-relevant failures from one
// subject inside the tracking window.
const (
	repeatWindow       = 5 * time.Minute
	highThreshold      = 5
	criticalThreshold  = 15
	repeatKeyNamespace = "sec:fail:"
)

// Classifier assigns category, threat level, and business impact.
type Classifier struct {
	counters     store.CounterStore
	logger       *slog.Logger
	metrics      *metrics.Metrics
	audit        audit.Publisher
	storeTimeout time.Duration
	now          func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Classifier) { c.metrics = m }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(c *Classifier) { c.audit = publisher }
}

func WithStoreTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.storeTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// New creates a Classifier. The counter store drives repeated-failure
// escalation; it shares the backend with the rate limiter but uses a
// disjoint key namespace.
func New(counters store.CounterStore, opts ...Option) (*Classifier, error) {
	if counters == nil {
		return nil, fmt.Errorf("counter store is required")
	}

	c := &Classifier{
		counters:     counters,
		logger:       slog.Default(),
		storeTimeout: 100 * time.Millisecond,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Classify inspects a raised error and its request context and produces an
// immutable ClassifiedError. The cascade: explicit domain code, then message
// signatures, then the unknown-internal fallback.
func (c *Classifier) Classify(ctx context.Context, rawErr error, reqCtx RequestContext) *ClassifiedError {
	category, source := c.categorize(rawErr)
	impact := defaultImpact(category)
	threat := baseThreat(category)

	classified := &ClassifiedError{
		ID:              uuid.NewString(),
		Category:        category,
		ThreatLevel:     threat,
		BusinessImpact:  impact,
		Retryable:       category.Retryable(),
		SourceComponent: source,
		OriginalMessage: rawErr.Error(),
		OccurredAt:      c.now(),
		Context:         map[string]any{},
		Request:         reqCtx,
	}
	if reqCtx.Dependency != "" {
		classified.Context["dependency"] = reqCtx.Dependency
	}

	if threat != ThreatNone {
		classified.ThreatLevel = c.escalate(ctx, classified)
	}

	if c.metrics != nil {
		c.metrics.IncClassified(string(category), string(impact))
	}
	c.logger.ErrorContext(ctx, "request failed",
		"error_id", classified.ID,
		"category", string(category),
		"impact", string(impact),
		"threat", string(classified.ThreatLevel),
		"retryable", classified.Retryable,
		"source", source,
		"error", rawErr,
		"request_id", reqCtx.RequestID,
		"method", reqCtx.Method,
		"path", reqCtx.Path,
	)

	return classified
}

// categorize resolves the category and source component for a raw error.
func (c *Classifier) categorize(rawErr error) (dErrors.Code, string) {
	// Stage 1: explicit domain code wins outright.
	var coded *dErrors.Error
	if errors.As(rawErr, &coded) {
		return coded.Code, "domain"
	}

	// Stage 2: message signature matching for raw/unknown errors.
	if category, ok := matchSignature(rawErr.Error()); ok {
		return category, "signature"
	}

	// Stage 3: default fallback.
	return dErrors.CodeInternal, "fallback"
}

// escalate raises the threat level when one subject keeps failing
// security-relevant checks inside the tracking window. Counting rides the
// shared store so escalation works across instances; on store loss the base
// level stands.
func (c *Classifier) escalate(ctx context.Context, classified *ClassifiedError) ThreatLevel {
	subject := classified.Request.Identity
	if subject == "" {
		subject = classified.Request.ClientIP
	}
	if subject == "" {
		return classified.ThreatLevel
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	count, err := c.counters.Incr(storeCtx, repeatKeyNamespace+subject, repeatWindow)
	if err != nil {
		c.logger.WarnContext(ctx, "threat escalation counter unavailable",
			"error", err,
			"error_id", classified.ID,
		)
		return classified.ThreatLevel
	}
	classified.Context["recent_failures"] = count

	level := classified.ThreatLevel
	switch {
	case count >= criticalThreshold:
		level = ThreatCritical
	case count >= highThreshold:
		level = ThreatHigh
	}
	if level == classified.ThreatLevel {
		return level
	}

	if c.metrics != nil {
		c.metrics.ThreatEscalated.WithLabelValues(string(level)).Inc()
	}
	if c.audit != nil {
		severity := audit.SeverityHigh
		if level == ThreatCritical {
			severity = audit.SeverityCritical
		}
		c.audit.RecordSecurityEvent(ctx, audit.Event{
			Type:      audit.EventAuthFailureSpike,
			Severity:  severity,
			Identity:  classified.Request.Identity,
			Origin:    audit.OriginFromRequest(classified.Request.ClientIP, classified.Request.UserAgent),
			RequestID: classified.Request.RequestID,
			Metadata: map[string]any{
				"error_id":        classified.ID,
				"category":        string(classified.Category),
				"recent_failures": count,
				"window_ms":       repeatWindow.Milliseconds(),
			},
		})
	}
	return level
}
