package circuit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	dErrors "hauler/pkg/domain-errors"
	"hauler/pkg/platform/audit"

	"hauler/internal/platform/metrics"
	"hauler/internal/ratelimit/store"
)

const (
	keyNamespace = "cb:"
	recordTTL    = time.Hour

	defaultFailureThreshold = 5
	defaultBaseBackoff      = 5 * time.Second
	defaultMaxBackoff       = 5 * time.Minute
	defaultFailureWindow    = time.Minute
	defaultStoreTimeout     = 100 * time.Millisecond

	// casAttempts bounds the optimistic retry loop on contended transitions.
	casAttempts = 4
)

// Tracker maintains per-dependency circuit breaker state in the shared
// counter store, so every instance behind the load balancer sees the same
// position. All state transitions go through compare-and-set: concurrent
// writers race on the serialized record and losers re-read.
type Tracker struct {
	store            store.CounterStore
	logger           *slog.Logger
	metrics          *metrics.Metrics
	audit            audit.Publisher
	failureThreshold int
	baseBackoff      time.Duration
	maxBackoff       time.Duration
	failureWindow    time.Duration
	storeTimeout     time.Duration
	now              func() time.Time
}

type Option func(*Tracker)

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(t *Tracker) { t.audit = p }
}

// WithFailureThreshold sets how many consecutive failures trip the breaker.
func WithFailureThreshold(n int) Option {
	return func(t *Tracker) { t.failureThreshold = n }
}

// WithBackoff sets the base and cap for the open-state probe backoff.
func WithBackoff(base, max time.Duration) Option {
	return func(t *Tracker) {
		t.baseBackoff = base
		t.maxBackoff = max
	}
}

// WithFailureWindow sets how long the consecutive-failure streak survives
// without a new failure before it resets.
func WithFailureWindow(d time.Duration) Option {
	return func(t *Tracker) { t.failureWindow = d }
}

func WithStoreTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.storeTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func New(st store.CounterStore, logger *slog.Logger, opts ...Option) (*Tracker, error) {
	if st == nil {
		return nil, errors.New("circuit: store is required")
	}
	if logger == nil {
		return nil, errors.New("circuit: logger is required")
	}
	t := &Tracker{
		store:            st,
		logger:           logger,
		failureThreshold: defaultFailureThreshold,
		baseBackoff:      defaultBaseBackoff,
		maxBackoff:       defaultMaxBackoff,
		failureWindow:    defaultFailureWindow,
		storeTimeout:     defaultStoreTimeout,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func key(dependency string) string {
	return keyNamespace + dependency
}

// Allow reports whether a call to the dependency may proceed. While open it
// refuses until the probe deadline, then admits exactly one caller as the
// half-open probe; everyone else keeps getting refused until the probe
// resolves. Store failures allow the call: an unreachable store must not
// take dependencies offline.
func (t *Tracker) Allow(ctx context.Context, dependency string) (bool, time.Duration) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		raw, rec, err := t.load(ctx, dependency)
		if err != nil {
			t.logger.WarnContext(ctx, "circuit state unavailable, allowing call",
				slog.String("dependency", dependency), slog.Any("error", err))
			return true, 0
		}

		now := t.now()
		switch rec.State {
		case StateClosed:
			return true, 0
		case StateOpen:
			if now.Before(rec.nextProbeAt()) {
				return false, rec.nextProbeAt().Sub(now)
			}
			// Probe deadline passed: move to half-open and claim the probe.
			next := rec
			next.State = StateHalfOpen
			next.ProbeClaimed = true
			ok, err := t.swap(ctx, dependency, raw, next)
			if err != nil {
				return true, 0
			}
			if ok {
				t.transitioned(ctx, dependency, rec.State, StateHalfOpen)
				return true, 0
			}
			// Lost the race; re-read.
		case StateHalfOpen:
			if rec.ProbeClaimed {
				return false, t.probeBackoff(rec.OpenCycles)
			}
			next := rec
			next.ProbeClaimed = true
			ok, err := t.swap(ctx, dependency, raw, next)
			if err != nil {
				return true, 0
			}
			if ok {
				return true, 0
			}
		}
	}
	// Contention exhausted the retry budget; err on the side of refusing.
	return false, t.baseBackoff
}

// RecordSuccess resets the failure streak and, from half-open, closes the
// breaker.
func (t *Tracker) RecordSuccess(ctx context.Context, dependency string) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		raw, rec, err := t.load(ctx, dependency)
		if err != nil {
			return
		}

		switch rec.State {
		case StateClosed:
			if rec.ConsecutiveFailures == 0 {
				return
			}
			next := rec
			next.ConsecutiveFailures = 0
			if ok, err := t.swap(ctx, dependency, raw, next); err != nil || ok {
				return
			}
		case StateHalfOpen:
			next := closedRecord()
			ok, err := t.swap(ctx, dependency, raw, next)
			if err != nil {
				return
			}
			if ok {
				t.transitioned(ctx, dependency, rec.State, StateClosed)
				t.emitAudit(ctx, audit.EventCircuitClosed, audit.SeverityInfo, dependency, rec)
				return
			}
		case StateOpen:
			// A success while open means the caller bypassed Allow; the
			// breaker stays put until the probe deadline.
			return
		}
	}
}

// RecordFailure advances the failure streak and trips the breaker at the
// threshold. A failed half-open probe reopens with a doubled backoff.
func (t *Tracker) RecordFailure(ctx context.Context, dependency string) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		raw, rec, err := t.load(ctx, dependency)
		if err != nil {
			return
		}

		now := t.now()
		switch rec.State {
		case StateClosed:
			next := rec
			if rec.LastFailureAtMs != 0 && now.Sub(time.UnixMilli(rec.LastFailureAtMs)) > t.failureWindow {
				next.ConsecutiveFailures = 0
			}
			next.ConsecutiveFailures++
			next.LastFailureAtMs = now.UnixMilli()
			tripped := next.ConsecutiveFailures >= t.failureThreshold
			if tripped {
				next.State = StateOpen
				next.NextProbeAtMs = now.Add(t.probeBackoff(next.OpenCycles)).UnixMilli()
			}
			ok, err := t.swap(ctx, dependency, raw, next)
			if err != nil {
				return
			}
			if ok {
				if tripped {
					t.transitioned(ctx, dependency, rec.State, StateOpen)
					t.emitAudit(ctx, audit.EventCircuitOpened, audit.SeverityMedium, dependency, next)
				}
				return
			}
		case StateHalfOpen:
			next := rec
			next.State = StateOpen
			next.OpenCycles++
			next.ProbeClaimed = false
			next.LastFailureAtMs = now.UnixMilli()
			next.NextProbeAtMs = now.Add(t.probeBackoff(next.OpenCycles)).UnixMilli()
			ok, err := t.swap(ctx, dependency, raw, next)
			if err != nil {
				return
			}
			if ok {
				t.transitioned(ctx, dependency, rec.State, StateOpen)
				t.emitAudit(ctx, audit.EventCircuitOpened, audit.SeverityMedium, dependency, next)
				return
			}
		case StateOpen:
			return
		}
	}
}

// Do guards a dependency call: it consults Allow, runs fn, and feeds the
// outcome back into the breaker. Refused calls return a coded circuit-open
// error carrying no dependency internals.
func (t *Tracker) Do(ctx context.Context, dependency string, fn func(ctx context.Context) error) error {
	allowed, retryAfter := t.Allow(ctx, dependency)
	if !allowed {
		if t.metrics != nil {
			t.metrics.CircuitShortCircuited.WithLabelValues(dependency).Inc()
		}
		return dErrors.New(dErrors.CodeCircuitOpen,
			"dependency temporarily unavailable, retry after "+retryAfter.Round(time.Second).String())
	}
	if err := fn(ctx); err != nil {
		t.RecordFailure(ctx, dependency)
		return err
	}
	t.RecordSuccess(ctx, dependency)
	return nil
}

// Snapshot returns the current breaker position for a dependency.
func (t *Tracker) Snapshot(ctx context.Context, dependency string) (Snapshot, error) {
	_, rec, err := t.load(ctx, dependency)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		Dependency:          dependency,
		State:               rec.State,
		ConsecutiveFailures: rec.ConsecutiveFailures,
		NextProbeAt:         rec.nextProbeAt(),
	}
	if rec.LastFailureAtMs != 0 {
		snap.LastFailureAt = time.UnixMilli(rec.LastFailureAtMs)
	}
	return snap, nil
}

func (t *Tracker) probeBackoff(openCycles int) time.Duration {
	backoff := t.baseBackoff
	for i := 0; i < openCycles; i++ {
		backoff *= 2
		if backoff >= t.maxBackoff {
			return t.maxBackoff
		}
	}
	if backoff > t.maxBackoff {
		return t.maxBackoff
	}
	return backoff
}

func (t *Tracker) load(ctx context.Context, dependency string) (string, record, error) {
	ctx, cancel := context.WithTimeout(ctx, t.storeTimeout)
	defer cancel()

	raw, err := t.store.GetString(ctx, key(dependency))
	if err != nil {
		return "", record{}, err
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return "", record{}, err
	}
	return raw, rec, nil
}

func (t *Tracker) swap(ctx context.Context, dependency, expected string, next record) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.storeTimeout)
	defer cancel()

	return t.store.CompareAndSet(ctx, key(dependency), expected, next.encode(), recordTTL)
}

func (t *Tracker) transitioned(ctx context.Context, dependency string, from, to State) {
	if t.metrics != nil {
		t.metrics.IncCircuitTransition(dependency, string(to))
	}
	t.logger.InfoContext(ctx, "circuit state changed",
		slog.String("dependency", dependency),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
}

func (t *Tracker) emitAudit(ctx context.Context, eventType audit.EventType, severity audit.Severity, dependency string, rec record) {
	if t.audit == nil {
		return
	}
	t.audit.RecordSecurityEvent(ctx, audit.Event{
		Timestamp: t.now().UTC(),
		Type:      eventType,
		Severity:  severity,
		Metadata: map[string]any{
			"dependency":           dependency,
			"consecutive_failures": rec.ConsecutiveFailures,
			"next_probe_at":        rec.nextProbeAt().UTC().Format(time.RFC3339),
		},
	})
}
