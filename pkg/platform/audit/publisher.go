package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hauler/internal/platform/privacy"
)

// Publisher is the sink contract the resilience layer emits into.
type Publisher interface {
	RecordSecurityEvent(ctx context.Context, event Event)
}

var (
	eventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hauler_security_events_total",
		Help: "Security events emitted, labeled by type and severity",
	}, []string{"type", "severity"})
	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hauler_security_events_dropped_total",
		Help: "Security events dropped because the publish buffer was full",
	})
)

// LogPublisher writes security events to the structured log asynchronously.
// Emit never blocks the request path: events are queued and a background
// worker drains them. When the queue is full the event is dropped and
// counted, matching the availability-over-completeness stance of the layer.
type LogPublisher struct {
	logger *slog.Logger
	queue  chan Event

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Option configures a LogPublisher.
type Option func(*LogPublisher)

// WithQueueSize sets the publish buffer capacity. Default is 1024.
func WithQueueSize(n int) Option {
	return func(p *LogPublisher) {
		if n > 0 {
			p.queue = make(chan Event, n)
		}
	}
}

// NewLogPublisher creates a publisher draining into the given logger.
func NewLogPublisher(logger *slog.Logger, opts ...Option) *LogPublisher {
	p := &LogPublisher{
		logger: logger,
		queue:  make(chan Event, 1024),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(1)
	go p.drain()

	return p
}

// RecordSecurityEvent queues an event for async logging. Fire-and-forget.
func (p *LogPublisher) RecordSecurityEvent(_ context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	eventsEmitted.WithLabelValues(string(event.Type), string(event.Severity)).Inc()

	select {
	case p.queue <- event:
	default:
		eventsDropped.Inc()
	}
}

// Close stops the worker after draining queued events.
func (p *LogPublisher) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

func (p *LogPublisher) drain() {
	defer p.wg.Done()
	for {
		select {
		case event := <-p.queue:
			p.write(event)
		case <-p.done:
			for {
				select {
				case event := <-p.queue:
					p.write(event)
				default:
					return
				}
			}
		}
	}
}

func (p *LogPublisher) write(event Event) {
	attrs := []any{
		"log_type", "audit",
		"event", string(event.Type),
		"severity", string(event.Severity),
		"timestamp", event.Timestamp,
	}
	if event.Identity != "" {
		attrs = append(attrs, "identity", event.Identity)
	}
	if event.Origin.IP != "" {
		// Raw addresses stay out of the audit trail.
		attrs = append(attrs, "origin_ip", privacy.AnonymizeIP(event.Origin.IP))
	}
	if event.Origin.Device != "" {
		attrs = append(attrs, "origin_device", event.Origin.Device)
	}
	if event.RequestID != "" {
		attrs = append(attrs, "request_id", event.RequestID)
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, k, v)
	}
	p.logger.Info(string(event.Type), attrs...)
}
