package recovery

import (
	"context"
	"errors"
	"log/slog"

	"hauler/internal/platform/metrics"
	"hauler/internal/resilience/classifier"
)

// Orchestrator walks the strategy chain for a classified failure. A strategy
// error never aborts the chain: recovery is best effort and the worst case
// is the plain error response the client would have gotten anyway.
type Orchestrator struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type OrchestratorOption func(*Orchestrator)

func WithMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

func NewOrchestrator(registry *Registry, logger *slog.Logger, opts ...OrchestratorOption) (*Orchestrator, error) {
	if registry == nil {
		return nil, errors.New("recovery: registry is required")
	}
	if logger == nil {
		return nil, errors.New("recovery: logger is required")
	}
	o := &Orchestrator{registry: registry, logger: logger}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Attempt runs the chain and returns the first outcome, or nil when nothing
// applies. Non-retryable failures are never recovered: a validation or auth
// error must reach the client as-is.
func (o *Orchestrator) Attempt(ctx context.Context, ce *classifier.ClassifiedError) *Outcome {
	if !ce.Retryable {
		return nil
	}

	for _, strategy := range o.registry.Ordered() {
		if !strategy.CanHandle(ce) {
			continue
		}
		if o.metrics != nil {
			o.metrics.IncRecoveryAttempt(strategy.Name())
		}

		outcome, err := strategy.Recover(ctx, ce)
		if err != nil {
			o.logger.WarnContext(ctx, "recovery strategy failed",
				slog.String("strategy", strategy.Name()),
				slog.String("error_id", ce.ID),
				slog.Any("error", err),
			)
			continue
		}
		if outcome == nil {
			continue
		}

		o.recordOutcome(outcome)
		o.logger.InfoContext(ctx, "recovery outcome",
			slog.String("strategy", strategy.Name()),
			slog.String("error_id", ce.ID),
			slog.Bool("recovered", outcome.Recovered),
		)
		return outcome
	}

	o.recordResult("unrecovered")
	return nil
}

func (o *Orchestrator) recordOutcome(out *Outcome) {
	if out.Recovered {
		o.recordResult("recovered")
		return
	}
	o.recordResult("hint")
}

func (o *Orchestrator) recordResult(result string) {
	if o.metrics != nil {
		o.metrics.IncRecoveryOutcome(result)
	}
}
