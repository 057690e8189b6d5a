// Package handler is the seam between business handlers and the resilience
// layer. Handlers return errors instead of writing failure responses; the
// hook classifies the error, attempts recovery, and composes what actually
// goes on the wire.
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"hauler/internal/platform/middleware"
	"hauler/internal/resilience/classifier"
	"hauler/internal/resilience/recovery"
	"hauler/internal/resilience/respond"
)

// HandlerFunc is a business handler that reports failure instead of writing
// it. A nil return means the handler wrote its own success response.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// dependencyError tags an error with the dependency that produced it.
type dependencyError struct {
	dependency string
	err        error
}

func (e *dependencyError) Error() string { return e.err.Error() }
func (e *dependencyError) Unwrap() error { return e.err }

// WithDependency tags err with the name of the dependency that failed, so
// classification, circuit bookkeeping, and cache keys know where the failure
// came from. Returns nil for a nil err.
func WithDependency(err error, dependency string) error {
	if err == nil {
		return nil
	}
	return &dependencyError{dependency: dependency, err: err}
}

func dependencyOf(err error) string {
	var de *dependencyError
	if errors.As(err, &de) {
		return de.dependency
	}
	return ""
}

// Hook wires the classify, recover, compose pipeline behind HandlerFunc.
type Hook struct {
	classifier   *classifier.Classifier
	orchestrator *recovery.Orchestrator
	composer     *respond.Composer
	logger       *slog.Logger
}

func NewHook(cl *classifier.Classifier, orch *recovery.Orchestrator, comp *respond.Composer, logger *slog.Logger) (*Hook, error) {
	if cl == nil || orch == nil || comp == nil {
		return nil, errors.New("handler: classifier, orchestrator, and composer are required")
	}
	if logger == nil {
		return nil, errors.New("handler: logger is required")
	}
	return &Hook{classifier: cl, orchestrator: orch, composer: comp, logger: logger}, nil
}

// Wrap adapts a HandlerFunc into a standard http.HandlerFunc.
func (h *Hook) Wrap(next HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := next(w, r)
		if err == nil {
			return
		}

		ce := h.classifier.Classify(r.Context(), err, h.requestContext(r, err))
		outcome := h.orchestrator.Attempt(r.Context(), ce)
		h.composer.Write(w, r, ce, outcome)
	}
}

func (h *Hook) requestContext(r *http.Request, err error) classifier.RequestContext {
	rc := classifier.RequestContext{
		Method:     r.Method,
		Path:       r.URL.Path,
		RequestID:  middleware.GetRequestID(r.Context()),
		ClientIP:   middleware.GetClientIP(r.Context()),
		UserAgent:  r.UserAgent(),
		Dependency: dependencyOf(err),
	}
	if identity, ok := middleware.GetIdentity(r.Context()); ok {
		rc.Identity = identity.ID
	}
	return rc
}
