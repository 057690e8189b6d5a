// Package routeopt accepts collection route optimization jobs. The endpoint
// is deliberately expensive to serve, so it sits on the strictest rate tier
// with a daily per-identity quota.
package routeopt

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	dErrors "hauler/pkg/domain-errors"
	"hauler/pkg/platform/httputil"

	"hauler/internal/resilience/handler"
)

// Resource is the quota resource name for optimization jobs.
const Resource = "route-optimizations"

const maxStopsCeiling = 500

// Request is the submitted optimization job.
type Request struct {
	DepotID  string `json:"depot_id"`
	MaxStops int    `json:"max_stops,omitempty"`
}

// Job is the accepted-job acknowledgement.
type Job struct {
	ID          string    `json:"id"`
	DepotID     string    `json:"depot_id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterRoutes(r chi.Router, hook *handler.Hook) {
	r.Post("/route-optimizations", hook.Wrap(h.submit))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) error {
	var req Request
	if err := httputil.DecodeJSON(r, &req); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "decoding optimization request")
	}
	if req.DepotID == "" {
		return dErrors.New(dErrors.CodeValidation, "depot_id is required")
	}
	if req.MaxStops < 0 || req.MaxStops > maxStopsCeiling {
		return dErrors.New(dErrors.CodeValidation, "max_stops must be between 0 and 500")
	}

	job := Job{
		ID:          uuid.NewString(),
		DepotID:     req.DepotID,
		Status:      "queued",
		SubmittedAt: time.Now().UTC(),
	}
	httputil.WriteJSON(w, http.StatusAccepted, job)
	return nil
}
