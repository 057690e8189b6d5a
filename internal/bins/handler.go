package bins

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	dErrors "hauler/pkg/domain-errors"
	"hauler/pkg/platform/httputil"

	"hauler/internal/resilience/circuit"
	"hauler/internal/resilience/handler"
)

// Dependency is the circuit tracker name for the bin telemetry store.
const Dependency = "bin-store"

const maxBinIDLength = 64

// Handler serves the bin read endpoints. Every store call runs through the
// circuit tracker and failed calls surface as tagged errors for the
// resilience pipeline.
type Handler struct {
	store   Store
	circuit *circuit.Tracker
}

func NewHandler(store Store, tracker *circuit.Tracker) *Handler {
	return &Handler{store: store, circuit: tracker}
}

// RegisterRoutes mounts the bin endpoints, wrapped by the resilience hook.
func (h *Handler) RegisterRoutes(r chi.Router, hook *handler.Hook) {
	r.Get("/bins", hook.Wrap(h.listBins))
	r.Get("/bins/{binID}", hook.Wrap(h.getBin))
}

func (h *Handler) getBin(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "binID")
	if err := validateBinID(id); err != nil {
		return err
	}

	var bin Bin
	err := h.circuit.Do(r.Context(), Dependency, func(ctx context.Context) error {
		var err error
		bin, err = h.store.GetBin(ctx, id)
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			// A missing bin is an answer, not a store failure.
			return nil
		}
		return err
	})
	if err != nil {
		return handler.WithDependency(err, Dependency)
	}
	if bin.ID == "" {
		return dErrors.New(dErrors.CodeNotFound, "bin not found")
	}

	httputil.WriteJSON(w, http.StatusOK, bin)
	return nil
}

func (h *Handler) listBins(w http.ResponseWriter, r *http.Request) error {
	var bins []Bin
	err := h.circuit.Do(r.Context(), Dependency, func(ctx context.Context) error {
		var err error
		bins, err = h.store.ListBins(ctx)
		return err
	})
	if err != nil {
		return handler.WithDependency(err, Dependency)
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"bins": bins})
	return nil
}

func validateBinID(id string) error {
	if id == "" || len(id) > maxBinIDLength {
		return dErrors.New(dErrors.CodeValidation, "bin id must be 1-64 characters")
	}
	if strings.ContainsAny(id, " \t\n") {
		return dErrors.New(dErrors.CodeValidation, "bin id must not contain whitespace")
	}
	return nil
}
