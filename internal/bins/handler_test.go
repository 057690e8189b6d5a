package bins

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	dErrors "hauler/pkg/domain-errors"

	"hauler/internal/ratelimit/store/memory"
	"hauler/internal/resilience/circuit"
	"hauler/internal/resilience/classifier"
	"hauler/internal/resilience/handler"
	"hauler/internal/resilience/recovery"
	"hauler/internal/resilience/respond"
)

// flakyStore wraps a working store and can be switched into outage mode.
type flakyStore struct {
	mu      sync.Mutex
	inner   Store
	failing bool
	calls   int
}

func (s *flakyStore) setFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

func (s *flakyStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *flakyStore) GetBin(ctx context.Context, id string) (Bin, error) {
	s.mu.Lock()
	s.calls++
	failing := s.failing
	s.mu.Unlock()
	if failing {
		return Bin{}, dErrors.New(dErrors.CodeDatabase, "dial tcp 10.0.3.7:5432: connection refused")
	}
	return s.inner.GetBin(ctx, id)
}

func (s *flakyStore) ListBins(ctx context.Context) ([]Bin, error) {
	s.mu.Lock()
	s.calls++
	failing := s.failing
	s.mu.Unlock()
	if failing {
		return nil, dErrors.New(dErrors.CodeDatabase, "dial tcp 10.0.3.7:5432: connection refused")
	}
	return s.inner.ListBins(ctx)
}

type HandlerSuite struct {
	suite.Suite
	store   *flakyStore
	tracker *circuit.Tracker
	cache   *recovery.MemoryCache
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.store = &flakyStore{inner: NewMemoryStore(
		Bin{ID: "12", Location: "Dockside Market", FillPercent: 81, Status: StatusActive,
			LastCollectedAt: time.Date(2026, 2, 27, 6, 30, 0, 0, time.UTC)},
		Bin{ID: "7", Location: "Harbor Plaza", FillPercent: 35, Status: StatusActive,
			LastCollectedAt: time.Date(2026, 2, 28, 7, 0, 0, 0, time.UTC)},
	)}

	tracker, err := circuit.New(memory.New(), logger, circuit.WithFailureThreshold(3))
	s.Require().NoError(err)
	s.tracker = tracker

	s.cache = recovery.NewMemoryCache()

	cl, err := classifier.New(memory.New(), classifier.WithLogger(logger))
	s.Require().NoError(err)

	registry := recovery.NewRegistry(
		recovery.NewCachedFallbackStrategy(s.cache, nil),
		recovery.NewCircuitOpenStrategy(tracker),
		recovery.RetryHintStrategy{},
		recovery.DegradationStrategy{},
	)
	orch, err := recovery.NewOrchestrator(registry, logger)
	s.Require().NoError(err)

	hook, err := handler.NewHook(cl, orch, respond.NewComposer(logger, false), logger)
	s.Require().NoError(err)

	s.router = chi.NewRouter()
	s.router.Use(handler.CaptureResponses(s.cache, time.Minute, logger))
	NewHandler(s.store, tracker).RegisterRoutes(s.router, hook)
}

func (s *HandlerSuite) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// =============================================================================
// Live reads
// =============================================================================

func (s *HandlerSuite) TestGetBin() {
	rec := s.get("/bins/12")
	s.Equal(http.StatusOK, rec.Code)

	var bin Bin
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &bin))
	s.Equal("12", bin.ID)
	s.Equal(81, bin.FillPercent)
}

func (s *HandlerSuite) TestGetBinNotFound() {
	rec := s.get("/bins/999")
	s.Equal(http.StatusNotFound, rec.Code)

	var body respond.ErrorResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal(string(dErrors.CodeNotFound), body.Error)
}

func (s *HandlerSuite) TestGetBinRejectsBadID() {
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'x'
	}
	rec := s.get("/bins/" + string(long))
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestListBins() {
	rec := s.get("/bins")
	s.Equal(http.StatusOK, rec.Code)

	var body struct {
		Bins []Bin `json:"bins"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Require().Len(body.Bins, 2)
	s.Equal("12", body.Bins[0].ID)
	s.Equal("7", body.Bins[1].ID)
}

// =============================================================================
// Degraded reads
// =============================================================================

func (s *HandlerSuite) TestOutageServesCachedPayload() {
	// Healthy read seeds the fallback cache through the capture middleware.
	s.Require().Equal(http.StatusOK, s.get("/bins/12").Code)

	s.store.setFailing(true)
	rec := s.get("/bins/12")

	s.Equal(http.StatusOK, rec.Code)
	s.NotEmpty(rec.Header().Get(respond.ErrorIDHeader))

	var body respond.DegradedResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.True(body.Degraded)
	s.True(body.Stale)

	var bin Bin
	s.Require().NoError(json.Unmarshal(body.Data, &bin))
	s.Equal("12", bin.ID)
	s.Equal(81, bin.FillPercent)
}

func (s *HandlerSuite) TestOutageWithoutCacheReturnsServiceError() {
	s.store.setFailing(true)
	rec := s.get("/bins/12")

	s.Equal(http.StatusServiceUnavailable, rec.Code)

	var body respond.ErrorResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal(string(dErrors.CodeDatabase), body.Error)
	s.NotContains(rec.Body.String(), "10.0.3.7")
}

func (s *HandlerSuite) TestCircuitTripsAndShortCircuitsStore() {
	s.Require().Equal(http.StatusOK, s.get("/bins/12").Code)
	baseline := s.store.callCount()

	s.store.setFailing(true)
	for i := 0; i < 3; i++ {
		s.get("/bins/12")
	}
	s.Equal(baseline+3, s.store.callCount())

	// Tripped: the store is no longer called, but cached data still flows.
	rec := s.get("/bins/12")
	s.Equal(baseline+3, s.store.callCount())
	s.Equal(http.StatusOK, rec.Code)

	var body respond.DegradedResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.True(body.Degraded)
}
