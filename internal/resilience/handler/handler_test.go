package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "hauler/pkg/domain-errors"

	"hauler/internal/ratelimit/store/memory"
	"hauler/internal/resilience/classifier"
	"hauler/internal/resilience/recovery"
	"hauler/internal/resilience/respond"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHook(t *testing.T, cache recovery.ResponseCache) *Hook {
	t.Helper()
	logger := discardLogger()

	cl, err := classifier.New(memory.New(), classifier.WithLogger(logger))
	require.NoError(t, err)

	registry := recovery.NewRegistry(
		recovery.NewCachedFallbackStrategy(cache, nil),
		recovery.RetryHintStrategy{},
		recovery.DegradationStrategy{},
	)
	orch, err := recovery.NewOrchestrator(registry, logger)
	require.NoError(t, err)

	hook, err := NewHook(cl, orch, respond.NewComposer(logger, false), logger)
	require.NoError(t, err)
	return hook
}

func TestWrapPassesThroughSuccess(t *testing.T) {
	hook := newHook(t, recovery.NewMemoryCache())

	h := hook.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bins/12", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get(respond.ErrorIDHeader))
}

func TestWrapComposesValidationError(t *testing.T) {
	hook := newHook(t, recovery.NewMemoryCache())

	h := hook.Wrap(func(http.ResponseWriter, *http.Request) error {
		return dErrors.New(dErrors.CodeValidation, "bin id must be numeric")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bins", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(respond.ErrorIDHeader))

	var body respond.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(dErrors.CodeValidation), body.Error)
}

func TestWrapServesDegradedReadFromCache(t *testing.T) {
	cache := recovery.NewMemoryCache()
	require.NoError(t, cache.Put(context.Background(), recovery.CacheKey("GET", "/bins/12"), recovery.CachedResponse{
		Status:      http.StatusOK,
		ContentType: "application/json",
		Body:        []byte(`{"id":"12","fill_percent":81}`),
		StoredAt:    time.Now().UTC(),
	}, time.Minute))

	hook := newHook(t, cache)
	h := hook.Wrap(func(http.ResponseWriter, *http.Request) error {
		return WithDependency(dErrors.New(dErrors.CodeDatabase, "query failed"), "routing-db")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bins/12", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body respond.DegradedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Degraded)
	assert.True(t, body.Stale)
	assert.JSONEq(t, `{"id":"12","fill_percent":81}`, string(body.Data))
}

func TestWrapFallsBackToDegradationNotice(t *testing.T) {
	hook := newHook(t, recovery.NewMemoryCache())
	h := hook.Wrap(func(http.ResponseWriter, *http.Request) error {
		return WithDependency(dErrors.New(dErrors.CodeDatabase, "query failed"), "routing-db")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bins/404", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body respond.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(dErrors.CodeDatabase), body.Error)
	assert.Equal(t, "service is temporarily degraded", body.Message)
}

func TestWithDependency(t *testing.T) {
	assert.Nil(t, WithDependency(nil, "routing-db"))

	tagged := WithDependency(dErrors.New(dErrors.CodeDatabase, "down"), "routing-db")
	assert.Equal(t, "routing-db", dependencyOf(tagged))

	wrapped := fmt.Errorf("loading bin: %w", tagged)
	assert.Equal(t, "routing-db", dependencyOf(wrapped))
	assert.True(t, dErrors.HasCode(wrapped, dErrors.CodeDatabase))

	assert.Empty(t, dependencyOf(fmt.Errorf("untagged")))
}
