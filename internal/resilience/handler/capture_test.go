package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hauler/internal/resilience/recovery"
	"hauler/internal/resilience/respond"
)

func captureThrough(t *testing.T, cache recovery.ResponseCache, method string, h http.HandlerFunc) {
	t.Helper()
	mw := CaptureResponses(cache, time.Minute, discardLogger())
	rec := httptest.NewRecorder()
	mw(h).ServeHTTP(rec, httptest.NewRequest(method, "/bins/12", nil))
}

func cached(t *testing.T, cache recovery.ResponseCache) (recovery.CachedResponse, bool) {
	t.Helper()
	resp, found, err := cache.Get(context.Background(), recovery.CacheKey("GET", "/bins/12"))
	require.NoError(t, err)
	return resp, found
}

func TestCaptureStoresSuccessfulJSONReads(t *testing.T) {
	cache := recovery.NewMemoryCache()

	captureThrough(t, cache, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"12","fill_percent":81}`))
	})

	resp, found := cached(t, cache)
	require.True(t, found)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"id":"12","fill_percent":81}`, string(resp.Body))
}

func TestCaptureSkipsWrites(t *testing.T) {
	cache := recovery.NewMemoryCache()

	captureThrough(t, cache, http.MethodPost, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accepted":true}`))
	})

	_, found := cached(t, cache)
	assert.False(t, found)
}

func TestCaptureSkipsFailures(t *testing.T) {
	cache := recovery.NewMemoryCache()

	captureThrough(t, cache, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"database_unavailable"}`))
	})

	_, found := cached(t, cache)
	assert.False(t, found)
}

func TestCaptureSkipsDegradedResponses(t *testing.T) {
	// A fallback payload must never be re-captured as if it were fresh.
	cache := recovery.NewMemoryCache()

	captureThrough(t, cache, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(respond.ErrorIDHeader, "11111111-2222-3333-4444-555555555555")
		w.Write([]byte(`{"degraded":true,"data":{}}`))
	})

	_, found := cached(t, cache)
	assert.False(t, found)
}

func TestCaptureSkipsNonJSON(t *testing.T) {
	cache := recovery.NewMemoryCache()

	captureThrough(t, cache, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	_, found := cached(t, cache)
	assert.False(t, found)
}
