package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hauler/internal/resilience/recovery"
	"hauler/internal/resilience/respond"
)

// maxCaptureBytes bounds how large a response body the capture middleware
// will copy into the fallback cache.
const maxCaptureBytes = 256 * 1024

// CaptureResponses tees successful JSON reads into the fallback cache so the
// cached-fallback strategy has something to serve during an outage. Only
// 200-status GET responses are captured; degraded responses are skipped so a
// fallback payload never re-enters the cache.
func CaptureResponses(cache recovery.ResponseCache, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(cw, r)

			if !cw.cacheable() {
				return
			}

			err := cache.Put(r.Context(), recovery.CacheKey(r.Method, r.URL.Path), recovery.CachedResponse{
				Status:      cw.status,
				ContentType: cw.Header().Get("Content-Type"),
				Body:        cw.body.Bytes(),
				StoredAt:    time.Now().UTC(),
			}, ttl)
			if err != nil {
				logger.WarnContext(r.Context(), "failed to capture response for fallback cache",
					slog.String("path", r.URL.Path), slog.Any("error", err))
			}
		})
	}
}

type captureWriter struct {
	http.ResponseWriter
	status   int
	body     bytes.Buffer
	overflow bool
}

func (w *captureWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if !w.overflow {
		if w.body.Len()+len(b) > maxCaptureBytes {
			w.overflow = true
			w.body.Reset()
		} else {
			w.body.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) cacheable() bool {
	if w.status != http.StatusOK || w.overflow || w.body.Len() == 0 {
		return false
	}
	if w.Header().Get(respond.ErrorIDHeader) != "" {
		return false
	}
	return strings.HasPrefix(w.Header().Get("Content-Type"), "application/json")
}
