// Package respond turns classified failures and recovery outcomes into wire
// responses. It owns the category-to-status mapping and makes sure internals
// never leak: production clients get a stable code, a safe message, and the
// error ID to quote at support.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	dErrors "hauler/pkg/domain-errors"
	"hauler/pkg/platform/httputil"

	"hauler/internal/resilience/classifier"
	"hauler/internal/resilience/recovery"
)

// ErrorIDHeader carries the classification ID so clients and support can
// correlate a response with logs and audit events.
const ErrorIDHeader = "X-Error-Id"

var statusByCategory = map[dErrors.Code]int{
	dErrors.CodeValidation:         http.StatusBadRequest,
	dErrors.CodeAuthentication:     http.StatusUnauthorized,
	dErrors.CodeAuthorization:      http.StatusForbidden,
	dErrors.CodeNotFound:           http.StatusNotFound,
	dErrors.CodeTimeout:            http.StatusRequestTimeout,
	dErrors.CodeRateLimited:        http.StatusTooManyRequests,
	dErrors.CodeCircuitOpen:        http.StatusServiceUnavailable,
	dErrors.CodeDatabase:           http.StatusServiceUnavailable,
	dErrors.CodeServiceUnavailable: http.StatusServiceUnavailable,
	dErrors.CodeResource:           http.StatusServiceUnavailable,
}

var publicMessages = map[dErrors.Code]string{
	dErrors.CodeValidation:         "the request is invalid",
	dErrors.CodeAuthentication:     "authentication required",
	dErrors.CodeAuthorization:      "not allowed",
	dErrors.CodeNotFound:           "not found",
	dErrors.CodeTimeout:            "the operation timed out",
	dErrors.CodeRateLimited:        "too many requests",
	dErrors.CodeCircuitOpen:        "a dependency is temporarily unavailable",
	dErrors.CodeDatabase:           "a dependency is temporarily unavailable",
	dErrors.CodeServiceUnavailable: "a dependency is temporarily unavailable",
	dErrors.CodeResource:           "the service is over capacity",
}

// ErrorResponse is the production error body.
type ErrorResponse struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	ErrorID      string `json:"error_id"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
	// Detail carries the original error text in dev mode only.
	Detail string `json:"detail,omitempty"`
}

// DegradedResponse wraps a recovered payload so clients can tell fresh data
// from fallback data.
type DegradedResponse struct {
	Degraded bool            `json:"degraded"`
	Stale    bool            `json:"stale,omitempty"`
	Data     json.RawMessage `json:"data"`
	Message  string          `json:"message,omitempty"`
	ErrorID  string          `json:"error_id"`
}

type Composer struct {
	logger  *slog.Logger
	devMode bool
}

func NewComposer(logger *slog.Logger, devMode bool) *Composer {
	return &Composer{logger: logger, devMode: devMode}
}

// Write renders the terminal response for a classified failure. A recovered
// outcome becomes a degraded success; everything else becomes an error body
// with the category's status.
func (c *Composer) Write(w http.ResponseWriter, r *http.Request, ce *classifier.ClassifiedError, out *recovery.Outcome) {
	w.Header().Set(ErrorIDHeader, ce.ID)

	if out != nil && out.Recovered {
		c.writeDegraded(w, r, ce, out)
		return
	}

	status := http.StatusInternalServerError
	if s, ok := statusByCategory[ce.Category]; ok {
		status = s
	}
	message := "an internal error occurred"
	if m, ok := publicMessages[ce.Category]; ok {
		message = m
	}

	body := ErrorResponse{
		Error:   string(ce.Category),
		Message: message,
		ErrorID: ce.ID,
	}
	if out != nil {
		if out.RetryAfterMs > 0 {
			body.RetryAfterMs = out.RetryAfterMs
			w.Header().Set("Retry-After", retryAfterSeconds(out.RetryAfterMs))
		}
		if out.Message != "" {
			body.Message = out.Message
		}
	}
	if c.devMode {
		body.Detail = ce.OriginalMessage
	}

	httputil.WriteJSON(w, status, body)

	c.logger.DebugContext(r.Context(), "error response composed",
		slog.String("error_id", ce.ID),
		slog.Int("status", status),
		slog.String("category", string(ce.Category)),
	)
}

func (c *Composer) writeDegraded(w http.ResponseWriter, r *http.Request, ce *classifier.ClassifiedError, out *recovery.Outcome) {
	data := json.RawMessage(out.Payload)
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	body := DegradedResponse{
		Degraded: true,
		Stale:    out.Stale,
		Data:     data,
		Message:  out.Message,
		ErrorID:  ce.ID,
	}
	httputil.WriteJSON(w, http.StatusOK, body)

	c.logger.InfoContext(r.Context(), "degraded response served",
		slog.String("error_id", ce.ID),
		slog.String("strategy", out.Strategy),
		slog.Bool("stale", out.Stale),
	)
}

// retryAfterSeconds converts a millisecond hint to the whole-second header
// form, rounding up so clients never come back early.
func retryAfterSeconds(ms int64) string {
	secs := time.Duration(ms) * time.Millisecond
	rounded := int64((secs + time.Second - 1) / time.Second)
	if rounded < 1 {
		rounded = 1
	}
	return strconv.FormatInt(rounded, 10)
}
