// Package middleware exposes the rate limiter as a pre-handler hook for the
// hosting router. It either proceeds or answers with a fully formed 429.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"hauler/internal/platform/middleware"
	rlconfig "hauler/internal/ratelimit/config"
	"hauler/internal/ratelimit/models"
	"hauler/pkg/platform/httputil"
)

// Limiter is the engine contract the middleware needs.
type Limiter interface {
	Check(ctx context.Context, key models.RateKey, tier rlconfig.PolicyTier) *models.RateLimitResult
}

// Middleware wires tier selection and key derivation in front of handlers.
type Middleware struct {
	limiter Limiter
	tiers   *rlconfig.Config
	logger  *slog.Logger
}

// New creates the rate limit middleware.
func New(limiter Limiter, tiers *rlconfig.Config, logger *slog.Logger) *Middleware {
	return &Middleware{limiter: limiter, tiers: tiers, logger: logger}
}

// Limit enforces the named tier, keyed by resolved identity when present and
// network origin otherwise.
func (m *Middleware) Limit(tierName string) func(http.Handler) http.Handler {
	return m.limit(tierName, func(ctx context.Context, tier string) models.RateKey {
		if identity, ok := middleware.GetIdentity(ctx); ok {
			return models.NewRateKey(models.ScopeUser, identity.ID, tier)
		}
		return models.NewRateKey(models.ScopeIP, middleware.GetClientIP(ctx), tier)
	})
}

// LimitComposite enforces the named tier keyed by identity and origin
// together. Meant for critical endpoints where a shared credential must not
// pool capacity across source addresses.
func (m *Middleware) LimitComposite(tierName string) func(http.Handler) http.Handler {
	return m.limit(tierName, func(ctx context.Context, tier string) models.RateKey {
		ip := middleware.GetClientIP(ctx)
		if identity, ok := middleware.GetIdentity(ctx); ok {
			return models.NewCompositeRateKey(identity.ID, ip, tier)
		}
		return models.NewRateKey(models.ScopeIP, ip, tier)
	})
}

func (m *Middleware) limit(tierName string, keyFn func(context.Context, string) models.RateKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tier := m.tiers.TierFor(tierName)
			result := m.limiter.Check(ctx, keyFn(ctx, tier.Name), tier)

			// Rate limit headers go out on every evaluated request.
			setRateLimitHeaders(w, result)

			if !result.Allowed {
				writeRateLimitExceeded(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	h := w.Header()
	h.Set("RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	retryAfterSeconds := (result.RetryAfterMs + 999) / 1000
	w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds, 10))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:        "rate_limit_exceeded",
		Message:      "Too many requests. Please slow down and try again.",
		RetryAfterMs: result.RetryAfterMs,
	})
}
