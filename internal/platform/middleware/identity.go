package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the resolved caller, when authentication succeeded upstream.
// The resilience layer keys rate limits and failure counters off it; it is
// never used to grant access.
type Identity struct {
	ID   string
	Role string
}

type identityKey struct{}

// ResolveIdentity extracts an Identity from a bearer token when one is
// present and valid. Requests without a usable token proceed anonymously;
// rejecting them is the business layer's call, not ours.
func ResolveIdentity(signingKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	key := []byte(signingKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return key, nil
			})
			if err != nil || !token.Valid {
				logger.DebugContext(r.Context(), "identity token rejected",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				next.ServeHTTP(w, r)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			identity := Identity{}
			if sub, err := claims.GetSubject(); err == nil {
				identity.ID = sub
			}
			if role, ok := claims["role"].(string); ok {
				identity.Role = role
			}
			if identity.ID == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity retrieves the resolved identity, if any.
func GetIdentity(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

// WithIdentity injects an identity into the context. Test helper and
// composition-root escape hatch for non-JWT identity sources.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}
