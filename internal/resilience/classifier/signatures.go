package classifier

import (
	"strings"

	dErrors "hauler/pkg/domain-errors"
)

// signature maps a message/stack marker to a category. The set is evaluated
// in order; first hit wins.
type signature struct {
	markers  []string
	category dErrors.Code
}

// signatureSet covers the raw errors that reach the boundary without a
// domain code: driver errors, net errors, and context cancellations.
var signatureSet = []signature{
	{
		markers:  []string{"context deadline exceeded", "i/o timeout", "timed out", "timeout exceeded"},
		category: dErrors.CodeTimeout,
	},
	{
		markers: []string{
			"sqlstate", "er_", "pq:", "pgx", "deadlock", "too many connections",
			"database is locked", "bad connection",
		},
		category: dErrors.CodeDatabase,
	},
	{
		markers: []string{
			"connection refused", "connection reset", "no such host",
			"broken pipe", "unexpected eof", "service unavailable", "bad gateway",
		},
		category: dErrors.CodeServiceUnavailable,
	},
	{
		markers:  []string{"out of memory", "resource temporarily unavailable", "file descriptor"},
		category: dErrors.CodeResource,
	},
}

// matchSignature infers a category from an error message. Returns
// CodeInternal when nothing matches.
func matchSignature(message string) (dErrors.Code, bool) {
	lowered := strings.ToLower(message)
	for _, sig := range signatureSet {
		for _, marker := range sig.markers {
			if strings.Contains(lowered, marker) {
				return sig.category, true
			}
		}
	}
	return dErrors.CodeInternal, false
}

// defaultImpact is the business impact assigned per category when the
// raiser did not say otherwise.
func defaultImpact(category dErrors.Code) Impact {
	switch category {
	case dErrors.CodeValidation, dErrors.CodeNotFound:
		return ImpactLow
	case dErrors.CodeAuthentication, dErrors.CodeAuthorization, dErrors.CodeRateLimited, dErrors.CodeTimeout:
		return ImpactMedium
	case dErrors.CodeDatabase, dErrors.CodeCircuitOpen:
		return ImpactHigh
	case dErrors.CodeServiceUnavailable, dErrors.CodeResource:
		return ImpactHigh
	case dErrors.CodeCrypto:
		return ImpactCritical
	default:
		return ImpactMedium
	}
}

// baseThreat is the threat level implied by the category alone, before the
// repeated-failure overlay runs.
func baseThreat(category dErrors.Code) ThreatLevel {
	switch category {
	case dErrors.CodeAuthentication, dErrors.CodeAuthorization:
		return ThreatLow
	case dErrors.CodeCrypto:
		return ThreatMedium
	default:
		return ThreatNone
	}
}
