package classifier

import (
	"time"

	dErrors "hauler/pkg/domain-errors"
)

// ThreatLevel ranks the security relevance of a failure.
type ThreatLevel string

const (
	ThreatNone     ThreatLevel = "none"
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// Impact ranks how much a failure hurts operations, independent of status code.
type Impact string

const (
	ImpactLow      Impact = "low"
	ImpactMedium   Impact = "medium"
	ImpactHigh     Impact = "high"
	ImpactCritical Impact = "critical"
)

// RequestContext is the slice of the inbound request the classifier needs.
type RequestContext struct {
	Method    string
	Path      string
	RequestID string
	Identity  string
	ClientIP  string
	UserAgent string
	// Dependency names the external system the handler was talking to when
	// it failed, when known. Used for circuit bookkeeping and cache keys.
	Dependency string
}

// ClassifiedError is the immutable product of classification. Created once
// per failure; the generated ID correlates logs, audit events, and the wire
// response.
type ClassifiedError struct {
	ID              string
	Category        dErrors.Code
	ThreatLevel     ThreatLevel
	BusinessImpact  Impact
	Retryable       bool
	SourceComponent string
	OriginalMessage string
	OccurredAt      time.Time
	Context         map[string]any
	Request         RequestContext
}

// IsRead reports whether the failed request was an idempotent read. Recovery
// strategies that replay or serve stale data only apply to reads.
func (c *ClassifiedError) IsRead() bool {
	return c.Request.Method == "GET" || c.Request.Method == "HEAD"
}
