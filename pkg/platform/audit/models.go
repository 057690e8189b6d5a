// Package audit defines the security/audit event contract consumed by the
// resilience layer. Events are transport-agnostic so sinks can fan out to
// logs, SIEM pipelines, or stores without touching emitters.
package audit

import (
	"strings"
	"time"

	"github.com/mssola/useragent"
)

// Severity ranks how alarming a security event is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// EventType enumerates the security events the resilience layer emits.
type EventType string

const (
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
	EventBurstGuardTripped EventType = "burst_guard_tripped"
	EventQuotaExhausted    EventType = "quota_exhausted"
	EventLimiterDegraded   EventType = "limiter_degraded"
	EventAuthFailureSpike  EventType = "auth_failure_spike"
	EventCircuitOpened     EventType = "circuit_opened"
	EventCircuitClosed     EventType = "circuit_closed"
)

// Origin captures where a request came from. Device is derived from the
// User-Agent header, never stored raw.
type Origin struct {
	IP     string `json:"ip,omitempty"`
	Device string `json:"device,omitempty"`
}

// Event is a single security observation. Identity is the resolved subject
// when one exists; anonymous traffic carries only Origin.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Severity  Severity       `json:"severity"`
	Identity  string         `json:"identity,omitempty"`
	Origin    Origin         `json:"origin,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// OriginFromRequest builds an Origin from the client IP and User-Agent header.
func OriginFromRequest(ip, userAgentString string) Origin {
	return Origin{IP: ip, Device: DeviceLabel(userAgentString)}
}

// DeviceLabel condenses a User-Agent string to "Browser on OS" for event
// metadata, keeping raw UA strings out of the audit trail.
func DeviceLabel(userAgentString string) string {
	if userAgentString == "" {
		return ""
	}

	ua := useragent.New(userAgentString)
	browser, _ := ua.Browser()
	os := ua.OS()

	browser = strings.TrimSpace(browser)
	if browser == "" {
		browser = "unknown"
	}
	if os == "" {
		os = "unknown"
	}
	return browser + " on " + os
}
