package models

import (
	"time"
)

// KeyScope says what a rate limit key identifies.
type KeyScope string

const (
	ScopeUser      KeyScope = "user"
	ScopeIP        KeyScope = "ip"
	ScopeComposite KeyScope = "composite"
)

func (s KeyScope) IsValid() bool {
	switch s {
	case ScopeUser, ScopeIP, ScopeComposite:
		return true
	}
	return false
}

// Algorithm names the sub-check that produced a decision.
type Algorithm string

const (
	AlgorithmWindow Algorithm = "window"
	AlgorithmBurst  Algorithm = "burst"
	AlgorithmQuota  Algorithm = "quota"
)

// RateLimitResult is the outcome of one engine check.
type RateLimitResult struct {
	Allowed      bool      `json:"allowed"`
	Limit        int       `json:"limit"`
	Remaining    int       `json:"remaining"`
	ResetAt      time.Time `json:"reset_at"`
	RetryAfterMs int64     `json:"retry_after_ms,omitempty"` // only set when denied
	Algorithm    Algorithm `json:"algorithm,omitempty"`      // sub-check that denied, empty when allowed
}

// Allowed builds a passing result.
func AllowedResult(limit, remaining int, resetAt time.Time) *RateLimitResult {
	return &RateLimitResult{Allowed: true, Limit: limit, Remaining: remaining, ResetAt: resetAt}
}

// Denied builds a failing result with a retry hint.
func DeniedResult(limit int, resetAt time.Time, retryAfter time.Duration, algorithm Algorithm) *RateLimitResult {
	ms := retryAfter.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return &RateLimitResult{
		Allowed:      false,
		Limit:        limit,
		Remaining:    0,
		ResetAt:      resetAt,
		RetryAfterMs: ms,
		Algorithm:    algorithm,
	}
}
