package models

import (
	"fmt"
	"strings"
)

// RateKey is a value object identifying a rate limit subject. It centralizes
// key format and sanitization so user-controlled identifiers cannot collide
// with adjacent buckets.
type RateKey struct {
	scope      KeyScope
	identifier string
	tier       string
}

// NewRateKey builds a key for one subject under one policy tier.
func NewRateKey(scope KeyScope, identifier, tier string) RateKey {
	return RateKey{
		scope:      scope,
		identifier: sanitizeKeySegment(identifier),
		tier:       sanitizeKeySegment(tier),
	}
}

// NewCompositeRateKey joins an identity with its network origin, for
// critical endpoints where neither alone should own the bucket.
func NewCompositeRateKey(userID, ip, tier string) RateKey {
	composite := fmt.Sprintf("%s:%s", sanitizeKeySegment(userID), sanitizeKeySegment(ip))
	return RateKey{scope: ScopeComposite, identifier: composite, tier: sanitizeKeySegment(tier)}
}

func (k RateKey) Scope() KeyScope     { return k.scope }
func (k RateKey) Identifier() string  { return k.identifier }
func (k RateKey) Tier() string        { return k.tier }

// String returns the storage key for the primary window counter.
func (k RateKey) String() string {
	return fmt.Sprintf("rl:%s:%s:%s", k.scope, k.identifier, k.tier)
}

// BurstKey returns the storage key for the independent burst counter.
func (k RateKey) BurstKey() string {
	return k.String() + ":burst"
}

// QuotaKey returns the storage key for a long-horizon resource quota.
// Quotas are identity-scoped per (identity, resource).
func (k RateKey) QuotaKey(resource string) string {
	return fmt.Sprintf("rlq:%s:%s", k.identifier, sanitizeKeySegment(resource))
}

// sanitizeKeySegment escapes delimiter characters in key segments so two
// distinct inputs can never produce the same sanitized output.
//
// Escape rules (order matters):
//  1. '_' becomes '__' (escape the escape character first)
//  2. ':' becomes '_c' (escape the delimiter)
func sanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
