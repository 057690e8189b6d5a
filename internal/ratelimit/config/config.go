// Package config holds the static policy tier table. Tiers are enumerated at
// startup and never mutated afterwards; the engine itself is tier-agnostic.
package config

import (
	"time"
)

// Tier names routes select from. Callers pick a tier per route; unknown
// names fall back to TierAnonymous, the most restrictive general tier.
const (
	TierAnonymous     = "anonymous"
	TierAuthenticated = "authenticated"
	TierAdmin         = "admin"
	TierCritical      = "critical"
)

// Burst is an optional short-window guard against high-frequency spikes
// inside an otherwise compliant window.
type Burst struct {
	Window      time.Duration
	MaxRequests int
}

// Quota is an optional long-horizon cap per (identity, resource).
type Quota struct {
	Resource string
	Limit    int
	Window   time.Duration
}

// PolicyTier is one named rate limit configuration.
type PolicyTier struct {
	Name           string
	WindowDuration time.Duration
	MaxRequests    int
	Burst          *Burst
	Quota          *Quota
}

// Config is the full tier table.
type Config struct {
	Tiers map[string]PolicyTier
}

// DefaultConfig returns the standard tier table for the operations API.
func DefaultConfig() *Config {
	return &Config{
		Tiers: map[string]PolicyTier{
			TierAnonymous: {
				Name:           TierAnonymous,
				WindowDuration: time.Minute,
				MaxRequests:    60,
				Burst:          &Burst{Window: time.Second, MaxRequests: 10},
			},
			TierAuthenticated: {
				Name:           TierAuthenticated,
				WindowDuration: time.Minute,
				MaxRequests:    100,
				Burst:          &Burst{Window: time.Second, MaxRequests: 20},
			},
			TierAdmin: {
				Name:           TierAdmin,
				WindowDuration: time.Minute,
				MaxRequests:    300,
			},
			TierCritical: {
				Name:           TierCritical,
				WindowDuration: time.Minute,
				MaxRequests:    20,
				Burst:          &Burst{Window: time.Second, MaxRequests: 5},
				Quota:          &Quota{Resource: "route-optimizations", Limit: 500, Window: 24 * time.Hour},
			},
		},
	}
}

// TierFor resolves a tier by name, falling back to anonymous.
func (c *Config) TierFor(name string) PolicyTier {
	if tier, ok := c.Tiers[name]; ok {
		return tier
	}
	return c.Tiers[TierAnonymous]
}
