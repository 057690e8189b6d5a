// Package config builds process configuration from the environment so main
// stays lean. All values are read once at startup and immutable afterwards.
package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	DevMode       bool
	JWTSigningKey string
	// StoreTimeout bounds every call into the distributed counter store and
	// fallback cache. The resilience layer must never become the slow path.
	StoreTimeout time.Duration
	Redis        Redis
}

// Redis holds connection settings for the shared counter store.
// An empty URL means Redis is not configured and in-process stores are used.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("HAULER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          addr,
		DevMode:       os.Getenv("HAULER_DEV_MODE") == "true",
		JWTSigningKey: jwtSigningKey,
		StoreTimeout:  envDuration("STORE_TIMEOUT", 100*time.Millisecond),
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 200*time.Millisecond),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 200*time.Millisecond),
		},
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return fallback
}
