// Package main provides a CLI tool for generating test bearer tokens for
// local hauler instances. Tokens are signed with the dev key and will NOT
// work against a production deployment.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Dev signing key - matches config.go when JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	defaultTokenTTL = 15 * time.Minute
)

type tokenOutput struct {
	Token     string         `json:"token"`
	ExpiresIn string         `json:"expires_in"`
	Claims    map[string]any `json:"claims"`
	Usage     string         `json:"usage"`
}

func main() {
	var (
		subject = flag.String("sub", "driver-17", "subject claim (identity ID)")
		role    = flag.String("role", "", "role claim (e.g. admin, dispatcher)")
		ttl     = flag.Duration("ttl", defaultTokenTTL, "token lifetime")
		key     = flag.String("key", "", "signing key (defaults to the dev key)")
	)
	flag.Parse()

	signingKey := *key
	if signingKey == "" {
		signingKey = os.Getenv("JWT_SIGNING_KEY")
	}
	if signingKey == "" {
		signingKey = devSigningKey
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": *subject,
		"iat": now.Unix(),
		"exp": now.Add(*ttl).Unix(),
	}
	if *role != "" {
		claims["role"] = *role
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	if err != nil {
		fmt.Fprintf(os.Stderr, "signing token: %v\n", err)
		os.Exit(1)
	}

	out := tokenOutput{
		Token:     token,
		ExpiresIn: ttl.String(),
		Claims:    claims,
		Usage:     fmt.Sprintf(`curl -H "Authorization: Bearer %s" http://localhost:8080/bins`, token),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encoding output: %v\n", err)
		os.Exit(1)
	}
}
