package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt reads the exp claim of a JWT without verifying its signature.
// It is only used to decide when a cached ID token must be refreshed.
func ExpiresAt(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("exp claim not present")
	}
	return exp.Time, nil
}

// tokenExpiry prefers the token's own exp claim and falls back to the
// provider-reported lifetime.
func tokenExpiry(raw string, expiresIn string, now time.Time) time.Time {
	if exp, err := ExpiresAt(raw); err == nil {
		return exp
	}
	var secs int
	if _, err := fmt.Sscanf(expiresIn, "%d", &secs); err == nil && secs > 0 {
		return now.Add(time.Duration(secs) * time.Second)
	}
	return now
}
