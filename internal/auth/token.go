// Package auth inspects bearer tokens issued by the external identity
// provider. The agent never verifies or invalidates tokens locally; only the
// remote authority's explicit rejection ends a session. Decoding is used for
// status display and refresh scheduling.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// DecodeClaims parses a JWT-shaped token without verifying its signature.
// Opaque non-JWT tokens return an error, which callers treat as "no local
// information", never as invalidity.
func DecodeClaims(token string) (*Claims, error) {
	if token == "" {
		return nil, errors.New("empty token")
	}
	parser := jwt.NewParser()
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// DecodeExpiry returns the token's expiry time when one is encoded.
func DecodeExpiry(token string) (time.Time, bool) {
	claims, err := DecodeClaims(token)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// BearerHeader formats the Authorization header value for a token.
func BearerHeader(token string) string {
	return "Bearer " + token
}
