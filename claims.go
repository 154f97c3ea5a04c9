package oauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is a display-only view of a JWT access token.
type TokenClaims struct {
	Subject   string
	Issuer    string
	Scope     string
	ExpiresAt time.Time
}

// PeekClaims decodes the claims of a JWT access token without verifying its
// signature. Access tokens are opaque to this client, so the result must never
// be used for authorization decisions. ok is false for non-JWT tokens.
func PeekClaims(accessToken string) (*TokenClaims, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, false
	}

	var tc TokenClaims
	tc.Subject, _ = claims.GetSubject()
	tc.Issuer, _ = claims.GetIssuer()

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tc.ExpiresAt = exp.Time
	}

	if scope, ok := claims["scope"].(string); ok {
		tc.Scope = scope
	}

	return &tc, true
}
