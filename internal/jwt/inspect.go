package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenInfo is what the client can learn from an access token without the
// signing key.
type TokenInfo struct {
	// Opaque is true when the token is not a JWT; other fields are then empty.
	Opaque    bool
	Subject   string
	Email     string
	Issuer    string
	ExpiresAt time.Time
}

// Expired reports whether the token carries an expiry that has passed.
func (i TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Inspect reads the claims of token without verifying its signature. The
// result is informational only and must never be used for authorization.
func Inspect(token string) TokenInfo {
	claims := &Claims{}

	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{Opaque: true}
	}

	info := TokenInfo{
		Subject: claims.Subject,
		Email:   claims.Email,
		Issuer:  claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}

	return info
}
