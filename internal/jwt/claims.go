package jwt

import (
	"errors"

	"github.com/golang-jwt/jwt/v4"
)

// Claims are the claims carried by campus access tokens.
type Claims struct {
	jwt.RegisteredClaims

	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// requireRegisteredClaims ensures that the claims the server relies on are
// present. Signature and time validation is done by the parser: this only
// checks presence.
func requireRegisteredClaims(c *Claims) error {
	if c.Issuer == "" {
		return errors.New("issuer claim not present")
	}

	if c.Subject == "" {
		return errors.New("subject claim not present")
	}

	if c.ExpiresAt == nil {
		return errors.New("token has no expiry")
	}

	return nil
}
