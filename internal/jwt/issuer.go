package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// Issuer signs and verifies short-lived HS256 access tokens.
type Issuer struct {
	name string
	key  []byte
	ttl  time.Duration
	now  func() time.Time
}

func NewIssuer(name string, key []byte, ttl time.Duration) (*Issuer, error) {
	if len(key) < 32 {
		return nil, errors.New("signing key must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("token lifetime must be positive")
	}

	return &Issuer{
		name: name,
		key:  key,
		ttl:  ttl,
		now:  time.Now,
	}, nil
}

// Issue returns a signed token for subject and its expiry.
func (i *Issuer) Issue(subject, email, role string) (string, time.Time, error) {
	now := i.now()
	expiry := now.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.name,
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
		Email: email,
		Role:  role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("could not sign token: %w", err)
	}

	return signed, expiry, nil
}

// Verify checks the signature, validity period and issuer of token.
func (i *Issuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return i.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}

	if err := requireRegisteredClaims(claims); err != nil {
		return nil, err
	}

	if claims.Issuer != i.name {
		return nil, fmt.Errorf("invalid issuer: got %q, want %q", claims.Issuer, i.name)
	}

	return claims, nil
}
