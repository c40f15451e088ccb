// Package jwt handles campus access tokens: inspecting them on the client
// and issuing and verifying them in the mock server.
package jwt

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Middleware returns HTTP middleware that verifies the bearer token on the
// request. The verified claims are set on the request context and can be
// retrieved by calling jwt.ClaimsFromContext(ctx). Requests without a valid
// token are answered with 401.
func Middleware(issuer *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "Authentication required")
				return
			}

			claims, err := issuer.Verify(token)
			if err != nil {
				log.Ctx(r.Context()).Info().Err(err).Msg("JWT authorization failure")
				unauthorized(w, "Invalid or expired token")
				return
			}

			trace.SpanFromContext(r.Context()).SetAttributes(
				attribute.String("campus.user_id", claims.Subject),
			)

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

type claimsContextKey struct{}

// ContextWithClaims returns a new context.Context with the provided verified
// claims added to it.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the verified claims set by the middleware, or nil
// when absent.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(*Claims)
	return claims
}

func RequireClaimsFromContext(ctx context.Context) Claims {
	c := ClaimsFromContext(ctx)
	if c == nil {
		panic("JWT claims not present in context, likely used outside of the JWT middleware")
	}

	return *c
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
