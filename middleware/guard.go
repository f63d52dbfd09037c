package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/r2s/authgate"
)

// Introspector verifies bearer tokens. *authgate.Gate implements it.
type Introspector interface {
	Introspect(ctx context.Context, token string) (authgate.Principal, error)
}

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by Guard.
func PrincipalFromContext(ctx context.Context) (authgate.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(authgate.Principal)
	return p, ok
}

// Guard rejects requests without a valid bearer token with 401.
func Guard(gate Introspector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate == nil {
				WriteError(w, authgate.ErrGateNotReady)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, authgate.ErrInvalidToken)
				return
			}

			p, err := gate.Introspect(r.Context(), token)
			if err != nil {
				WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
