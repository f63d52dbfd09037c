package middleware

import (
	"context"
	"net/http"

	"github.com/r2s/authgate"
)

// Throttler spends request budget. *authgate.Gate implements it.
type Throttler interface {
	Throttle(ctx context.Context, op authgate.Operation, identity string) error
}

// IdentityFunc picks the throttle key for a request.
type IdentityFunc func(*http.Request) string

// Throttle charges op's budget for every request, keyed by ClientIdentity.
// Over budget answers 429; a store outage answers 503.
func Throttle(gate Throttler, op authgate.Operation) func(http.Handler) http.Handler {
	return ThrottleBy(gate, op, ClientIdentity)
}

// ThrottleBy is Throttle with a caller-chosen identity.
func ThrottleBy(gate Throttler, op authgate.Operation, identity IdentityFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate == nil {
				WriteError(w, authgate.ErrGateNotReady)
				return
			}

			ctx := authgate.WithClientIP(r.Context(), RemoteHost(r))
			if err := gate.Throttle(ctx, op, identity(r)); err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
