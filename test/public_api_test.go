package test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/r2s/authgate"
	"github.com/r2s/authgate/credentials"
	"github.com/r2s/authgate/jwt"
	"github.com/r2s/authgate/middleware"
	"github.com/r2s/authgate/password"
)

// TestPublicAPISurfaceCompile fails to build when an exported signature changes.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = authgate.New
	_ = authgate.DefaultConfig
	_ = authgate.KindOf

	var _ *authgate.Gate
	var _ authgate.Config
	var _ authgate.Principal
	var _ authgate.LoginResult
	var _ authgate.IntrospectResult
	var _ authgate.HealthStatus
	var _ authgate.MetricsSnapshot
	var _ authgate.AuditSink
	var _ authgate.CredentialValidator = authgate.CredentialValidatorFunc(nil)

	var _ error = authgate.ErrConfiguration
	var _ error = authgate.ErrInvalidCredentials
	var _ error = authgate.ErrTooManyAttempts
	var _ error = authgate.ErrInvalidToken
	var _ error = authgate.ErrDependencyUnavailable
	var _ error = authgate.ErrGateNotReady
	var _ error = jwt.ErrInvalidPrincipal

	var _ func(*authgate.Gate, context.Context, string, string) (string, error) = (*authgate.Gate).Login
	var _ func(*authgate.Gate, context.Context, string, string) (*authgate.LoginResult, error) = (*authgate.Gate).LoginWithResult
	var _ func(*authgate.Gate, context.Context, string) (authgate.Principal, error) = (*authgate.Gate).Introspect
	var _ func(*authgate.Gate, context.Context, authgate.Operation, string) error = (*authgate.Gate).Throttle
	var _ func(*authgate.Gate, context.Context, string) error = (*authgate.Gate).ResetLogin
	var _ func(*authgate.Gate, context.Context, string) (int64, error) = (*authgate.Gate).LoginAttempts
	var _ func(*authgate.Gate, context.Context, string) (time.Duration, error) = (*authgate.Gate).LoginBlockedFor
	var _ func(*authgate.Gate) uint64 = (*authgate.Gate).AuditDropped
	var _ func(*authgate.Gate, authgate.Operation) uint64 = (*authgate.Gate).AuditDroppedFor

	var _ middleware.Introspector = (*authgate.Gate)(nil)
	var _ middleware.Throttler = (*authgate.Gate)(nil)
	var _ func(middleware.Introspector) func(http.Handler) http.Handler = middleware.Guard
	var _ func(middleware.Throttler, authgate.Operation) func(http.Handler) http.Handler = middleware.Throttle

	var _ authgate.CredentialValidator = (*credentials.Validator)(nil)
	var _ credentials.Store = (*credentials.MemoryStore)(nil)
	var _ func(credentials.Store, *password.Argon2) *credentials.Validator = credentials.NewValidator
}
