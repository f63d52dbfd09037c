package authgate

import (
	"context"
	"errors"

	"github.com/r2s/authgate/jwt"
)

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventLoginRateLimited   = "login_rate_limited"
	auditEventLoginBlocked       = "login_block_installed"
	auditEventLoginReset         = "login_reset"
	auditEventIntrospectInvalid  = "introspect_invalid"
	auditEventThrottleDenied     = "throttle_denied"
	auditEventDependencyRejected = "dependency_unavailable"
)

// AuditErrorCode is the reason string carried in AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenMalformed     AuditErrorCode = "token_malformed"
	auditErrTokenSignature     AuditErrorCode = "token_signature_invalid"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

type auditRecord struct {
	eventType string
	op        Operation
	success   bool
	username  string
	userID    string
	tokenID   string
	err       error
	metadata  map[string]string
}

func (g *Gate) emitAudit(ctx context.Context, r auditRecord) {
	if g == nil || g.audit == nil {
		return
	}
	g.audit.enqueue(ctx, auditEntry{
		at:     g.now().UTC(),
		ip:     clientIPFromContext(ctx),
		record: r,
	})
}

// auditErrorCode keeps the verification sub-kind that the caller never sees.
func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrTooManyAttempts):
		return auditErrRateLimited
	case errors.Is(err, jwt.ErrExpired):
		return auditErrTokenExpired
	case errors.Is(err, jwt.ErrInvalidSignature):
		return auditErrTokenSignature
	case errors.Is(err, jwt.ErrMalformed):
		return auditErrTokenMalformed
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrDependencyUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
