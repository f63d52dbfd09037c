package authgate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/r2s/authgate/internal/rate"
	"github.com/r2s/authgate/jwt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TokenTypeBearer is the token_type reported for issued tokens.
const TokenTypeBearer = "Bearer"

// Login checks username and password and returns a signed bearer token.
//
// A blocked username is rejected with ErrTooManyAttempts before the credential
// validator is consulted. Unknown usernames and wrong passwords both yield
// ErrInvalidCredentials and both count toward the block. A counter store or
// validator failure yields ErrDependencyUnavailable.
func (g *Gate) Login(ctx context.Context, username, password string) (string, error) {
	result, err := g.LoginWithResult(ctx, username, password)
	if err != nil {
		return "", err
	}
	return result.AccessToken, nil
}

// LoginWithResult is Login with the token metadata.
func (g *Gate) LoginWithResult(ctx context.Context, username, password string) (*LoginResult, error) {
	if !g.ready() {
		return nil, ErrGateNotReady
	}

	start := time.Now()
	if g.metrics.LatencyEnabled() {
		defer func() { g.metrics.Observe(MetricLoginLatency, time.Since(start)) }()
	}

	ctx, span := g.startSpan(ctx, "authgate.Login", OpLogin)
	result, err := g.login(ctx, username, password)
	endSpan(span, err)
	return result, err
}

func (g *Gate) login(ctx context.Context, username, password string) (*LoginResult, error) {
	name := normalizeUsername(username)
	key := rate.Key{Op: OpLogin, Identity: name}
	span := trace.SpanFromContext(ctx)

	// 1. Blocked callers never reach the validator.
	blocked, err := g.isBlocked(ctx, key)
	if err != nil {
		g.emitAudit(ctx, auditRecord{eventType: auditEventDependencyRejected, op: OpLogin, username: name, err: ErrDependencyUnavailable})
		return nil, g.unavailable(span, OpLogin, err)
	}
	if blocked {
		g.metricInc(MetricLoginRateLimited)
		g.emitAudit(ctx, auditRecord{eventType: auditEventLoginRateLimited, op: OpLogin, username: name, err: ErrTooManyAttempts})
		return nil, ErrTooManyAttempts
	}

	// 2. Credentials.
	principal, err := g.validate(ctx, username, password)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			g.emitAudit(ctx, auditRecord{eventType: auditEventDependencyRejected, op: OpLogin, username: name, err: ErrDependencyUnavailable})
			return nil, g.unavailable(span, OpLogin, err)
		}
		return nil, g.recordFailure(ctx, key)
	}
	if principal.ID == "" {
		return nil, fmt.Errorf("credential validator returned a principal without an ID for %q", name)
	}
	if principal.Username == "" {
		principal.Username = strings.TrimSpace(username)
	}

	// 3. Forgive earlier failures. A failed reset does not fail the login; the
	// counter expires on its own.
	if err := g.reset(ctx, key); err != nil {
		g.logger.Warn("login succeeded but failure counter reset failed",
			zap.String("username", name),
			zap.Error(err),
		)
	}

	// 4. Issue.
	token, claims, err := g.tokens.Issue(jwt.Principal{
		ID:       principal.ID,
		Username: principal.Username,
		Roles:    principal.Roles,
	}, g.config.Token.TTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	g.metricInc(MetricLoginSuccess)
	g.emitAudit(ctx, auditRecord{
		eventType: auditEventLoginSuccess,
		op:        OpLogin,
		success:   true,
		username:  name,
		userID:    principal.ID,
		tokenID:   claims.ID,
	})
	span.SetAttributes(attribute.String("authgate.token_id", claims.ID))

	verified := claims.Principal()
	return &LoginResult{
		AccessToken: token,
		TokenType:   TokenTypeBearer,
		TokenID:     claims.ID,
		ExpiresAt:   claims.ExpiresAt.Time,
		Principal: Principal{
			ID:       verified.ID,
			Username: verified.Username,
			Roles:    verified.Roles,
		},
	}, nil
}

// recordFailure counts one bad credential and always returns the error the
// caller sees.
func (g *Gate) recordFailure(ctx context.Context, key rate.Key) error {
	span := trace.SpanFromContext(ctx)

	sctx, cancel := g.storeContext(ctx)
	blocked, err := g.limiter.RecordFailure(sctx, key, g.config.RateLimit.Login.limiterPolicy())
	cancel()
	if err != nil {
		g.emitAudit(ctx, auditRecord{eventType: auditEventDependencyRejected, op: OpLogin, username: key.Identity, err: ErrDependencyUnavailable})
		return g.unavailable(span, OpLogin, err)
	}

	g.metricInc(MetricLoginFailure)
	g.emitAudit(ctx, auditRecord{eventType: auditEventLoginFailure, op: OpLogin, username: key.Identity, err: ErrInvalidCredentials})

	if blocked {
		g.metricInc(MetricLoginBlockInstalled)
		g.logger.Info("login block installed",
			zap.String("username", key.Identity),
			zap.Duration("duration", g.config.RateLimit.Login.BlockDuration),
		)
		g.emitAudit(ctx, auditRecord{
			eventType: auditEventLoginBlocked,
			op:        OpLogin,
			username:  key.Identity,
			err:       ErrTooManyAttempts,
			metadata: map[string]string{
				"block_duration": g.config.RateLimit.Login.BlockDuration.String(),
			},
		})
	}

	return ErrInvalidCredentials
}

func (g *Gate) validate(ctx context.Context, username, password string) (Principal, error) {
	cctx, cancel := g.credentialsContext(ctx)
	defer cancel()
	return g.validator.Validate(cctx, username, password)
}

func (g *Gate) isBlocked(ctx context.Context, key rate.Key) (bool, error) {
	sctx, cancel := g.storeContext(ctx)
	defer cancel()
	return g.limiter.IsBlocked(sctx, key)
}

func (g *Gate) reset(ctx context.Context, key rate.Key) error {
	sctx, cancel := g.storeContext(ctx)
	defer cancel()
	return g.limiter.Reset(sctx, key)
}

// ResetLogin clears the failure counter and any block for username.
func (g *Gate) ResetLogin(ctx context.Context, username string) error {
	if !g.ready() {
		return ErrGateNotReady
	}

	ctx, span := g.startSpan(ctx, "authgate.ResetLogin", OpLogin)
	name := normalizeUsername(username)

	var err error
	if rerr := g.reset(ctx, rate.Key{Op: OpLogin, Identity: name}); rerr != nil {
		err = g.unavailable(span, OpLogin, rerr)
	} else {
		g.emitAudit(ctx, auditRecord{eventType: auditEventLoginReset, op: OpLogin, success: true, username: name})
	}

	endSpan(span, err)
	return err
}

// LoginAttempts returns the failed logins counted for username in the current window.
func (g *Gate) LoginAttempts(ctx context.Context, username string) (int64, error) {
	if !g.ready() {
		return 0, ErrGateNotReady
	}

	sctx, cancel := g.storeContext(ctx)
	defer cancel()

	n, err := g.limiter.Attempts(sctx, rate.Key{Op: OpLogin, Identity: normalizeUsername(username)})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	return n, nil
}

// LoginBlockedFor returns how long username stays blocked, or zero.
func (g *Gate) LoginBlockedFor(ctx context.Context, username string) (time.Duration, error) {
	if !g.ready() {
		return 0, ErrGateNotReady
	}

	sctx, cancel := g.storeContext(ctx)
	defer cancel()

	d, err := g.limiter.BlockedFor(sctx, rate.Key{Op: OpLogin, Identity: normalizeUsername(username)})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	return d, nil
}
