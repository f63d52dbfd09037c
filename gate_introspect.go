package authgate

import (
	"context"
	"errors"

	"github.com/r2s/authgate/jwt"
	"go.uber.org/zap"
)

// Introspect verifies token and returns its principal. Every verification
// failure returns the same ErrInvalidToken; the precise reason is only logged,
// counted and audited. Introspect performs no store I/O; throttle callers with
// Throttle(ctx, OpIntrospect, identity) first.
func (g *Gate) Introspect(ctx context.Context, token string) (Principal, error) {
	if !g.ready() {
		return Principal{}, ErrGateNotReady
	}

	ctx, span := g.startSpan(ctx, "authgate.Introspect", OpIntrospect)
	p, _, err := g.introspect(ctx, token)
	endSpan(span, err)
	return p, err
}

// IntrospectToken is Introspect shaped for a response body: invalid tokens
// yield Valid=false and nothing else.
func (g *Gate) IntrospectToken(ctx context.Context, token string) IntrospectResult {
	if !g.ready() {
		return IntrospectResult{}
	}

	ctx, span := g.startSpan(ctx, "authgate.Introspect", OpIntrospect)
	p, claims, err := g.introspect(ctx, token)
	endSpan(span, err)
	if err != nil {
		return IntrospectResult{}
	}

	return IntrospectResult{
		Valid:     true,
		UserID:    p.ID,
		Username:  p.Username,
		Roles:     p.Roles,
		ExpiresAt: claims.ExpiresAt.Unix(),
	}
}

func (g *Gate) introspect(ctx context.Context, token string) (Principal, *jwt.Claims, error) {
	claims, err := g.tokens.Verify(token)
	if err != nil {
		reason := auditErrorCode(err)
		switch {
		case errors.Is(err, jwt.ErrExpired):
			g.metricInc(MetricTokenExpired)
		case errors.Is(err, jwt.ErrInvalidSignature):
			g.metricInc(MetricTokenSignatureInvalid)
		default:
			g.metricInc(MetricTokenMalformed)
		}
		g.metricInc(MetricIntrospectInvalid)
		g.logger.Debug("token rejected", zap.String("reason", string(reason)))
		g.emitAudit(ctx, auditRecord{eventType: auditEventIntrospectInvalid, op: OpIntrospect, err: err})
		return Principal{}, nil, ErrInvalidToken
	}

	g.metricInc(MetricIntrospectSuccess)
	p := claims.Principal()
	return Principal{
		ID:       p.ID,
		Username: p.Username,
		Roles:    p.Roles,
	}, claims, nil
}
