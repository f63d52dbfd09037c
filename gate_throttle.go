package authgate

import (
	"context"
	"fmt"

	"github.com/r2s/authgate/internal/rate"
)

// Throttle counts one request by identity against the budget for op and
// returns ErrTooManyAttempts once the window's budget is spent. There is no
// block phase; the identity is admitted again when the window expires. A
// store failure rejects the request with ErrDependencyUnavailable.
//
// OpLogin is not accepted: the login budget only counts failed credentials and
// is enforced by Login itself.
func (g *Gate) Throttle(ctx context.Context, op Operation, identity string) error {
	if !g.ready() {
		return ErrGateNotReady
	}

	policy, ok := g.config.RateLimit.throttlePolicy(op)
	if !ok {
		return fmt.Errorf("no throttle budget for operation %s", op)
	}

	ctx, span := g.startSpan(ctx, "authgate.Throttle", op)

	sctx, cancel := g.storeContext(ctx)
	allowed, err := g.limiter.Allow(sctx, rate.Key{Op: op, Identity: identity}, policy.MaxAttempts, policy.Window)
	cancel()

	switch {
	case err != nil:
		err = g.unavailable(span, op, err)
	case !allowed:
		g.metricInc(MetricThrottleDenied)
		g.emitAudit(ctx, auditRecord{eventType: auditEventThrottleDenied, op: op, err: ErrTooManyAttempts})
		err = ErrTooManyAttempts
	}

	endSpan(span, err)
	return err
}
