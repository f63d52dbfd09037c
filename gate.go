package authgate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/r2s/authgate/internal/rate"
	"github.com/r2s/authgate/jwt"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Gate is the authentication and throttling front door. It is built by
// [Builder.Build] and safe for concurrent use; it holds no locks and no mutable
// state of its own, all coordination happens in the counter store.
type Gate struct {
	config    Config
	redis     redis.UniversalClient
	limiter   *rate.Limiter
	tokens    *jwt.Manager
	validator CredentialValidator
	audit     *auditDispatcher
	metrics   *Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// HealthStatus is the result of pinging the counter store.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// Close flushes pending audit events. The Redis client is owned by the caller
// and stays open.
func (g *Gate) Close() {
	if g == nil {
		return
	}
	if g.audit != nil {
		g.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (g *Gate) AuditDropped() uint64 {
	if g == nil || g.audit == nil {
		return 0
	}
	return g.audit.Dropped()
}

// AuditDroppedFor returns the dropped audit events raised by op.
func (g *Gate) AuditDroppedFor(op Operation) uint64 {
	if g == nil || g.audit == nil {
		return 0
	}
	return g.audit.DroppedFor(op)
}

// MetricsSnapshot copies the in-process counters.
func (g *Gate) MetricsSnapshot() MetricsSnapshot {
	if g == nil || g.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return g.metrics.Snapshot()
}

// Health pings the counter store.
func (g *Gate) Health(ctx context.Context) HealthStatus {
	if g == nil || g.redis == nil {
		return HealthStatus{}
	}

	ctx, cancel := g.storeContext(ctx)
	defer cancel()

	start := time.Now()
	err := g.redis.Ping(ctx).Err()
	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   time.Since(start),
	}
}

func (g *Gate) ready() bool {
	return g != nil && g.limiter != nil && g.tokens != nil
}

func (g *Gate) metricInc(id MetricID) {
	if g == nil || g.metrics == nil {
		return
	}
	g.metrics.Inc(id)
}

func (g *Gate) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, g.config.Timeouts.Store)
}

func (g *Gate) credentialsContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, g.config.Timeouts.Credentials)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// unavailable logs a fail-closed rejection and maps cause to ErrDependencyUnavailable.
func (g *Gate) unavailable(span trace.Span, op Operation, cause error) error {
	g.metricInc(MetricDependencyUnavailable)
	g.logger.Warn("dependency unavailable, rejecting request",
		zap.Stringer("operation", op),
		zap.Error(cause),
	)
	span.RecordError(cause)
	span.SetStatus(codes.Error, "dependency unavailable")
	return fmt.Errorf("%w: %v", ErrDependencyUnavailable, cause)
}

func (g *Gate) startSpan(ctx context.Context, name string, op Operation) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return g.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("authgate.operation", op.String()),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("authgate.error_kind", KindOf(err).String()))
		if KindOf(err) != KindDependencyUnavailable {
			span.SetStatus(codes.Error, KindOf(err).String())
		}
	}
	span.End()
}

// normalizeUsername is the login budget identity: surrounding space trimmed,
// lower-cased, so "Alice " and "alice" share one counter.
func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
