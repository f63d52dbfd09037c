package authgate

import (
	"time"

	"github.com/r2s/authgate/internal/rate"
	"github.com/r2s/authgate/jwt"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/r2s/authgate"

// Builder assembles a Gate. Configure it during initialization, call Build
// once, and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	validator      CredentialValidator
	auditSink      AuditSink
	logger         *zap.Logger
	tracerProvider trace.TracerProvider
	now            func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithSigningKey sets Config.Token.SigningKey. key is copied.
func (b *Builder) WithSigningKey(key []byte) *Builder {
	b.config.Token.SigningKey = cloneBytes(key)
	return b
}

// WithRedis sets the counter store. Single-node, sentinel and cluster clients
// all satisfy redis.UniversalClient.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialValidator sets the account check used by Login.
func (b *Builder) WithCredentialValidator(v CredentialValidator) *Builder {
	b.validator = v
	return b
}

// WithAuditSink sets where audit events go. Has no effect unless
// Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithTracerProvider sets the span source. Defaults to the global provider.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithClock replaces time.Now for token issuance, verification and audit
// timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Gate. Every error
// matches ErrConfiguration. A Builder can only be built once.
func (b *Builder) Build() (*Gate, error) {
	if b.built {
		return nil, configErr("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, configErr("redis client required")
	}
	if b.validator == nil {
		return nil, configErr("credential validator required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- TOKENS --------
	tokens, err := jwt.NewManager(jwt.Config{
		SigningKey: cloneBytes(cfg.Token.SigningKey),
		Issuer:     cfg.Token.Issuer,
		Leeway:     cfg.Token.Leeway,
		Now:        now,
	})
	if err != nil {
		return nil, configErr("%v", err)
	}

	// -------- OBSERVABILITY --------
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tp := b.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	logger = logger.Named("authgate")

	gate := &Gate{
		config:    cfg,
		redis:     b.redis,
		limiter:   rate.New(b.redis, cfg.RateLimit.keyBuilder()),
		tokens:    tokens,
		validator: b.validator,
		audit:     newAuditDispatcher(cfg.Audit, b.auditSink, logger),
		metrics:   NewMetrics(cfg.Metrics),
		logger:    logger,
		tracer:    tp.Tracer(tracerName),
		now:       now,
	}

	b.built = true

	return gate, nil
}
