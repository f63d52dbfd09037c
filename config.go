package authgate

import (
	"fmt"
	"strings"
	"time"

	"github.com/r2s/authgate/internal/rate"
	"github.com/r2s/authgate/jwt"
)

// Config is the complete gate configuration. It is built once at startup,
// validated by [Builder.Build], and copied into the Gate; nothing inside the gate
// reads configuration from global state.
type Config struct {
	Token     TokenConfig
	RateLimit RateLimitConfig
	Timeouts  TimeoutConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls bearer token issuance.
type TokenConfig struct {
	// SigningKey is the HS512 secret. Required, at least jwt.MinKeyLength bytes.
	SigningKey []byte
	// Issuer is stamped into iss and required on verification.
	Issuer string
	// TTL is the lifetime of issued tokens.
	TTL time.Duration
	// Leeway tolerates clock drift on exp, at most 2 minutes.
	Leeway time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// ThrottlePolicy is a request budget without a block phase.
type ThrottlePolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// LoginPolicy is the failed-login budget of one username.
type LoginPolicy struct {
	// MaxFailures is how many failed logins within Window block the username.
	// The failure that reaches it is still answered with invalid credentials and
	// installs the block; the next attempt never reaches the validator.
	MaxFailures   int
	Window        time.Duration
	BlockDuration time.Duration
}

// limiterPolicy translates the failure threshold into the limiter's
// allowed-count budget.
func (p LoginPolicy) limiterPolicy() rate.Policy {
	return rate.Policy{
		MaxAttempts:   p.MaxFailures - 1,
		Window:        p.Window,
		BlockDuration: p.BlockDuration,
	}
}

// RateLimitConfig holds the attempt budgets per operation and the store key layout.
type RateLimitConfig struct {
	// KeyPrefix starts every counter key. Defaults to "rate_limit".
	KeyPrefix string
	// IdentitySuffixLength is how many trailing characters of the client identity
	// go into a key. Identities sharing that suffix share a budget. <= 0 keeps the
	// full identity.
	IdentitySuffixLength int
	// ClusterHashTag wraps the identity part in {} for Redis Cluster deployments.
	ClusterHashTag bool

	Login LoginPolicy

	Introspect ThrottlePolicy
	GetProfile ThrottlePolicy
	Generic    ThrottlePolicy
}

/*
====================================
TIMEOUT CONFIG
====================================
*/

// TimeoutConfig bounds calls to dependencies when > 0. A caller deadline that is
// earlier always wins.
type TimeoutConfig struct {
	Store       time.Duration
	Credentials time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration: 5 failed logins per minute,
// then a one-minute block; 5 introspections and profile reads per minute per
// client; one-hour tokens. SigningKey must still be set.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer: jwt.DefaultIssuer,
			TTL:    60 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			KeyPrefix:            rate.DefaultPrefix,
			IdentitySuffixLength: rate.DefaultSuffixLength,
			Login: LoginPolicy{
				MaxFailures:   5,
				Window:        time.Minute,
				BlockDuration: time.Minute,
			},
			Introspect: ThrottlePolicy{MaxAttempts: 5, Window: time.Minute},
			GetProfile: ThrottlePolicy{MaxAttempts: 5, Window: time.Minute},
			Generic:    ThrottlePolicy{MaxAttempts: 60, Window: time.Minute},
		},
		Timeouts: TimeoutConfig{
			Store:       500 * time.Millisecond,
			Credentials: 2 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.SigningKey = cloneBytes(cfg.Token.SigningKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first problem in c. Every error matches ErrConfiguration.
func (c *Config) Validate() error {
	// Token
	if len(c.Token.SigningKey) == 0 {
		return configErr("Token SigningKey is required")
	}
	if len(c.Token.SigningKey) < jwt.MinKeyLength {
		return configErr("Token SigningKey must be at least %d bytes", jwt.MinKeyLength)
	}
	if c.Token.TTL <= 0 {
		return configErr("Token TTL must be > 0")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return configErr("Token Leeway must be between 0 and 2m")
	}
	if strings.ContainsAny(c.Token.Issuer, " \t\n") {
		return configErr("Token Issuer must not contain whitespace")
	}

	// Rate limits
	if c.RateLimit.Login.MaxFailures < 1 {
		return configErr("RateLimit Login MaxFailures must be >= 1")
	}
	if err := c.RateLimit.Login.limiterPolicy().Validate(true); err != nil {
		return configErr("RateLimit Login: %v", err)
	}
	for name, p := range map[string]ThrottlePolicy{
		"Introspect": c.RateLimit.Introspect,
		"GetProfile": c.RateLimit.GetProfile,
		"Generic":    c.RateLimit.Generic,
	} {
		if err := (rate.Policy{MaxAttempts: p.MaxAttempts, Window: p.Window}).Validate(false); err != nil {
			return configErr("RateLimit %s: %v", name, err)
		}
	}
	if strings.Contains(c.RateLimit.KeyPrefix, " ") {
		return configErr("RateLimit KeyPrefix must not contain spaces")
	}

	// Timeouts
	if c.Timeouts.Store < 0 || c.Timeouts.Credentials < 0 {
		return configErr("Timeouts must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configErr("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}

// throttlePolicy returns the request budget for op. Login has none: its
// counter only moves on failed credentials.
func (c RateLimitConfig) throttlePolicy(op Operation) (ThrottlePolicy, bool) {
	switch op {
	case OpIntrospect:
		return c.Introspect, true
	case OpGetProfile:
		return c.GetProfile, true
	case OpGeneric:
		return c.Generic, true
	default:
		return ThrottlePolicy{}, false
	}
}

func (c RateLimitConfig) keyBuilder() rate.KeyBuilder {
	kb := rate.NewKeyBuilder(c.KeyPrefix, c.IdentitySuffixLength)
	if c.ClusterHashTag {
		kb = kb.WithHashTag()
	}
	return kb
}
