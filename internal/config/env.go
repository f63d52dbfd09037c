package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "AUTHGATE_"

// loadFromEnvironment applies AUTHGATE_* overrides. Malformed values are
// errors rather than being skipped.
func loadFromEnvironment(cfg *ServerConfig) error {
	e := &envReader{}

	e.str("ADDR", &cfg.Server.Addr)
	e.duration("READ_TIMEOUT", &cfg.Server.ReadTimeout)
	e.duration("WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	e.duration("SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	e.list("REDIS_ADDRS", &cfg.Redis.Addrs)
	e.str("REDIS_PASSWORD", &cfg.Redis.Password)
	e.integer("REDIS_DB", &cfg.Redis.DB)

	e.str("DATABASE_DRIVER", &cfg.Database.Driver)
	e.str("DATABASE_DSN", &cfg.Database.DSN)

	e.str("LOG_LEVEL", &cfg.Logging.Level)
	e.str("LOG_FORMAT", &cfg.Logging.Format)

	e.str("SIGNING_KEY", &cfg.Token.SigningKey)
	e.str("TOKEN_ISSUER", &cfg.Token.Issuer)
	e.duration("TOKEN_TTL", &cfg.Token.TTL)
	e.duration("TOKEN_LEEWAY", &cfg.Token.Leeway)

	e.str("RATE_LIMIT_KEY_PREFIX", &cfg.RateLimit.KeyPrefix)
	e.integer("RATE_LIMIT_SUFFIX_LENGTH", &cfg.RateLimit.IdentitySuffixLength)
	e.boolean("RATE_LIMIT_CLUSTER_HASH_TAG", &cfg.RateLimit.ClusterHashTag)
	e.integer("LOGIN_MAX_FAILURES", &cfg.RateLimit.Login.MaxFailures)
	e.duration("LOGIN_WINDOW", &cfg.RateLimit.Login.Window)
	e.duration("LOGIN_BLOCK_DURATION", &cfg.RateLimit.Login.BlockDuration)
	e.integer("INTROSPECT_MAX_ATTEMPTS", &cfg.RateLimit.Introspect.MaxAttempts)
	e.duration("INTROSPECT_WINDOW", &cfg.RateLimit.Introspect.Window)
	e.integer("GET_PROFILE_MAX_ATTEMPTS", &cfg.RateLimit.GetProfile.MaxAttempts)
	e.duration("GET_PROFILE_WINDOW", &cfg.RateLimit.GetProfile.Window)
	e.integer("GENERIC_MAX_ATTEMPTS", &cfg.RateLimit.Generic.MaxAttempts)
	e.duration("GENERIC_WINDOW", &cfg.RateLimit.Generic.Window)

	e.duration("STORE_TIMEOUT", &cfg.Timeouts.Store)
	e.duration("CREDENTIALS_TIMEOUT", &cfg.Timeouts.Credentials)

	e.boolean("AUDIT_ENABLED", &cfg.Audit.Enabled)
	e.integer("AUDIT_BUFFER_SIZE", &cfg.Audit.BufferSize)
	e.boolean("AUDIT_DROP_IF_FULL", &cfg.Audit.DropIfFull)

	e.boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	e.boolean("METRICS_LATENCY_HISTOGRAMS", &cfg.Metrics.LatencyHistograms)

	e.boolean("TRACING_ENABLED", &cfg.Tracing.Enabled)
	e.str("TRACING_SERVICE_NAME", &cfg.Tracing.ServiceName)
	e.str("TRACING_EXPORTER", &cfg.Tracing.Exporter)
	e.float("TRACING_SAMPLE_RATE", &cfg.Tracing.SampleRate)

	return e.err
}

// envReader keeps the first parse error so the call list above stays flat.
type envReader struct {
	err error
}

func (e *envReader) lookup(name string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(name string, err error) {
	e.err = fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

func (e *envReader) list(name string, dst *[]string) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *envReader) integer(name string, dst *int) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, err)
		return
	}
	*dst = n
}

func (e *envReader) boolean(name string, dst *bool) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(name, err)
		return
	}
	*dst = b
}

func (e *envReader) float(name string, dst *float64) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(name, err)
		return
	}
	*dst = f
}

func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(name, err)
		return
	}
	*dst = d
}
