package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r2s/authgate"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsMatchGateDefaults(t *testing.T) {
	cfg := Default()
	cfg.Token.SigningKey = testKey

	want := authgate.DefaultConfig()
	want.Token.SigningKey = []byte(testKey)
	assert.Equal(t, want, cfg.GateConfig())
}

func TestLoadRequiresSigningKey(t *testing.T) {
	_, err := Load("", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, authgate.ErrConfiguration)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "authgate.yaml", `
server:
  addr: ":9090"
redis:
  addrs: ["redis-a:6379", "redis-b:6379"]
database:
  driver: memory
token:
  signing_key: "`+testKey+`"
  ttl: 15m
rate_limit:
  login:
    max_failures: 3
    window: 30s
    block_duration: 10m
  introspect:
    max_attempts: 20
    window: 1m
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"redis-a:6379", "redis-b:6379"}, cfg.Redis.Addrs)
	assert.Equal(t, 15*time.Minute, cfg.Token.TTL)

	gate := cfg.GateConfig()
	assert.Equal(t, authgate.LoginPolicy{MaxFailures: 3, Window: 30 * time.Second, BlockDuration: 10 * time.Minute}, gate.RateLimit.Login)
	assert.Equal(t, 20, gate.RateLimit.Introspect.MaxAttempts)
	// Untouched sections keep their defaults.
	assert.Equal(t, authgate.DefaultConfig().RateLimit.GetProfile, gate.RateLimit.GetProfile)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "authgate.yaml", `
database:
  driver: memory
token:
  signing_key: "`+testKey+`"
  ttl: 15m
`)
	t.Setenv("AUTHGATE_TOKEN_TTL", "5m")
	t.Setenv("AUTHGATE_REDIS_ADDRS", "a:1, b:2")
	t.Setenv("AUTHGATE_LOGIN_MAX_FAILURES", "7")
	t.Setenv("AUTHGATE_AUDIT_ENABLED", "true")

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Token.TTL)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Redis.Addrs)
	assert.Equal(t, 7, cfg.RateLimit.Login.MaxFailures)
	assert.True(t, cfg.Audit.Enabled)
}

func TestEnvFile(t *testing.T) {
	envPath := writeFile(t, "test.env", "AUTHGATE_SIGNING_KEY="+testKey+"\nAUTHGATE_DATABASE_DRIVER=memory\n")
	t.Cleanup(func() {
		_ = os.Unsetenv("AUTHGATE_SIGNING_KEY")
		_ = os.Unsetenv("AUTHGATE_DATABASE_DRIVER")
	})

	cfg, err := Load("", envPath)
	require.NoError(t, err)
	assert.Equal(t, testKey, cfg.Token.SigningKey)
	assert.Equal(t, "memory", cfg.Database.Driver)
}

func TestMissingEnvFileIsAnError(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}

func TestMalformedEnvironmentValue(t *testing.T) {
	t.Setenv("AUTHGATE_SIGNING_KEY", testKey)
	t.Setenv("AUTHGATE_LOGIN_WINDOW", "soon")

	_, err := Load("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTHGATE_LOGIN_WINDOW")
}

func TestValidateServerSettings(t *testing.T) {
	cases := map[string]func(*ServerConfig){
		"no addr":        func(c *ServerConfig) { c.Server.Addr = " " },
		"no redis":       func(c *ServerConfig) { c.Redis.Addrs = nil },
		"unknown driver": func(c *ServerConfig) { c.Database.Driver = "mongo" },
		"sqlite no dsn":  func(c *ServerConfig) { c.Database.DSN = "" },
		"short key":      func(c *ServerConfig) { c.Token.SigningKey = "short" },
		"zero failures":  func(c *ServerConfig) { c.RateLimit.Login.MaxFailures = 0 },
		"no shutdown":    func(c *ServerConfig) { c.Server.ShutdownTimeout = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Token.SigningKey = testKey
			require.NoError(t, cfg.Validate())

			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBadYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "server: [not a map")
	_, err := Load(path, "")
	assert.Error(t, err)
}
