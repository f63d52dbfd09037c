//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/r2s/authgate"
	"github.com/redis/go-redis/v9"
)

var integrationSigningKey = strings.Repeat("integration-key-", 4)

// redisMode describes which Redis backend a suite is running against.
type redisMode struct {
	name    string
	cluster bool
	setup   func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes returns the Redis backends to test against.
// miniredis is always available.
// A real standalone server is used when REDIS_ADDR is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	// Cluster mode: REDIS_CLUSTER_ADDRS is a comma-separated seed list.
	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		modes = append(modes, redisMode{
			name:    "cluster",
			cluster: true,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: splitAddrs(addrs)})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis cluster: %v", err)
				}
				return rdb, func() { _ = rdb.Close() }
			},
		})
	}

	return modes
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

// staticValidator accepts exactly one password for every username.
func staticValidator(secret string) authgate.CredentialValidator {
	return authgate.CredentialValidatorFunc(func(_ context.Context, username, password string) (authgate.Principal, error) {
		if password != secret {
			return authgate.Principal{}, authgate.ErrInvalidCredentials
		}
		return authgate.Principal{ID: "id-" + strings.ToLower(username), Username: username, Roles: []string{"user"}}, nil
	})
}

func buildGate(t *testing.T, rdb redis.UniversalClient, mutate func(*authgate.Config)) *authgate.Gate {
	t.Helper()

	cfg := authgate.DefaultConfig()
	cfg.Token.SigningKey = []byte(integrationSigningKey)
	if mutate != nil {
		mutate(&cfg)
	}

	g, err := authgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialValidator(staticValidator("correct-horse")).
		Build()
	if err != nil {
		t.Fatalf("build gate: %v", err)
	}
	t.Cleanup(g.Close)
	return g
}
