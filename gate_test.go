package authgate

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testSigningKey = []byte(strings.Repeat("0123456789abcdef", 4))

type fakeAccount struct {
	password  string
	principal Principal
}

// fakeValidator is an in-memory CredentialValidator that counts its calls.
type fakeValidator struct {
	mu       sync.Mutex
	accounts map[string]fakeAccount
	err      error
	calls    atomic.Int64
}

func newFakeValidator() *fakeValidator {
	return &fakeValidator{
		accounts: map[string]fakeAccount{
			"alice": {
				password:  "correct-horse",
				principal: Principal{ID: "u-1", Username: "alice", Roles: []string{"USER"}},
			},
			"bob": {
				password:  "battery-staple",
				principal: Principal{ID: "u-2", Username: "bob", Roles: []string{"ADMIN", "USER"}},
			},
		},
	}
}

func (f *fakeValidator) Validate(_ context.Context, username, password string) (Principal, error) {
	f.calls.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return Principal{}, f.err
	}
	acc, ok := f.accounts[strings.ToLower(strings.TrimSpace(username))]
	if !ok || acc.password != password {
		return Principal{}, ErrInvalidCredentials
	}
	return acc.principal, nil
}

func (f *fakeValidator) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type testGate struct {
	gate      *Gate
	mr        *miniredis.Miniredis
	validator *fakeValidator
}

func newTestGate(t *testing.T, mutate ...func(*Config)) testGate {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := DefaultConfig()
	cfg.Token.SigningKey = testSigningKey
	cfg.Timeouts.Store = time.Second
	for _, m := range mutate {
		m(&cfg)
	}

	v := newFakeValidator()
	g, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialValidator(v).
		Build()
	if err != nil {
		t.Fatalf("build gate: %v", err)
	}
	t.Cleanup(g.Close)

	return testGate{gate: g, mr: mr, validator: v}
}
