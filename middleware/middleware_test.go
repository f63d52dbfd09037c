package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/r2s/authgate"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")

func newGate(t *testing.T) (*authgate.Gate, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	validator := authgate.CredentialValidatorFunc(func(_ context.Context, username, password string) (authgate.Principal, error) {
		if username == "alice" && password == "correct-horse" {
			return authgate.Principal{ID: "u-1", Username: "alice", Roles: []string{"USER"}}, nil
		}
		return authgate.Principal{}, authgate.ErrInvalidCredentials
	})

	g, err := authgate.New().
		WithSigningKey(testSigningKey).
		WithRedis(rdb).
		WithCredentialValidator(validator).
		Build()
	if err != nil {
		t.Fatalf("build gate: %v", err)
	}
	t.Cleanup(g.Close)

	return g, mr
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}
	return body
}

func TestGuardStoresPrincipal(t *testing.T) {
	g, _ := newGate(t)
	token, err := g.Login(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	var seen authgate.Principal
	h := Guard(g)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Fatal("expected principal in context")
		}
		seen = p
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if seen.ID != "u-1" || !reflect.DeepEqual(seen.Roles, []string{"USER"}) {
		t.Fatalf("unexpected principal %+v", seen)
	}
}

func TestGuardRejects(t *testing.T) {
	g, _ := newGate(t)

	for name, header := range map[string]string{
		"missing":      "",
		"wrong scheme": "Basic abc",
		"empty token":  "Bearer   ",
		"garbage":      "Bearer not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			Guard(g)(okHandler()).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if body := decodeError(t, rec); body != (ErrorBody{Code: 1001, Message: "You do not have permission"}) {
				t.Fatalf("unexpected body %+v", body)
			}
		})
	}
}

func TestGuardNilGate(t *testing.T) {
	rec := httptest.NewRecorder()
	Guard(nil)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestThrottleRejectsOverBudget(t *testing.T) {
	g, _ := newGate(t)
	h := Throttle(g, authgate.OpGetProfile)(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.RemoteAddr = "192.0.2.10:4242"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.RemoteAddr = "192.0.2.10:4242"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body != (ErrorBody{Code: 429, Message: "Too many requests"}) {
		t.Fatalf("unexpected body %+v", body)
	}

	// A different caller has its own budget.
	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.RemoteAddr = "198.51.100.7:4242"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("a different caller has its own budget, got %d", rec.Code)
	}
}

func TestThrottleFailsClosed(t *testing.T) {
	g, mr := newGate(t)
	mr.Close()

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()
	Throttle(g, authgate.OpGetProfile)(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != 9001 {
		t.Fatalf("expected code 9001, got %d", code)
	}
}

type recordingThrottler struct {
	identities []string
	err        error
}

func (r *recordingThrottler) Throttle(_ context.Context, _ authgate.Operation, identity string) error {
	r.identities = append(r.identities, identity)
	return r.err
}

func TestThrottleKeysByBearerTokenFirst(t *testing.T) {
	th := &recordingThrottler{}
	h := Throttle(th, authgate.OpIntrospect)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.5:1000"
	req.Header.Set("Authorization", "Bearer tok-123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.5:1000"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if want := []string{"tok-123", "203.0.113.5"}; !reflect.DeepEqual(th.identities, want) {
		t.Fatalf("expected identities %v, got %v", want, th.identities)
	}
}

func TestThrottleByCustomIdentity(t *testing.T) {
	th := &recordingThrottler{err: authgate.ErrTooManyAttempts}
	h := ThrottleBy(th, authgate.OpGeneric, func(*http.Request) string { return "fixed" })(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !reflect.DeepEqual(th.identities, []string{"fixed"}) {
		t.Fatalf("expected custom identity, got %v", th.identities)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestWriteErrorKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   int
	}{
		{authgate.ErrInvalidCredentials, http.StatusUnauthorized, 2003},
		{authgate.ErrInvalidToken, http.StatusUnauthorized, 1001},
		{authgate.ErrTooManyAttempts, http.StatusTooManyRequests, 429},
		{fmt.Errorf("%w: redis down", authgate.ErrDependencyUnavailable), http.StatusServiceUnavailable, 9001},
		{errors.New("boom"), http.StatusInternalServerError, 9999},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteError(rec, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, rec.Code)
		}
		if code := decodeError(t, rec).Code; code != tc.code {
			t.Fatalf("%v: expected code %d, got %d", tc.err, tc.code, code)
		}
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := BearerToken("bearer abc"); !ok || tok != "abc" {
		t.Fatalf("expected abc, got %q (%v)", tok, ok)
	}
	if _, ok := BearerToken("Bearer"); ok {
		t.Fatal("scheme without token must be rejected")
	}
}

func TestRemoteHostWithoutPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "unix-socket"
	if got := RemoteHost(req); got != "unix-socket" {
		t.Fatalf("expected unix-socket, got %q", got)
	}
}
