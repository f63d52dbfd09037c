package jwt

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testKey = []byte(strings.Repeat("0123456789abcdef", 4))

const base64URLAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

func newTestManager(t *testing.T, now func() time.Time) *Manager {
	t.Helper()
	m, err := NewManager(Config{SigningKey: testKey, Now: now})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	return m
}

func issue(t *testing.T, m *Manager, p Principal, ttl time.Duration) string {
	t.Helper()
	token, _, err := m.Issue(p, ttl)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	return token
}

func TestNewManagerRejectsBadKeys(t *testing.T) {
	for name, key := range map[string][]byte{
		"empty":          nil,
		"short":          []byte("too-short-for-hs512"),
		"one byte short": testKey[:MinKeyLength-1],
	} {
		if _, err := NewManager(Config{SigningKey: key}); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: expected ErrConfiguration, got %v", name, err)
		}
	}
}

func TestNewManagerCopiesKey(t *testing.T) {
	key := append([]byte(nil), testKey...)
	m, err := NewManager(Config{SigningKey: key})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	token := issue(t, m, Principal{ID: "u1", Username: "alice"}, time.Minute)

	key[0] ^= 0xFF
	if _, err := m.Verify(token); err != nil {
		t.Fatalf("mutating the caller's slice must not affect the manager: %v", err)
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)

	principals := []Principal{
		{ID: "6f1c2d9e-0000-4000-8000-000000000001", Username: "alice", Roles: []string{"ROLE_USER"}},
		{ID: "42", Username: "bob", Roles: []string{"ROLE_USER", "ROLE_ADMIN"}},
		{ID: "7", Username: "carol", Roles: nil},
		{ID: "8", Username: "dävid", Roles: []string{"ROLE_USER", "ROLE_USER"}},
	}
	for _, p := range principals {
		for _, ttl := range []time.Duration{30 * time.Second, time.Minute, 24 * time.Hour} {
			token, issued, err := m.Issue(p, ttl)
			if err != nil {
				t.Fatalf("Issue error: %v", err)
			}
			if strings.Count(token, ".") != 2 {
				t.Fatalf("expected three segments: %s", token)
			}

			claims, err := m.Verify(token)
			if err != nil {
				t.Fatalf("Verify error for %+v: %v", p, err)
			}

			got := claims.Principal()
			if got.ID != p.ID || got.Username != p.Username {
				t.Fatalf("principal mismatch: want %+v, got %+v", p, got)
			}
			if !sameRoles(uniqueRoles(p.Roles), got.Roles) {
				t.Fatalf("roles mismatch: want %v, got %v", p.Roles, got.Roles)
			}
			if claims.Issuer != DefaultIssuer {
				t.Fatalf("expected issuer %q, got %q", DefaultIssuer, claims.Issuer)
			}
			if claims.ID == "" || claims.ID != issued.ID {
				t.Fatalf("jti mismatch: issued %q, verified %q", issued.ID, claims.ID)
			}
			if d := claims.ExpiresAt.Sub(claims.IssuedAt.Time); d != ttl.Truncate(time.Second) {
				t.Fatalf("expected lifetime %v, got %v", ttl, d)
			}
		}
	}
}

func TestIssueAssignsFreshTokenIDs(t *testing.T) {
	m := newTestManager(t, nil)
	p := Principal{ID: "1", Username: "alice"}

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		_, claims, err := m.Issue(p, time.Minute)
		if err != nil {
			t.Fatalf("Issue error: %v", err)
		}
		if _, dup := seen[claims.ID]; dup {
			t.Fatalf("duplicate jti %s", claims.ID)
		}
		seen[claims.ID] = struct{}{}
	}
}

func TestIssueRejectsBadInput(t *testing.T) {
	m := newTestManager(t, nil)

	if _, _, err := m.Issue(Principal{ID: "1", Username: "alice"}, 0); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("zero ttl: expected ErrConfiguration, got %v", err)
	}
	if _, _, err := m.Issue(Principal{Username: "alice"}, time.Minute); !errors.Is(err, ErrInvalidPrincipal) {
		t.Fatalf("missing id: expected ErrInvalidPrincipal, got %v", err)
	}
	if _, _, err := m.Issue(Principal{ID: "1"}, time.Minute); !errors.Is(err, ErrInvalidPrincipal) {
		t.Fatalf("missing username: expected ErrInvalidPrincipal, got %v", err)
	}
}

func TestWireFormat(t *testing.T) {
	m := newTestManager(t, nil)
	token := issue(t, m, Principal{ID: "1", Username: "alice", Roles: []string{"ROLE_USER"}}, time.Minute)

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(parts))
	}

	var header map[string]any
	decodeSegment(t, parts[0], &header)
	if header["alg"] != "HS512" {
		t.Fatalf("expected alg HS512, got %v", header["alg"])
	}

	var body map[string]any
	decodeSegment(t, parts[1], &body)
	for _, k := range []string{"sub", "iss", "iat", "exp", "jti", "username", "roles"} {
		if _, ok := body[k]; !ok {
			t.Fatalf("claim %q missing from %v", k, body)
		}
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		t.Fatalf("signature decode: %v", err)
	}
	if len(sig) != 64 {
		t.Fatalf("expected a 64 byte signature, got %d", len(sig))
	}
}

func TestVerifyDetectsEverySignatureBitFlip(t *testing.T) {
	m := newTestManager(t, nil)
	token := issue(t, m, Principal{ID: "1", Username: "alice", Roles: []string{"ROLE_USER"}}, time.Minute)

	parts := strings.Split(token, ".")
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		t.Fatalf("signature decode: %v", err)
	}

	for i := 0; i < len(sig)*8; i++ {
		tampered := append([]byte(nil), sig...)
		tampered[i/8] ^= 1 << (i % 8)
		forged := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(tampered)

		claims, err := m.Verify(forged)
		if !errors.Is(err, ErrInvalidSignature) || errors.Is(err, ErrMalformed) {
			t.Fatalf("bit %d: expected only ErrInvalidSignature, got %v", i, err)
		}
		if claims != nil {
			t.Fatalf("bit %d: claims returned for a forged token", i)
		}
	}
}

// Every bit of every signature character is flipped in its encoded form, so
// the unused low bits of the final character are covered too.
func TestVerifyDetectsEveryEncodedSignatureBitFlip(t *testing.T) {
	m := newTestManager(t, nil)
	token := issue(t, m, Principal{ID: "1", Username: "alice"}, time.Minute)

	dot := strings.LastIndexByte(token, '.')
	prefix, sig := token[:dot+1], token[dot+1:]

	for pos := 0; pos < len(sig); pos++ {
		value := strings.IndexByte(base64URLAlphabet, sig[pos])
		if value < 0 {
			t.Fatalf("unexpected signature character %q", sig[pos])
		}
		for bit := 0; bit < 6; bit++ {
			flipped := base64URLAlphabet[value^(1<<bit)]
			forged := prefix + sig[:pos] + string(flipped) + sig[pos+1:]
			if forged == token {
				t.Fatalf("char %d bit %d: flip produced the original token", pos, bit)
			}

			claims, err := m.Verify(forged)
			if !errors.Is(err, ErrInvalidSignature) || errors.Is(err, ErrMalformed) {
				t.Fatalf("char %d bit %d: expected only ErrInvalidSignature, got %v", pos, bit, err)
			}
			if claims != nil {
				t.Fatalf("char %d bit %d: claims returned for a forged token", pos, bit)
			}
		}
	}
}

func TestVerifyRejectsPaddedSignature(t *testing.T) {
	m := newTestManager(t, nil)
	token := issue(t, m, Principal{ID: "1", Username: "alice"}, time.Minute)

	if _, err := m.Verify(token + "=="); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for a padded signature, got %v", err)
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	m := newTestManager(t, nil)
	other, err := NewManager(Config{SigningKey: []byte(strings.Repeat("x", MinKeyLength))})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	token := issue(t, other, Principal{ID: "1", Username: "alice"}, time.Minute)
	if _, err := m.Verify(token); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := newTestManager(t, func() time.Time { return now })

	token := issue(t, m, Principal{ID: "1", Username: "alice"}, time.Minute)

	now = now.Add(59 * time.Second)
	if _, err := m.Verify(token); err != nil {
		t.Fatalf("expected token valid before exp, got %v", err)
	}

	now = now.Add(2 * time.Second)
	if _, err := m.Verify(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyValidAtExactExpiry(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)
	now := issued
	m := newTestManager(t, func() time.Time { return now })

	token := issue(t, m, Principal{ID: "1", Username: "alice"}, time.Minute)

	now = issued.Add(time.Minute)
	if _, err := m.Verify(token); err != nil {
		t.Fatalf("expected token valid at exactly exp, got %v", err)
	}

	now = issued.Add(time.Minute + time.Nanosecond)
	if _, err := m.Verify(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired just past exp, got %v", err)
	}
}

func TestVerifyLeewayExtendsExpiry(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)
	now := issued
	m, err := NewManager(Config{SigningKey: testKey, Leeway: 30 * time.Second, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	token := issue(t, m, Principal{ID: "1", Username: "alice"}, time.Minute)

	now = issued.Add(time.Minute + 30*time.Second)
	if _, err := m.Verify(token); err != nil {
		t.Fatalf("expected token valid within leeway, got %v", err)
	}
	now = now.Add(time.Second)
	if _, err := m.Verify(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired past leeway, got %v", err)
	}
}

func TestVerifySignatureCheckedBeforeExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := newTestManager(t, func() time.Time { return now })

	token := issue(t, m, Principal{ID: "1", Username: "alice"}, time.Minute)
	now = now.Add(time.Hour)

	forged := token[:len(token)-2] + flipChar(token[len(token)-2]) + token[len(token)-1:]
	if _, err := m.Verify(forged); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	m := newTestManager(t, nil)

	cases := map[string]string{
		"empty":         "",
		"two segments":  "abc.def",
		"four segments": "a.b.c.d",
		"bad base64":    "%%%.%%%.%%%",
		"garbage json":  base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS512"}`)) + "." + base64.RawURLEncoding.EncodeToString([]byte("not-json")) + ".sig",
	}
	for name, token := range cases {
		if _, err := m.Verify(token); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	m := newTestManager(t, nil)
	claims := gjwt.MapClaims{"sub": "1", "iss": DefaultIssuer, "jti": "j", "username": "alice", "exp": time.Now().Add(time.Minute).Unix()}

	for name, token := range map[string]string{
		"alg none": "eyJhbGciOiJub25lIn0.eyJzdWIiOiJ0ZXN0In0.",
		"hs256":    signWith(t, gjwt.SigningMethodHS256, claims),
	} {
		if _, err := m.Verify(token); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("%s: expected ErrInvalidSignature, got %v", name, err)
		}
	}
}

func TestVerifyMissingRequiredClaims(t *testing.T) {
	m := newTestManager(t, nil)
	exp := time.Now().Add(time.Minute).Unix()

	cases := map[string]gjwt.MapClaims{
		"missing exp":      {"sub": "1", "iss": DefaultIssuer, "jti": "j", "username": "alice"},
		"missing sub":      {"exp": exp, "iss": DefaultIssuer, "jti": "j", "username": "alice"},
		"missing jti":      {"sub": "1", "exp": exp, "iss": DefaultIssuer, "username": "alice"},
		"missing username": {"sub": "1", "exp": exp, "iss": DefaultIssuer, "jti": "j"},
		"wrong issuer":     {"sub": "1", "exp": exp, "iss": "someone-else", "jti": "j", "username": "alice"},
	}
	for name, claims := range cases {
		if _, err := m.Verify(signWith(t, gjwt.SigningMethodHS512, claims)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func signWith(t *testing.T, method gjwt.SigningMethod, claims gjwt.MapClaims) string {
	t.Helper()
	s, err := gjwt.NewWithClaims(method, claims).SignedString(testKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func decodeSegment(t *testing.T, seg string, dst any) {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		t.Fatalf("segment decode: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("segment unmarshal: %v", err)
	}
}

func sameRoles(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a = append([]string(nil), a...)
	b = append([]string(nil), b...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func flipChar(c byte) string {
	if c == 'A' {
		return "B"
	}
	return "A"
}
