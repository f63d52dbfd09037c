package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinKeyLength is the smallest accepted HS512 signing key, in bytes.
const MinKeyLength = 64

// DefaultIssuer is stamped into the iss claim when Config.Issuer is empty.
const DefaultIssuer = "r2s"

var (
	// ErrConfiguration reports an unusable signing configuration. It is fatal at startup.
	ErrConfiguration = errors.New("token engine misconfigured")
	// ErrMalformed reports a token that cannot be decoded or lacks a required claim.
	ErrMalformed = errors.New("token malformed")
	// ErrInvalidSignature reports a token whose HMAC does not match its content.
	ErrInvalidSignature = errors.New("token signature invalid")
	// ErrExpired reports a correctly signed token past its exp claim.
	ErrExpired = errors.New("token expired")
	// ErrInvalidPrincipal is returned by Issue for a principal without an ID or username.
	ErrInvalidPrincipal = errors.New("principal id and username are required")
)

// Config holds the signing parameters. It is read once by NewManager.
type Config struct {
	SigningKey []byte
	Issuer     string
	Leeway     time.Duration

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Principal is the identity embedded into an issued token.
type Principal struct {
	ID       string
	Username string
	Roles    []string
}

// Claims is the verified content of a token.
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// Principal returns the identity carried by the claims.
func (c *Claims) Principal() Principal {
	return Principal{
		ID:       c.Subject,
		Username: c.Username,
		Roles:    append([]string(nil), c.Roles...),
	}
}

// Manager issues and verifies HS512 bearer tokens. The key is copied at construction
// and never mutated, so a Manager is safe for concurrent use.
type Manager struct {
	key    []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewManager validates cfg and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, fmt.Errorf("%w: signing key is empty", ErrConfiguration)
	}
	if len(cfg.SigningKey) < MinKeyLength {
		return nil, fmt.Errorf("%w: signing key must be at least %d bytes, got %d", ErrConfiguration, MinKeyLength, len(cfg.SigningKey))
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, fmt.Errorf("%w: invalid leeway", ErrConfiguration)
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = DefaultIssuer
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)

	// Claims are checked by checkClaims: the token expires only once now is
	// strictly after exp.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithoutClaimsValidation(),
	)

	return &Manager{
		key:    key,
		issuer: issuer,
		leeway: cfg.Leeway,
		now:    now,
		parser: parser,
	}, nil
}

// Issuer returns the iss value stamped on every token.
func (m *Manager) Issuer() string {
	return m.issuer
}

// Issue signs a token for p that expires ttl from now.
func (m *Manager) Issue(p Principal, ttl time.Duration) (string, *Claims, error) {
	if ttl <= 0 {
		return "", nil, fmt.Errorf("%w: ttl must be positive", ErrConfiguration)
	}
	if p.ID == "" || p.Username == "" {
		return "", nil, ErrInvalidPrincipal
	}

	now := m.now()
	claims := &Claims{
		Username: p.Username,
		Roles:    uniqueRoles(p.Roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(m.key)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks the signature first, then expiry and required claims.
// The returned error always matches exactly one of ErrMalformed,
// ErrInvalidSignature or ErrExpired.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	if strings.Count(tokenStr, ".") != 2 {
		return nil, fmt.Errorf("%w: expected 3 segments", ErrMalformed)
	}

	claims := &Claims{}
	token, err := m.parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS512.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.key, nil
	})
	if err != nil {
		return nil, m.classify(tokenStr, err)
	}
	if !token.Valid {
		return nil, ErrMalformed
	}

	if err := m.checkClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *Manager) checkClaims(c *Claims) error {
	switch {
	case c.ExpiresAt == nil:
		return fmt.Errorf("%w: missing exp", ErrMalformed)
	case c.Issuer != m.issuer:
		return fmt.Errorf("%w: unexpected issuer %q", ErrMalformed, c.Issuer)
	case c.Subject == "":
		return fmt.Errorf("%w: missing sub", ErrMalformed)
	case c.ID == "":
		return fmt.Errorf("%w: missing jti", ErrMalformed)
	case c.Username == "":
		return fmt.Errorf("%w: missing username", ErrMalformed)
	}

	if m.now().After(c.ExpiresAt.Add(m.leeway)) {
		return fmt.Errorf("%w: expired at %s", ErrExpired, c.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func (m *Manager) classify(tokenStr string, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed) && m.onlySignatureUndecodable(tokenStr):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

// onlySignatureUndecodable reports whether header and claims parse once the
// signature segment is dropped, which leaves the signature as the bad part.
func (m *Manager) onlySignatureUndecodable(tokenStr string) bool {
	unsigned := tokenStr[:strings.LastIndexByte(tokenStr, '.')+1]
	_, _, err := m.parser.ParseUnverified(unsigned, &Claims{})
	return err == nil
}

func uniqueRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
