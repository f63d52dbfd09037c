package authgate

import (
	"context"
	"time"

	"github.com/r2s/authgate/internal/rate"
)

// Operation selects the attempt budget a request is counted against.
type Operation = rate.Operation

const (
	// OpLogin is the credential-check budget, with escalating blocks.
	OpLogin = rate.OpLogin
	// OpIntrospect is the token introspection budget.
	OpIntrospect = rate.OpIntrospect
	// OpGetProfile is the profile read budget.
	OpGetProfile = rate.OpGetProfile
	// OpGeneric is the catch-all budget.
	OpGeneric = rate.OpGeneric
)

// ParseOperation parses the names used in store keys and configuration
// ("login", "introspect", "get_profile", "generic").
func ParseOperation(s string) (Operation, error) {
	return rate.ParseOperation(s)
}

// Principal is a verified identity. It is never persisted by the gate.
type Principal struct {
	ID       string   `json:"userId"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// CredentialValidator checks a username/password pair against the account store.
//
// Implementations return an error matching ErrInvalidCredentials for both an unknown
// username and a wrong password. Any other error is treated as the validator being
// unavailable: the login is rejected and no failure is counted against the caller.
type CredentialValidator interface {
	Validate(ctx context.Context, username, password string) (Principal, error)
}

// CredentialValidatorFunc adapts a function to CredentialValidator.
type CredentialValidatorFunc func(ctx context.Context, username, password string) (Principal, error)

// Validate calls f.
func (f CredentialValidatorFunc) Validate(ctx context.Context, username, password string) (Principal, error) {
	return f(ctx, username, password)
}

// LoginResult is returned by [Gate.LoginWithResult].
type LoginResult struct {
	AccessToken string
	TokenType   string
	TokenID     string
	ExpiresAt   time.Time
	Principal   Principal
}

// IntrospectResult is the wire-friendly outcome of an introspection. An invalid
// token yields Valid=false and nothing else; the reason is never exposed.
type IntrospectResult struct {
	Valid     bool     `json:"valid"`
	UserID    string   `json:"userId,omitempty"`
	Username  string   `json:"username,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	ExpiresAt int64    `json:"exp,omitempty"`
}
