package credentials

import (
	"context"
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned by FindByUsername when no account matches.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicate is returned by Insert when the id or username is taken.
	ErrDuplicate = errors.New("account already exists")
	// ErrInvalidAccount is returned by Insert for an account missing required fields.
	ErrInvalidAccount = errors.New("invalid account")
)

// Account is a stored login identity.
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	Roles        []string
}

// Store looks accounts up by username and adds new ones.
type Store interface {
	FindByUsername(ctx context.Context, username string) (Account, error)
	Insert(ctx context.Context, acc Account) error
}

// NormalizeUsername is the lookup form of a username: trimmed and lower-cased.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (a Account) validate() error {
	switch {
	case a.ID == "":
		return errors.Join(ErrInvalidAccount, errors.New("id is required"))
	case NormalizeUsername(a.Username) == "":
		return errors.Join(ErrInvalidAccount, errors.New("username is required"))
	case a.PasswordHash == "":
		return errors.Join(ErrInvalidAccount, errors.New("password hash is required"))
	}
	for _, r := range a.Roles {
		if r == "" || strings.Contains(r, ",") {
			return errors.Join(ErrInvalidAccount, errors.New("roles must be non-empty and contain no commas"))
		}
	}
	return nil
}

// encodeRoles joins roles for a single text column, sorted and de-duplicated.
func encodeRoles(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	out := append([]string(nil), roles...)
	sort.Strings(out)
	uniq := out[:0]
	for i, r := range out {
		if i == 0 || r != out[i-1] {
			uniq = append(uniq, r)
		}
	}
	return strings.Join(uniq, ",")
}

func decodeRoles(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
