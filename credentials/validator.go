package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/r2s/authgate"
	"github.com/r2s/authgate/password"
)

// Validator checks username/password pairs against a Store. It implements
// authgate.CredentialValidator.
type Validator struct {
	store  Store
	hasher *password.Argon2
}

var _ authgate.CredentialValidator = (*Validator)(nil)

// NewValidator returns a Validator over store using hasher.
func NewValidator(store Store, hasher *password.Argon2) *Validator {
	return &Validator{store: store, hasher: hasher}
}

// Validate returns the account's principal when password matches. An unknown
// username and a wrong password both return authgate.ErrInvalidCredentials and
// cost one hash verification each. Any other error means the store could not
// answer.
func (v *Validator) Validate(ctx context.Context, username, pwd string) (authgate.Principal, error) {
	acc, err := v.store.FindByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		v.hasher.VerifyDummy(pwd)
		return authgate.Principal{}, authgate.ErrInvalidCredentials
	}
	if err != nil {
		return authgate.Principal{}, err
	}

	ok, err := v.hasher.Verify(pwd, acc.PasswordHash)
	switch {
	case errors.Is(err, password.ErrTooLong):
		return authgate.Principal{}, authgate.ErrInvalidCredentials
	case err != nil:
		return authgate.Principal{}, fmt.Errorf("account %s: %w", acc.ID, err)
	case !ok:
		return authgate.Principal{}, authgate.ErrInvalidCredentials
	}

	return authgate.Principal{
		ID:       acc.ID,
		Username: acc.Username,
		Roles:    acc.Roles,
	}, nil
}

// Enroll hashes pwd and stores a new account with a random id.
func (v *Validator) Enroll(ctx context.Context, username, pwd string, roles ...string) (Account, error) {
	hash, err := v.hasher.Hash(pwd)
	if err != nil {
		return Account{}, err
	}

	acc := Account{
		ID:           uuid.NewString(),
		Username:     NormalizeUsername(username),
		PasswordHash: hash,
		Roles:        roles,
	}
	if err := v.store.Insert(ctx, acc); err != nil {
		return Account{}, err
	}
	return acc, nil
}
