package credentials

import (
	"context"
	"sync"
)

// MemoryStore keeps accounts in a map. It is meant for tests and single-process
// development setups.
type MemoryStore struct {
	mu         sync.RWMutex
	byUsername map[string]Account
	ids        map[string]struct{}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUsername: make(map[string]Account),
		ids:        make(map[string]struct{}),
	}
}

// FindByUsername returns a copy of the account for username.
func (s *MemoryStore) FindByUsername(ctx context.Context, username string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.byUsername[NormalizeUsername(username)]
	if !ok {
		return Account{}, ErrNotFound
	}
	acc.Roles = append([]string(nil), acc.Roles...)
	return acc, nil
}

// Insert adds acc. Usernames are stored normalized.
func (s *MemoryStore) Insert(ctx context.Context, acc Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := acc.validate(); err != nil {
		return err
	}

	acc.Username = NormalizeUsername(acc.Username)
	acc.Roles = decodeRoles(encodeRoles(acc.Roles))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[acc.Username]; ok {
		return ErrDuplicate
	}
	if _, ok := s.ids[acc.ID]; ok {
		return ErrDuplicate
	}
	s.byUsername[acc.Username] = acc
	s.ids[acc.ID] = struct{}{}
	return nil
}
