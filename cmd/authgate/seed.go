package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/r2s/authgate/credentials"
)

type seedAccount struct {
	username string
	password string
	roles    []string
}

// seedFlags collects -seed-user values.
type seedFlags []seedAccount

func (s *seedFlags) String() string {
	names := make([]string, 0, len(*s))
	for _, a := range *s {
		names = append(names, a.username)
	}
	return strings.Join(names, ",")
}

func (s *seedFlags) Set(v string) error {
	acc, err := parseSeed(v)
	if err != nil {
		return err
	}
	*s = append(*s, acc)
	return nil
}

// parseSeed reads user:password[:role,role]. A password containing ':' must
// be followed by a role list.
func parseSeed(v string) (seedAccount, error) {
	user, rest, ok := strings.Cut(v, ":")
	if !ok || strings.TrimSpace(user) == "" || rest == "" {
		return seedAccount{}, fmt.Errorf("seed user %q: want user:password[:role,role]", v)
	}

	acc := seedAccount{username: strings.TrimSpace(user), password: rest}
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		acc.password = rest[:i]
		for _, r := range strings.Split(rest[i+1:], ",") {
			if r = strings.TrimSpace(r); r != "" {
				acc.roles = append(acc.roles, r)
			}
		}
	}
	if acc.password == "" {
		return seedAccount{}, fmt.Errorf("seed user %q: empty password", v)
	}
	return acc, nil
}

func seedAccounts(ctx context.Context, v *credentials.Validator, seeds seedFlags, log *zap.Logger) error {
	for _, s := range seeds {
		acc, err := v.Enroll(ctx, s.username, s.password, s.roles...)
		if errors.Is(err, credentials.ErrDuplicate) {
			log.Info("seed account exists", zap.String("username", s.username))
			continue
		}
		if err != nil {
			return fmt.Errorf("seed %s: %w", s.username, err)
		}
		log.Info("seeded account", zap.String("username", acc.Username), zap.String("id", acc.ID), zap.Strings("roles", acc.Roles))
	}
	return nil
}
