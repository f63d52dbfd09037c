package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	roles         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps accounts in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, checks the connection and creates the
// accounts table if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// FindByUsername returns the account stored under the normalized username.
func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (Account, error) {
	var (
		acc   Account
		roles string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, roles FROM accounts WHERE username = $1`,
		NormalizeUsername(username),
	).Scan(&acc.ID, &acc.Username, &acc.PasswordHash, &roles)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	acc.Roles = decodeRoles(roles)
	return acc, nil
}

// Insert adds acc, returning ErrDuplicate if its id or username exists.
func (s *PostgresStore) Insert(ctx context.Context, acc Account) error {
	if err := acc.validate(); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, username, password_hash, roles)
		 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		acc.ID, NormalizeUsername(acc.Username), acc.PasswordHash, encodeRoles(acc.Roles),
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
