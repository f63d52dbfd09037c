package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	roles         TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
)`

// SQLiteStore keeps accounts in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dsn, checks the connection and creates the accounts
// table if needed.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// FindByUsername returns the account stored under the normalized username.
func (s *SQLiteStore) FindByUsername(ctx context.Context, username string) (Account, error) {
	var (
		acc   Account
		roles string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, roles FROM accounts WHERE username = ?`,
		NormalizeUsername(username),
	).Scan(&acc.ID, &acc.Username, &acc.PasswordHash, &roles)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	acc.Roles = decodeRoles(roles)
	return acc, nil
}

// Insert adds acc, returning ErrDuplicate if its id or username exists.
func (s *SQLiteStore) Insert(ctx context.Context, acc Account) error {
	if err := acc.validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, username, password_hash, roles, created_at)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		acc.ID, NormalizeUsername(acc.Username), acc.PasswordHash, encodeRoles(acc.Roles), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
