package credentials

import (
	"context"
	"fmt"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ClosableStore is a Store backed by a resource that must be released.
type ClosableStore interface {
	Store
	Close() error
}

type memoryCloser struct{ *MemoryStore }

func (memoryCloser) Close() error { return nil }

// Open returns the store for driver. dsn is ignored for the memory driver.
func Open(ctx context.Context, driver, dsn string) (ClosableStore, error) {
	switch driver {
	case DriverMemory, "":
		return memoryCloser{NewMemoryStore()}, nil
	case DriverSQLite:
		return NewSQLiteStore(ctx, dsn)
	case DriverPostgres:
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported credential store driver: %s", driver)
	}
}
