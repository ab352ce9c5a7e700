package db

import (
	"context"
	"database/sql"
)

// Scanner is satisfied by a single row.
type Scanner interface {
	Scan(dest ...interface{}) error
}

// Rows is a forward-only result cursor.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close() error
}

// Result is the outcome of an Exec.
type Result = sql.Result

// Querier abstracts database operations for both database and transaction.
// Queries are written with '?' placeholders and rebound for the active driver.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Scanner
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Transaction is a Querier bound to one transaction.
type Transaction interface {
	Querier
	Commit() error
	Rollback() error
}

// Database is a pooled connection handle.
type Database interface {
	Querier
	// Transaction runs fn inside a transaction, committing when fn returns nil.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error
	Ping(ctx context.Context) error
	Close() error
	DriverName() string
}
