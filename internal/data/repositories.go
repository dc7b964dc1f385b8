package data

import (
	"context"
	"database/sql"
)

// DBTX is a common interface for *sql.DB and *sql.Tx, letting a model
// be constructed either against a live connection pool or inside an
// open transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
