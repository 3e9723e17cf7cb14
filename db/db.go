// Package db owns the connection pool boundary. The engine only ever talks
// to the database through the Querier interface, which both *pgxpool.Pool
// and pgx.Tx satisfy, so every operation runs the same whether it is inside
// a transaction or not.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shipq/tenantdb/dburl"
)

// Querier is the query-execution surface consumed by the engine.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner is a Querier that can open transactions. *pgxpool.Pool and
// pgx.Tx both satisfy it (a transaction begets a savepoint).
type Beginner interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	_ Beginner = (*pgxpool.Pool)(nil)
	_ Beginner = (pgx.Tx)(nil)
)

// Connect validates databaseURL and opens a pgx pool against it.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if err := dburl.Validate(databaseURL); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool for %s: %w", dburl.Redact(databaseURL), err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", dburl.Redact(databaseURL), err)
	}
	return pool, nil
}

// WithTx runs fn inside a transaction, committing on nil and rolling back on
// error or panic. Context cancellation at an I/O point surfaces as an error
// from fn and rolls back, so a reused pooled connection never keeps
// half-applied session state.
func WithTx(ctx context.Context, db Beginner, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		// No-op after commit.
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
