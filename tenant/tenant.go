// Package tenant carries the ambient "current tenant" through
// context.Context and turns it into SQL scoping.
//
// The tenant is never passed as an explicit argument to query code: the
// compiler asks this package for the scoping fragment, which makes it
// structurally impossible for a call site to forget it. Three identities
// exist: System (internal work, bypasses scoping), Unspecified (the zero
// value; a hard error for any scoped operation) and a concrete tenant id.
//
// Scope additionally pins a row-level-security session variable
// (app.current_tenant) inside a transaction, so RLS policies on the schema
// side see the same tenant the engine scopes by. The variable is SET LOCAL,
// which means it dies with the transaction and can never leak onto a reused
// pooled connection.
package tenant

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shipq/tenantdb/db"
	"github.com/shipq/tenantdb/sqlfrag"
)

// ID identifies a tenant. The zero value is Unspecified.
type ID string

const (
	// Unspecified means no tenant was established. Scoped operations fail
	// closed under it.
	Unspecified ID = ""

	// System is the internal identity for cross-tenant maintenance work.
	// It bypasses scoping entirely; "*" is not a valid tenant id.
	System ID = "*"
)

// SessionVar is the session variable RLS policies key on.
const SessionVar = "app.current_tenant"

type ctxKey int

const (
	idKey ctxKey = iota
	scopedTxKey
)

// WithID returns a context carrying id as the ambient tenant.
func WithID(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, idKey, id)
}

// From reads the ambient tenant. Absent means Unspecified.
func From(ctx context.Context) ID {
	if id, ok := ctx.Value(idKey).(ID); ok {
		return id
	}
	return Unspecified
}

// scopedState marks a context whose transaction has already applied the
// session-scoping statement for a given tenant.
type scopedState struct {
	id ID
	tx pgx.Tx
}

func scopedFor(ctx context.Context, id ID) (pgx.Tx, bool) {
	s, ok := ctx.Value(scopedTxKey).(*scopedState)
	if !ok || s.id != id {
		return nil, false
	}
	return s.tx, true
}

// ActiveQuerier returns the transaction already scoped to the ambient
// tenant, when the context is inside a Scope call. Operations run against
// it so they observe the pinned session variable.
func ActiveQuerier(ctx context.Context) (db.Querier, bool) {
	tx, ok := scopedFor(ctx, From(ctx))
	if !ok {
		return nil, false
	}
	return tx, true
}

// ScopeError reports a scoped operation invoked under Unspecified. It is a
// programming error, surfaced rather than silently skipping the scope
// predicate.
type ScopeError struct {
	Op string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("%s: tenant not specified for scoped operation", e.Op)
}

// Scope runs body with the ambient tenant set to id for its duration.
//
// Unless the context is already inside a transaction scoped to the same
// tenant, body runs in a fresh transaction that first pins SessionVar to id
// (skipped for System). Nested Scope calls for the same tenant reuse the
// open transaction and do not re-issue the statement; a nested call for a
// different tenant gets its own bounded transaction. The nested call fully
// commits or rolls back before control returns.
func Scope(ctx context.Context, pool db.Beginner, id ID, body func(ctx context.Context, q db.Querier) error) error {
	if id == Unspecified {
		return &ScopeError{Op: "scope"}
	}

	ctx = WithID(ctx, id)
	if tx, ok := scopedFor(ctx, id); ok {
		return body(ctx, tx)
	}

	return db.WithTx(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
		if id != System {
			// set_config(..., true) is transaction-local, same as SET LOCAL.
			if _, err := tx.Exec(ctx, "SELECT set_config($1, $2, true)", SessionVar, string(id)); err != nil {
				return fmt.Errorf("set tenant session variable: %w", err)
			}
		}
		ctx = context.WithValue(ctx, scopedTxKey, &scopedState{id: id, tx: tx})
		return body(ctx, tx)
	})
}

// Autoscope appends the tenant predicate for the ambient tenant to b:
// ` AND col = $n` for a concrete tenant, nothing for System, and a
// *ScopeError for Unspecified. op names the calling operation for the error.
func Autoscope(ctx context.Context, op string, col sqlfrag.Ident, cast string, b *sqlfrag.Builder) error {
	switch id := From(ctx); id {
	case System:
		return nil
	case Unspecified:
		return &ScopeError{Op: op}
	default:
		b.Write(" AND ")
		b.WriteIdent(col)
		b.Write(" = ")
		b.BindCast(string(id), cast)
		return nil
	}
}
