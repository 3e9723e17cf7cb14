package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shipq/tenantdb/fieldreg"
	"github.com/shipq/tenantdb/predicate"
	"github.com/shipq/tenantdb/sqlfrag"
)

// entriesWithAuto compiles the update entries plus the table's
// auto-timestamp columns, unless the caller already updates them.
func (r *Repo[E]) entriesWithAuto(b *sqlfrag.Builder, updates map[string]predicate.Update) error {
	merged := make(map[string]predicate.Update, len(updates)+1)
	for k, v := range updates {
		merged[k] = v
	}
	for _, d := range r.table.Wrapped(fieldreg.WrapAutoTimestamp) {
		if _, explicit := merged[d.Field]; !explicit {
			merged[d.Field] = predicate.Now{}
		}
	}
	return predicate.Entries(r.reg, b, merged)
}

func (r *Repo[E]) setOneSQL(ctx context.Context, op string, id any, updates map[string]predicate.Update, guard []predicate.Pred) (sqlfrag.Fragment, error) {
	var b sqlfrag.Builder
	b.Write("UPDATE ")
	b.WriteIdent(r.table.Ident())
	b.Write(" SET ")
	if err := r.entriesWithAuto(&b, updates); err != nil {
		return sqlfrag.Fragment{}, fmt.Errorf("%s: %w", op, err)
	}
	b.Write(" WHERE ")
	b.WriteIdent(r.pk.Ident())
	b.Write(" = ")
	b.BindCast(id, r.cfg.PK.Cast)
	for _, p := range guard {
		b.Write(" AND ")
		if err := predicate.Where(r.reg, &b, []predicate.Pred{p}); err != nil {
			return sqlfrag.Fragment{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	r.activeFilter(&b)
	if err := r.autoscope(ctx, op, &b); err != nil {
		return sqlfrag.Fragment{}, err
	}
	b.Write(" RETURNING ")
	r.selectColumns(&b)
	return b.Fragment(), nil
}

// SetOne updates a single row by primary key and returns the updated row.
// A zero-row match is an error: ErrNotFound normally, *OccError when a
// guard predicate was supplied (the compare-and-swap did not hold).
func (r *Repo[E]) SetOne(ctx context.Context, id any, updates map[string]predicate.Update, guard ...predicate.Pred) (*E, error) {
	op := r.opName("set")
	f, err := r.setOneSQL(ctx, op, id, updates, guard)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := r.q(ctx).Query(ctx, f.SQL, f.Args...)
	r.logQuery(ctx, op, f, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[E])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(out) == 0 {
		if len(guard) > 0 {
			return nil, &OccError{Op: op}
		}
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return &out[0], nil
}

// SetWhere updates every row matching preds and returns the affected count.
func (r *Repo[E]) SetWhere(ctx context.Context, preds []predicate.Pred, updates map[string]predicate.Update) (int64, error) {
	op := r.opName("set")
	var b sqlfrag.Builder
	b.Write("UPDATE ")
	b.WriteIdent(r.table.Ident())
	b.Write(" SET ")
	if err := r.entriesWithAuto(&b, updates); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	b.Write(" WHERE ")
	if err := r.where(ctx, op, &b, preds); err != nil {
		return 0, err
	}
	f := b.Fragment()

	start := time.Now()
	tag, err := r.q(ctx).Exec(ctx, f.SQL, f.Args...)
	r.logQuery(ctx, op, f, start, err)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}

// tombstoneSQL builds the Drop/Lift statement: set the soft-delete column
// and require its current state to differ, which is what makes both
// operations idempotent.
func (r *Repo[E]) tombstoneSQL(ctx context.Context, op string, id any, drop bool) (sqlfrag.Fragment, error) {
	if !r.hasSD {
		return sqlfrag.Fragment{}, &ConfigError{Op: op, Missing: "a soft-delete column"}
	}

	var b sqlfrag.Builder
	b.Write("UPDATE ")
	b.WriteIdent(r.table.Ident())
	b.Write(" SET ")
	b.WriteIdent(r.soft.Ident())
	if drop {
		b.Write(" = NOW() WHERE ")
	} else {
		b.Write(" = NULL WHERE ")
	}
	b.WriteIdent(r.pk.Ident())
	b.Write(" = ")
	b.BindCast(id, r.cfg.PK.Cast)
	b.Write(" AND ")
	b.WriteIdent(r.soft.Ident())
	if drop {
		b.Write(" IS NULL")
	} else {
		b.Write(" IS NOT NULL")
	}
	if err := r.autoscope(ctx, op, &b); err != nil {
		return sqlfrag.Fragment{}, err
	}
	return b.Fragment(), nil
}

// Drop soft-deletes a row by primary key, returning the number of rows
// affected. Dropping an already-dropped row affects zero rows rather than
// erroring. Fails with *ConfigError when the table has no soft-delete
// column.
func (r *Repo[E]) Drop(ctx context.Context, id any) (int64, error) {
	op := r.opName("drop")
	f, err := r.tombstoneSQL(ctx, op, id, true)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	tag, err := r.q(ctx).Exec(ctx, f.SQL, f.Args...)
	r.logQuery(ctx, op, f, start, err)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}

// Lift restores a soft-deleted row, the inverse of Drop.
func (r *Repo[E]) Lift(ctx context.Context, id any) (int64, error) {
	op := r.opName("lift")
	f, err := r.tombstoneSQL(ctx, op, id, false)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	tag, err := r.q(ctx).Exec(ctx, f.SQL, f.Args...)
	r.logQuery(ctx, op, f, start, err)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}

// Purge delegates hard deletion of aged-out rows to the configured SQL
// function, passing the retention window in days. Returns the purged row
// count.
func (r *Repo[E]) Purge(ctx context.Context, days int) (int64, error) {
	op := r.opName("purge")
	if r.cfg.PurgeFn == "" {
		return 0, &ConfigError{Op: op, Missing: "a purge function"}
	}
	fn, err := sqlfrag.Identifier(r.cfg.PurgeFn)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var b sqlfrag.Builder
	b.Write("SELECT ")
	b.WriteIdent(fn)
	b.Write("(")
	b.Bind(days)
	b.Write(")")
	f := b.Fragment()

	start := time.Now()
	var n int64
	err = r.q(ctx).QueryRow(ctx, f.SQL, f.Args...).Scan(&n)
	r.logQuery(ctx, op, f, start, err)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (r *Repo[E]) fnSQL(op, name string, params []any) (sqlfrag.Fragment, error) {
	if len(r.cfg.Fns) == 0 {
		return sqlfrag.Fragment{}, &ConfigError{Op: op, Missing: "custom functions"}
	}
	spec, ok := r.cfg.Fns[name]
	if !ok {
		return sqlfrag.Fragment{}, &UnknownFnError{Op: op, Name: name}
	}
	if len(params) != spec.Args {
		return sqlfrag.Fragment{}, fmt.Errorf("%s: %q takes %d params, got %d", op, name, spec.Args, len(params))
	}
	fn, err := sqlfrag.Identifier(name)
	if err != nil {
		return sqlfrag.Fragment{}, fmt.Errorf("%s: %w", op, err)
	}

	var b sqlfrag.Builder
	b.Write("SELECT * FROM ")
	b.WriteIdent(fn)
	b.Write("(")
	for i, p := range params {
		if i > 0 {
			b.Write(", ")
		}
		b.Bind(p)
	}
	b.Write(")")
	return b.Fragment(), nil
}

// Fn calls a registered custom SQL function and returns its rows as maps.
// An unregistered name fails with *UnknownFnError; a repository with no
// functions at all fails with *ConfigError, so a typo reads differently
// from missing wiring.
func (r *Repo[E]) Fn(ctx context.Context, name string, params ...any) ([]map[string]any, error) {
	op := r.opName("fn")
	f, err := r.fnSQL(op, name, params)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := r.q(ctx).Query(ctx, f.SQL, f.Args...)
	r.logQuery(ctx, op, f, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pgx.CollectRows(rows, pgx.RowToMap)
}

// FnAs calls a registered custom SQL function and scans its rows into T.
func FnAs[T any, E any](ctx context.Context, r *Repo[E], name string, params ...any) ([]T, error) {
	op := r.opName("fn")
	f, err := r.fnSQL(op, name, params)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := r.q(ctx).Query(ctx, f.SQL, f.Args...)
	r.logQuery(ctx, op, f, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByNameLax[T])
}
