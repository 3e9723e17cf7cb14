package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shipq/tenantdb/predicate"
	"github.com/shipq/tenantdb/sqlfrag"
)

// Lock selects a row-level lock mode for One.
type Lock int

const (
	LockNone Lock = iota
	LockShare
	LockUpdate
)

func (l Lock) sql() string {
	switch l {
	case LockShare:
		return " FOR SHARE"
	case LockUpdate:
		return " FOR UPDATE"
	default:
		return ""
	}
}

// FindOpts controls ordering and limits for Find.
type FindOpts struct {
	// Asc orders oldest first. Default is newest first, following the
	// timestamp-ordered primary key.
	Asc bool

	// Limit caps the result set. Zero means no limit.
	Limit int
}

// AggKind selects the aggregate computed by Agg.
type AggKind string

const (
	AggSum   AggKind = "sum"
	AggAvg   AggKind = "avg"
	AggMin   AggKind = "min"
	AggMax   AggKind = "max"
	AggCount AggKind = "count"
)

var aggSQL = map[AggKind]string{
	AggSum:   "SUM",
	AggAvg:   "AVG",
	AggMin:   "MIN",
	AggMax:   "MAX",
	AggCount: "COUNT",
}

// where compiles preds plus the repository's standing filters: soft-delete
// liveness and the tenant scope.
func (r *Repo[E]) where(ctx context.Context, op string, b *sqlfrag.Builder, preds []predicate.Pred) error {
	if err := predicate.Where(r.reg, b, preds); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	r.activeFilter(b)
	return r.autoscope(ctx, op, b)
}

func (r *Repo[E]) findSQL(ctx context.Context, op string, preds []predicate.Pred, opts FindOpts, lock Lock) (sqlfrag.Fragment, error) {
	var b sqlfrag.Builder
	b.Write("SELECT ")
	r.selectColumns(&b)
	b.Write(" FROM ")
	b.WriteIdent(r.table.Ident())
	b.Write(" WHERE ")
	if err := r.where(ctx, op, &b, preds); err != nil {
		return sqlfrag.Fragment{}, err
	}
	b.Write(" ORDER BY ")
	b.WriteIdent(r.pk.Ident())
	if opts.Asc {
		b.Write(" ASC")
	} else {
		b.Write(" DESC")
	}
	if opts.Limit > 0 {
		b.Write(" LIMIT ")
		b.Bind(opts.Limit)
	}
	b.Write(lock.sql())
	return b.Fragment(), nil
}

// Find returns every row matching preds, newest first unless opts.Asc.
func (r *Repo[E]) Find(ctx context.Context, preds []predicate.Pred, opts FindOpts) ([]E, error) {
	op := r.opName("find")
	f, err := r.findSQL(ctx, op, preds, opts, LockNone)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := r.q(ctx).Query(ctx, f.SQL, f.Args...)
	r.logQuery(ctx, op, f, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByNameLax[E])
}

// One returns the single row matching preds, or nil when none does.
// lock requests a row-level lock for the enclosing transaction.
func (r *Repo[E]) One(ctx context.Context, preds []predicate.Pred, lock Lock) (*E, error) {
	op := r.opName("one")
	f, err := r.findSQL(ctx, op, preds, FindOpts{Limit: 1}, lock)
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
		return nil, nil
	}
	return &out[0], nil
}

func (r *Repo[E]) countSQL(ctx context.Context, op string, preds []predicate.Pred) (sqlfrag.Fragment, error) {
	var b sqlfrag.Builder
	b.Write("SELECT COUNT(*) FROM ")
	b.WriteIdent(r.table.Ident())
	b.Write(" WHERE ")
	if err := r.where(ctx, op, &b, preds); err != nil {
		return sqlfrag.Fragment{}, err
	}
	return b.Fragment(), nil
}

// Count returns the number of rows matching preds.
func (r *Repo[E]) Count(ctx context.Context, preds []predicate.Pred) (int64, error) {
	op := r.opName("count")
	f, err := r.countSQL(ctx, op, preds)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	var n int64
	err = r.q(ctx).QueryRow(ctx, f.SQL, f.Args...).Scan(&n)
	r.logQuery(ctx, op, f, start, err)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// Exists reports whether any row matches preds.
func (r *Repo[E]) Exists(ctx context.Context, preds []predicate.Pred) (bool, error) {
	op := r.opName("exists")
	var b sqlfrag.Builder
	b.Write("SELECT EXISTS(SELECT 1 FROM ")
	b.WriteIdent(r.table.Ident())
	b.Write(" WHERE ")
	if err := r.where(ctx, op, &b, preds); err != nil {
		return false, err
	}
	b.Write(")")
	f := b.Fragment()

	start := time.Now()
	var exists bool
	err := r.q(ctx).QueryRow(ctx, f.SQL, f.Args...).Scan(&exists)
	r.logQuery(ctx, op, f, start, err)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

func (r *Repo[E]) aggSQL(ctx context.Context, op string, preds []predicate.Pred, kind AggKind, field string) (sqlfrag.Fragment, error) {
	fn, ok := aggSQL[kind]
	if !ok {
		return sqlfrag.Fragment{}, fmt.Errorf("%s: unknown aggregate %q", op, kind)
	}

	var b sqlfrag.Builder
	b.Write("SELECT ")
	b.Write(fn)
	b.Write("(")
	if kind == AggCount && field == "" {
		b.Write("*")
	} else {
		d, ok := r.table.Field(field)
		if !ok {
			return sqlfrag.Fragment{}, fmt.Errorf("%s: unknown field %q", op, field)
		}
		b.WriteIdent(d.Ident())
	}
	b.Write(")::float8 FROM ")
	b.WriteIdent(r.table.Ident())
	b.Write(" WHERE ")
	if err := r.where(ctx, op, &b, preds); err != nil {
		return sqlfrag.Fragment{}, err
	}
	return b.Fragment(), nil
}

// Agg computes an aggregate over the rows matching preds. The result is nil
// when the aggregate is NULL (sum/avg/min/max over zero rows).
func (r *Repo[E]) Agg(ctx context.Context, preds []predicate.Pred, kind AggKind, field string) (*float64, error) {
	op := r.opName("agg")
	f, err := r.aggSQL(ctx, op, preds, kind, field)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var v *float64
	err = r.q(ctx).QueryRow(ctx, f.SQL, f.Args...).Scan(&v)
	r.logQuery(ctx, op, f, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

// Stream iterates rows matching preds one at a time, calling fn for each.
// fn returning an error stops the iteration and surfaces that error. Rows
// are decoded and validated per row, so arbitrarily large result sets never
// materialize in memory.
func (r *Repo[E]) Stream(ctx context.Context, preds []predicate.Pred, fn func(E) error) error {
	op := r.opName("stream")
	f, err := r.findSQL(ctx, op, preds, FindOpts{Asc: true}, LockNone)
	if err != nil {
		return err
	}

	start := time.Now()
	rows, err := r.q(ctx).Query(ctx, f.SQL, f.Args...)
	r.logQuery(ctx, op, f, start, err)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := pgx.RowToStructByNameLax[E](rows)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
