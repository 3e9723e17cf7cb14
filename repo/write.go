package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shipq/tenantdb/fieldreg"
	"github.com/shipq/tenantdb/sqlfrag"
	"github.com/shipq/tenantdb/tenant"
)

// PutOpts controls insert conflict handling.
type PutOpts struct {
	// OnConflict turns the insert into an upsert using the configured
	// ConflictSpec.
	OnConflict bool

	// OCC, when set, makes the conflict update conditional on the row's
	// auto-timestamp still matching. A stale timestamp yields *OccError.
	// OCC is opt-in: without it a conflicting write simply wins.
	OCC *time.Time
}

// insertFields lists the columns bound from the entity on insert: stored,
// non-virtual, not auto-timestamped.
func (r *Repo[E]) insertFields() []fieldreg.Descriptor {
	var out []fieldreg.Descriptor
	for _, d := range r.table.Fields {
		if d.Gen == fieldreg.GenVirtual || d.Gen == fieldreg.GenServer {
			continue
		}
		if d.HasWrap(fieldreg.WrapAutoTimestamp) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// autoFields lists the columns written as NOW() on every insert and update.
func (r *Repo[E]) autoFields() []fieldreg.Descriptor {
	return r.table.Wrapped(fieldreg.WrapAutoTimestamp)
}

// bindEntity binds one entity's value for d. On scoped repositories the
// scoping column is overridden with the ambient tenant, so a caller cannot
// write a row into another tenant by constructing the entity by hand.
func (r *Repo[E]) bindEntity(ctx context.Context, b *sqlfrag.Builder, e E, d fieldreg.Descriptor) error {
	if r.Scoped() && d.Field == r.scoped.Field {
		if id := tenant.From(ctx); id != tenant.System {
			b.BindCast(string(id), d.Cast())
			return nil
		}
	}
	v, ok := r.meta.value(e, d.ColumnName())
	if !ok {
		return fmt.Errorf("entity %T has no field for column %q", e, d.ColumnName())
	}
	b.BindCast(v, d.Cast())
	return nil
}

func (r *Repo[E]) putSQL(ctx context.Context, op string, entities []E, opts PutOpts) (sqlfrag.Fragment, error) {
	if r.Scoped() && tenant.From(ctx) == tenant.Unspecified {
		return sqlfrag.Fragment{}, &tenant.ScopeError{Op: op}
	}
	if opts.OnConflict && r.cfg.Conflict == nil {
		return sqlfrag.Fragment{}, &ConfigError{Op: op, Missing: "conflict keys"}
	}
	// An OCC precondition only guards the conflict update; without conflict
	// handling it would be silently ignored, so refuse it outright.
	if opts.OCC != nil && !opts.OnConflict {
		return sqlfrag.Fragment{}, &ConfigError{Op: op, Missing: "conflict handling for OCC"}
	}

	fields := r.insertFields()
	auto := r.autoFields()

	var b sqlfrag.Builder
	b.Write("INSERT INTO ")
	b.WriteIdent(r.table.Ident())
	b.Write(" (")
	for i, d := range fields {
		if i > 0 {
			b.Write(", ")
		}
		b.WriteIdent(d.Ident())
	}
	for _, d := range auto {
		b.Write(", ")
		b.WriteIdent(d.Ident())
	}
	b.Write(") VALUES ")

	for i, e := range entities {
		if i > 0 {
			b.Write(", ")
		}
		b.Write("(")
		for j, d := range fields {
			if j > 0 {
				b.Write(", ")
			}
			if err := r.bindEntity(ctx, &b, e, d); err != nil {
				return sqlfrag.Fragment{}, fmt.Errorf("%s: %w", op, err)
			}
		}
		for range auto {
			b.Write(", NOW()")
		}
		b.Write(")")
	}

	if opts.OnConflict {
		if err := r.writeConflictClause(&b, op, opts); err != nil {
			return sqlfrag.Fragment{}, err
		}
	}

	b.Write(" RETURNING ")
	r.selectColumns(&b)
	return b.Fragment(), nil
}

func (r *Repo[E]) writeConflictClause(b *sqlfrag.Builder, op string, opts PutOpts) error {
	spec := r.cfg.Conflict
	b.Write(" ON CONFLICT (")
	for i, k := range spec.Keys {
		if i > 0 {
			b.Write(", ")
		}
		d, _ := r.table.Field(k)
		b.WriteIdent(d.Ident())
	}
	b.Write(") DO UPDATE SET ")
	wrote := false
	for _, k := range spec.Update {
		if wrote {
			b.Write(", ")
		}
		d, _ := r.table.Field(k)
		b.WriteIdent(d.Ident())
		b.Write(" = EXCLUDED.")
		b.WriteIdent(d.Ident())
		wrote = true
	}
	for _, d := range r.autoFields() {
		if wrote {
			b.Write(", ")
		}
		b.WriteIdent(d.Ident())
		b.Write(" = NOW()")
		wrote = true
	}

	if opts.OCC != nil {
		occ := r.autoFields()
		if len(occ) == 0 {
			return &ConfigError{Op: op, Missing: "an auto-timestamp column for OCC"}
		}
		b.Write(" WHERE ")
		b.WriteIdent(r.table.Ident())
		b.Write(".")
		b.WriteIdent(occ[0].Ident())
		b.Write(" = ")
		b.BindCast(*opts.OCC, "timestamptz")
	}
	return nil
}

// Put inserts one or more entities and returns the inserted rows as stored.
// With opts.OnConflict it upserts against the configured conflict keys;
// with opts.OCC the conflict update additionally requires the stored
// timestamp to match, failing with *OccError when it does not.
func (r *Repo[E]) Put(ctx context.Context, entities []E, opts PutOpts) ([]E, error) {
	op := r.opName("put")
	if len(entities) == 0 {
		return nil, nil
	}
	f, err := r.putSQL(ctx, op, entities, opts)
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
	if opts.OCC != nil && len(out) < len(entities) {
		return out, &OccError{Op: op}
	}
	return out, nil
}

// Upsert is Put with conflict handling enabled.
func (r *Repo[E]) Upsert(ctx context.Context, entities []E, occ *time.Time) ([]E, error) {
	return r.Put(ctx, entities, PutOpts{OnConflict: true, OCC: occ})
}

// MergeResult tags one merged row with how the merge resolved it.
type MergeResult struct {
	ID       string
	Inserted bool
}

func (r *Repo[E]) mergeSQL(ctx context.Context, op string, entities []E) (sqlfrag.Fragment, error) {
	fields := r.insertFields()
	auto := r.autoFields()

	var b sqlfrag.Builder
	b.Write("MERGE INTO ")
	b.WriteIdent(r.table.Ident())
	b.Write(" AS t USING (VALUES ")
	for i, e := range entities {
		if i > 0 {
			b.Write(", ")
		}
		b.Write("(")
		for j, d := range fields {
			if j > 0 {
				b.Write(", ")
			}
			if err := r.bindEntity(ctx, &b, e, d); err != nil {
				return sqlfrag.Fragment{}, fmt.Errorf("%s: %w", op, err)
			}
		}
		b.Write(")")
	}
	b.Write(") AS src (")
	for i, d := range fields {
		if i > 0 {
			b.Write(", ")
		}
		b.WriteIdent(d.Ident())
	}
	b.Write(") ON t.")
	b.WriteIdent(r.pk.Ident())
	b.Write(" = src.")
	b.WriteIdent(r.pk.Ident())

	if r.Scoped() {
		switch id := tenant.From(ctx); id {
		case tenant.System:
		case tenant.Unspecified:
			return sqlfrag.Fragment{}, &tenant.ScopeError{Op: op}
		default:
			b.Write(" AND t.")
			b.WriteIdent(r.scoped.Ident())
			b.Write(" = ")
			b.BindCast(string(id), r.scoped.Cast())
		}
	}

	b.Write(" WHEN MATCHED THEN UPDATE SET ")
	wrote := false
	for _, d := range fields {
		if d.Field == r.pk.Field || (r.Scoped() && d.Field == r.scoped.Field) {
			continue
		}
		if wrote {
			b.Write(", ")
		}
		b.WriteIdent(d.Ident())
		b.Write(" = src.")
		b.WriteIdent(d.Ident())
		wrote = true
	}
	for _, d := range auto {
		if wrote {
			b.Write(", ")
		}
		b.WriteIdent(d.Ident())
		b.Write(" = NOW()")
		wrote = true
	}

	b.Write(" WHEN NOT MATCHED THEN INSERT (")
	for i, d := range fields {
		if i > 0 {
			b.Write(", ")
		}
		b.WriteIdent(d.Ident())
	}
	for _, d := range auto {
		b.Write(", ")
		b.WriteIdent(d.Ident())
	}
	b.Write(") VALUES (")
	for i, d := range fields {
		if i > 0 {
			b.Write(", ")
		}
		b.Write("src.")
		b.WriteIdent(d.Ident())
	}
	for range auto {
		b.Write(", NOW()")
	}
	b.Write(")")

	// merge_action() in RETURNING requires PostgreSQL 17.
	b.Write(" RETURNING merge_action(), t.")
	b.WriteIdent(r.pk.Ident())
	return b.Fragment(), nil
}

// Merge synchronizes entities into the table with a single SQL MERGE:
// existing rows (by primary key) are updated, missing ones inserted. Each
// row comes back tagged with how it was resolved, which makes bulk sync
// jobs idempotent and observable.
//
// The match is by primary key alone, with no liveness filter: merging an
// entity whose row is soft-deleted updates that row in place rather than
// colliding on the key with a fresh insert. The tombstone column is
// server-managed and stays set, so the row remains invisible to reads
// until Lift restores it.
func (r *Repo[E]) Merge(ctx context.Context, entities []E) ([]MergeResult, error) {
	op := r.opName("merge")
	if len(entities) == 0 {
		return nil, nil
	}
	f, err := r.mergeSQL(ctx, op, entities)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := r.q(ctx).Query(ctx, f.SQL, f.Args...)
	r.logQuery(ctx, op, f, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []MergeResult
	for rows.Next() {
		var action, id string
		if err := rows.Scan(&action, &id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, MergeResult{ID: id, Inserted: action == "INSERT"})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
