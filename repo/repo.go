// Package repo generates the full operation surface for one entity from a
// table descriptor and a small per-entity config: find/one/page/count/
// exists/agg, put/upsert/merge, set/drop/lift/purge, custom functions,
// streaming and batched lookups.
//
// Every operation on a tenant-scoped repository threads the ambient tenant
// context; no call site can opt out. Rows scan into the entity struct via
// pgx's by-name mapping, so entities are ordinary structs with db tags.
package repo

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/shipq/tenantdb/db"
	"github.com/shipq/tenantdb/dbstrings"
	"github.com/shipq/tenantdb/fieldreg"
	"github.com/shipq/tenantdb/loader"
	"github.com/shipq/tenantdb/logging"
	"github.com/shipq/tenantdb/sqlfrag"
	"github.com/shipq/tenantdb/tenant"
)

// PKSpec names the primary-key column and its comparison cast.
type PKSpec struct {
	Column string
	Cast   string
}

// Resolver configures one named batched lookup for By.
type Resolver struct {
	// Field is the lookup key field.
	Field string

	// Many reports whether a key maps to multiple rows.
	Many bool
}

// ConflictSpec configures upsert behavior: the conflict target columns and
// the subset of columns updated on conflict.
type ConflictSpec struct {
	Keys   []string
	Update []string
}

// FnSpec declares a registered custom SQL function.
type FnSpec struct {
	// Args is the parameter count the function expects.
	Args int
}

// Config is the per-entity generation input.
type Config struct {
	// PK identifies the primary key. Defaults to column "id" with a uuid
	// cast.
	PK PKSpec

	// Scoped names the tenant-scoping field. Empty means the entity is
	// global (unscoped).
	Scoped string

	// Resolve configures named batched lookups.
	Resolve map[string]Resolver

	// Conflict configures Put/Upsert conflict handling.
	Conflict *ConflictSpec

	// PurgeFn names the SQL function Purge delegates to.
	PurgeFn string

	// Fns registers custom SQL functions callable through Fn.
	Fns map[string]FnSpec

	// BatchWait overrides the resolver coalescing window.
	BatchWait time.Duration

	// Log receives per-query debug records. Nil disables logging.
	Log *slog.Logger
}

// Repo is the generated repository for entity type E.
type Repo[E any] struct {
	pool  db.Beginner
	reg   *fieldreg.Registry
	table fieldreg.Table
	cfg   Config

	pk     fieldreg.Descriptor
	scoped fieldreg.Descriptor // zero when unscoped
	soft   fieldreg.Descriptor // zero when no soft-delete column
	hasSD  bool

	meta structMeta

	mu         sync.Mutex
	loaders    map[string]*loader.Loader[string, []E]
	loaderKeys []string // insertion order, for eviction
}

// maxLoaders bounds the per-tenant loader cache. One loader exists per
// resolver and tenant pair, so without a cap the map grows with every
// tenant ever seen.
const maxLoaders = 256

// New composes a repository from the registry, the table shape and cfg.
// It validates that the scoped field, conflict keys and resolver fields all
// exist in the table, so misconfiguration fails at startup rather than on
// first use.
func New[E any](pool db.Beginner, reg *fieldreg.Registry, table fieldreg.Table, cfg Config) (*Repo[E], error) {
	if err := table.Validate(reg); err != nil {
		return nil, err
	}

	r := &Repo[E]{
		pool:    pool,
		reg:     reg,
		table:   table,
		cfg:     cfg,
		meta:    newStructMeta[E](),
		loaders: make(map[string]*loader.Loader[string, []E]),
	}

	if cfg.PK.Column == "" {
		cfg.PK = PKSpec{Column: "id", Cast: "uuid"}
		r.cfg.PK = cfg.PK
	}
	pk, ok := table.Field(cfg.PK.Column)
	if !ok {
		return nil, fmt.Errorf("table %s: pk column %q not in table", table.Name, cfg.PK.Column)
	}
	r.pk = pk

	if cfg.Scoped != "" {
		d, ok := table.Field(cfg.Scoped)
		if !ok {
			return nil, fmt.Errorf("table %s: scoped field %q not in table", table.Name, cfg.Scoped)
		}
		r.scoped = d
	}

	if sd, ok := table.Marked(fieldreg.MarkSoftDelete); ok {
		r.soft = sd
		r.hasSD = true
	}

	if cfg.Conflict != nil {
		for _, k := range append(append([]string{}, cfg.Conflict.Keys...), cfg.Conflict.Update...) {
			if !table.Has(k) {
				return nil, fmt.Errorf("table %s: conflict column %q not in table", table.Name, k)
			}
		}
	}
	for name, res := range cfg.Resolve {
		if !table.Has(res.Field) {
			return nil, fmt.Errorf("table %s: resolver %q field %q not in table", table.Name, name, res.Field)
		}
	}

	return r, nil
}

// Table returns the repository's table descriptor.
func (r *Repo[E]) Table() fieldreg.Table { return r.table }

// Scoped reports whether the repository is tenant-scoped.
func (r *Repo[E]) Scoped() bool { return r.cfg.Scoped != "" }

// q returns the querier for ctx: the transaction already scoped to the
// ambient tenant when inside tenant.Scope, the pool otherwise.
func (r *Repo[E]) q(ctx context.Context) db.Querier {
	if tx, ok := tenant.ActiveQuerier(ctx); ok {
		return tx
	}
	return r.pool
}

// autoscope appends the tenant predicate for scoped repositories. It is
// called by every operation's WHERE builder, which is what makes scoping
// impossible to forget.
func (r *Repo[E]) autoscope(ctx context.Context, op string, b *sqlfrag.Builder) error {
	if !r.Scoped() {
		return nil
	}
	return tenant.Autoscope(ctx, op, r.scoped.Ident(), r.scoped.Cast(), b)
}

// activeFilter appends the soft-delete liveness filter when the table has a
// tombstone column.
func (r *Repo[E]) activeFilter(b *sqlfrag.Builder) {
	if !r.hasSD {
		return
	}
	b.Write(" AND ")
	b.WriteIdent(r.soft.Ident())
	b.Write(" IS NULL")
}

// selectColumns lists the stored columns returned by reads, skipping
// virtual fields.
func (r *Repo[E]) selectColumns(b *sqlfrag.Builder) {
	first := true
	for _, d := range r.table.Fields {
		if d.Gen == fieldreg.GenVirtual {
			continue
		}
		if !first {
			b.Write(", ")
		}
		b.WriteIdent(d.Ident())
		first = false
	}
}

func (r *Repo[E]) opName(op string) string {
	return r.table.Name + "." + op
}

func (r *Repo[E]) logQuery(ctx context.Context, op string, f sqlfrag.Fragment, start time.Time, err error) {
	if r.cfg.Log == nil {
		return
	}
	// Args are never logged: sensitive-wrapped values may be among them.
	r.cfg.Log.DebugContext(ctx, "query",
		"op", op,
		"sql", f.SQL,
		"duration_ms", float64(time.Since(start).Nanoseconds())/1e6,
		"tenant", string(tenant.From(ctx)),
		"trace_id", logging.TraceID(ctx),
		"error", err,
	)
}

// structMeta maps column names to struct field indices via db tags, with
// snake_case of the Go field name as fallback. Built once per repository.
type structMeta struct {
	index map[string][]int
}

func newStructMeta[E any]() structMeta {
	m := structMeta{index: make(map[string][]int)}
	t := reflect.TypeOf((*E)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		return m
	}
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() {
			continue
		}
		col := f.Tag.Get("db")
		if col == "-" {
			continue
		}
		if col == "" {
			col = dbstrings.ToSnakeCase(f.Name)
		}
		m.index[col] = f.Index
	}
	return m
}

// value extracts the entity's value for a column.
func (m structMeta) value(e any, column string) (any, bool) {
	idx, ok := m.index[column]
	if !ok {
		return nil, false
	}
	v := reflect.ValueOf(e)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	return v.FieldByIndex(idx).Interface(), true
}

// keyString renders a lookup or pagination key for cursor encoding and
// batch demultiplexing.
func keyString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
