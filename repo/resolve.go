package repo

import (
	"context"
	"fmt"

	"github.com/shipq/tenantdb/loader"
	"github.com/shipq/tenantdb/predicate"
	"github.com/shipq/tenantdb/tenant"
)

// By resolves rows through a named batched lookup. Concurrent By calls for
// different keys within the coalescing window collapse into one IN query
// and are demultiplexed back per key, so call sites can stay naive about
// N+1 patterns.
//
// Loaders are segregated per tenant: keys from different tenants never
// share a batch.
func (r *Repo[E]) By(ctx context.Context, name string, key string) ([]E, error) {
	op := r.opName("by")
	if len(r.cfg.Resolve) == 0 {
		return nil, &ConfigError{Op: op, Missing: "resolvers"}
	}
	res, ok := r.cfg.Resolve[name]
	if !ok {
		return nil, &UnknownFnError{Op: op, Name: name}
	}
	if r.Scoped() && tenant.From(ctx) == tenant.Unspecified {
		return nil, &tenant.ScopeError{Op: op}
	}

	return r.loaderFor(ctx, name, res).Load(ctx, key)
}

// ByOne is By for single-row resolvers: nil when the key has no row.
func (r *Repo[E]) ByOne(ctx context.Context, name string, key string) (*E, error) {
	rows, err := r.By(ctx, name, key)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// loaderFor returns the loader for a resolver under the ambient tenant,
// creating it on first use. Keying by tenant keeps batches single-tenant:
// the batch query runs under the tenant its callers share.
func (r *Repo[E]) loaderFor(ctx context.Context, name string, res Resolver) *loader.Loader[string, []E] {
	// \x1f separates the resolver name from the tenant id; neither may
	// contain it.
	key := name + "\x1f" + string(tenant.From(ctx))

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loaders[key]; ok {
		return l
	}
	// Evict the oldest entry at the cap. An evicted loader's in-flight
	// batch still completes; later calls just rebuild it.
	if len(r.loaderKeys) >= maxLoaders {
		delete(r.loaders, r.loaderKeys[0])
		r.loaderKeys = r.loaderKeys[1:]
	}
	l := loader.New(r.cfg.BatchWait, r.batchFetch(res))
	r.loaders[key] = l
	r.loaderKeys = append(r.loaderKeys, key)
	return l
}

// batchFetch builds the batch function for one resolver: a single IN query
// over the collected keys, grouped back by the key field.
func (r *Repo[E]) batchFetch(res Resolver) loader.BatchFunc[string, []E] {
	return func(ctx context.Context, keys []string) (map[string][]E, error) {
		values := make([]any, len(keys))
		for i, k := range keys {
			values[i] = k
		}

		rows, err := r.Find(ctx, []predicate.Pred{
			predicate.Field{Field: res.Field, Op: predicate.OpIn, Values: values},
		}, FindOpts{})
		if err != nil {
			return nil, err
		}

		d, ok := r.table.Field(res.Field)
		if !ok {
			return nil, fmt.Errorf("resolver field %q not in table", res.Field)
		}

		out := make(map[string][]E, len(keys))
		for _, row := range rows {
			v, ok := r.meta.value(row, d.ColumnName())
			if !ok {
				return nil, fmt.Errorf("entity has no field for column %q", d.ColumnName())
			}
			k := keyString(v)
			if !res.Many && len(out[k]) > 0 {
				continue
			}
			out[k] = append(out[k], row)
		}
		return out, nil
	}
}
