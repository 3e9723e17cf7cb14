package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shipq/tenantdb/cursor"
	"github.com/shipq/tenantdb/predicate"
	"github.com/shipq/tenantdb/sqlfrag"
)

// DefaultPageLimit applies when a page request does not set a limit.
const DefaultPageLimit = 50

// MaxPageLimit caps any single page.
const MaxPageLimit = 500

// PageOpts controls keyset pagination.
type PageOpts struct {
	Limit int

	// Cursor resumes after the page that returned it. Malformed cursors
	// degrade to the first page.
	Cursor string

	// Asc orders oldest first.
	Asc bool
}

// OffsetOpts controls offset pagination. Page is 1-based.
type OffsetOpts struct {
	Limit int
	Page  int
	Asc   bool
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

func (r *Repo[E]) pageSQL(ctx context.Context, op string, preds []predicate.Pred, opts PageOpts, cur cursor.Cursor, hasCur bool) (sqlfrag.Fragment, error) {
	var b sqlfrag.Builder
	b.Write("SELECT ")
	r.selectColumns(&b)
	b.Write(" FROM ")
	b.WriteIdent(r.table.Ident())
	b.Write(" WHERE ")
	if err := r.where(ctx, op, &b, preds); err != nil {
		return sqlfrag.Fragment{}, err
	}

	// Keyset: resume strictly past the last-seen pk. Stable under
	// concurrent inserts because the pk is timestamp-ordered.
	if hasCur {
		b.Write(" AND ")
		b.WriteIdent(r.pk.Ident())
		if opts.Asc {
			b.Write(" > ")
		} else {
			b.Write(" < ")
		}
		b.BindCast(cur.ID, r.cfg.PK.Cast)
	}

	b.Write(" ORDER BY ")
	b.WriteIdent(r.pk.Ident())
	if opts.Asc {
		b.Write(" ASC")
	} else {
		b.Write(" DESC")
	}
	// One extra row decides HasNext without a second query.
	b.Write(" LIMIT ")
	b.Bind(clampLimit(opts.Limit) + 1)
	return b.Fragment(), nil
}

// Page returns one keyset page of rows matching preds. Calling Page again
// with the returned cursor visits every matching row exactly once; the
// final page reports HasNext=false.
func (r *Repo[E]) Page(ctx context.Context, preds []predicate.Pred, opts PageOpts) (cursor.KeysetPage[E], error) {
	op := r.opName("page")
	var page cursor.KeysetPage[E]

	cur, hasCur := cursor.Decode(opts.Cursor)
	f, err := r.pageSQL(ctx, op, preds, opts, cur, hasCur)
	if err != nil {
		return page, err
	}

	start := time.Now()
	rows, err := r.q(ctx).Query(ctx, f.SQL, f.Args...)
	r.logQuery(ctx, op, f, start, err)
	if err != nil {
		return page, fmt.Errorf("%s: %w", op, err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[E])
	if err != nil {
		return page, fmt.Errorf("%s: %w", op, err)
	}

	limit := clampLimit(opts.Limit)
	page.HasPrev = hasCur
	if len(items) > limit {
		page.HasNext = true
		items = items[:limit]
	}
	page.Items = items

	if len(items) > 0 {
		last, ok := r.meta.value(items[len(items)-1], r.pk.ColumnName())
		if !ok {
			return page, fmt.Errorf("%s: entity has no pk column %q", op, r.pk.ColumnName())
		}
		page.Cursor = cursor.Encode(cursor.Cursor{ID: keyString(last)})
	}

	total, err := r.Count(ctx, preds)
	if err != nil {
		return page, err
	}
	page.Total = total
	return page, nil
}

// PageOffset returns one offset page of rows matching preds, with the page
// arithmetic precomputed for UI consumption.
func (r *Repo[E]) PageOffset(ctx context.Context, preds []predicate.Pred, opts OffsetOpts) (cursor.OffsetPage[E], error) {
	op := r.opName("pageOffset")
	var page cursor.OffsetPage[E]

	limit := clampLimit(opts.Limit)
	pageNum := opts.Page
	if pageNum < 1 {
		pageNum = 1
	}

	var b sqlfrag.Builder
	b.Write("SELECT ")
	r.selectColumns(&b)
	b.Write(" FROM ")
	b.WriteIdent(r.table.Ident())
	b.Write(" WHERE ")
	if err := r.where(ctx, op, &b, preds); err != nil {
		return page, err
	}
	b.Write(" ORDER BY ")
	b.WriteIdent(r.pk.Ident())
	if opts.Asc {
		b.Write(" ASC")
	} else {
		b.Write(" DESC")
	}
	b.Write(" LIMIT ")
	b.Bind(limit)
	b.Write(" OFFSET ")
	b.Bind((pageNum - 1) * limit)
	f := b.Fragment()

	start := time.Now()
	rows, err := r.q(ctx).Query(ctx, f.SQL, f.Args...)
	r.logQuery(ctx, op, f, start, err)
	if err != nil {
		return page, fmt.Errorf("%s: %w", op, err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[E])
	if err != nil {
		return page, fmt.Errorf("%s: %w", op, err)
	}

	total, err := r.Count(ctx, preds)
	if err != nil {
		return page, err
	}

	pages := int((total + int64(limit) - 1) / int64(limit))
	page.Items = items
	page.Page = pageNum
	page.Pages = pages
	page.Total = total
	page.HasNext = pageNum < pages
	page.HasPrev = pageNum > 1 && total > 0
	return page, nil
}
