package repo

import (
	"errors"
	"testing"

	"github.com/shipq/tenantdb/cursor"
	"github.com/shipq/tenantdb/predicate"
	"github.com/shipq/tenantdb/tenant"
)

func TestFindSQLScoped(t *testing.T) {
	r := testRepo(t, scopedCfg())
	ctx := tenantCtx("t1")

	f, err := r.findSQL(ctx, "users.find", nil, FindOpts{}, LockNone)
	if err != nil {
		t.Fatalf("findSQL failed: %v", err)
	}

	want := `SELECT ` + selectCols + ` FROM "users" WHERE TRUE AND "deleted_at" IS NULL AND "app_id" = $1::uuid ORDER BY "id" DESC`
	if f.SQL != want {
		t.Errorf("expected %q, got %q", want, f.SQL)
	}
	if len(f.Args) != 1 || f.Args[0] != "t1" {
		t.Errorf("expected args [t1], got %v", f.Args)
	}
}

func TestFindSQLSystemSkipsScope(t *testing.T) {
	r := testRepo(t, scopedCfg())
	ctx := tenantCtx(tenant.System)

	f, err := r.findSQL(ctx, "users.find", nil, FindOpts{}, LockNone)
	if err != nil {
		t.Fatalf("findSQL failed: %v", err)
	}

	want := `SELECT ` + selectCols + ` FROM "users" WHERE TRUE AND "deleted_at" IS NULL ORDER BY "id" DESC`
	if f.SQL != want {
		t.Errorf("expected %q, got %q", want, f.SQL)
	}
	if len(f.Args) != 0 {
		t.Errorf("expected no args, got %v", f.Args)
	}
}

func TestFindSQLUnspecifiedFailsClosed(t *testing.T) {
	r := testRepo(t, scopedCfg())

	_, err := r.findSQL(tenantCtx(tenant.Unspecified), "users.find", nil, FindOpts{}, LockNone)
	var se *tenant.ScopeError
	if !errors.As(err, &se) {
		t.Fatalf("expected *tenant.ScopeError, got %v", err)
	}
	if se.Op != "users.find" {
		t.Errorf("expected op users.find, got %q", se.Op)
	}
}

func TestFindSQLUnscopedRepo(t *testing.T) {
	r := testRepo(t, Config{})

	// An unscoped repository never consults the tenant.
	f, err := r.findSQL(tenantCtx(tenant.Unspecified), "users.find", nil, FindOpts{}, LockNone)
	if err != nil {
		t.Fatalf("findSQL failed: %v", err)
	}
	want := `SELECT ` + selectCols + ` FROM "users" WHERE TRUE AND "deleted_at" IS NULL ORDER BY "id" DESC`
	if f.SQL != want {
		t.Errorf("expected %q, got %q", want, f.SQL)
	}
}

func TestFindSQLOptionsAndLock(t *testing.T) {
	r := testRepo(t, scopedCfg())
	ctx := tenantCtx("t1")

	preds := []predicate.Pred{
		predicate.Field{Field: "email", Op: predicate.OpEq, Value: "A@B.com"},
	}
	f, err := r.findSQL(ctx, "users.one", preds, FindOpts{Asc: true, Limit: 10}, LockUpdate)
	if err != nil {
		t.Fatalf("findSQL failed: %v", err)
	}

	want := `SELECT ` + selectCols + ` FROM "users" WHERE lower("email") = lower($1) AND "deleted_at" IS NULL AND "app_id" = $2::uuid ORDER BY "id" ASC LIMIT $3 FOR UPDATE`
	if f.SQL != want {
		t.Errorf("expected %q, got %q", want, f.SQL)
	}
	if len(f.Args) != 3 || f.Args[0] != "A@B.com" || f.Args[1] != "t1" || f.Args[2] != 10 {
		t.Errorf("expected args [A@B.com t1 10], got %v", f.Args)
	}
}

func TestCountSQL(t *testing.T) {
	r := testRepo(t, scopedCfg())

	f, err := r.countSQL(tenantCtx("t1"), "users.count", nil)
	if err != nil {
		t.Fatalf("countSQL failed: %v", err)
	}
	want := `SELECT COUNT(*) FROM "users" WHERE TRUE AND "deleted_at" IS NULL AND "app_id" = $1::uuid`
	if f.SQL != want {
		t.Errorf("expected %q, got %q", want, f.SQL)
	}
}

func TestAggSQL(t *testing.T) {
	r := testRepo(t, scopedCfg())
	ctx := tenantCtx("t1")

	f, err := r.aggSQL(ctx, "users.agg", nil, AggSum, "loginCount")
	if err != nil {
		t.Fatalf("aggSQL failed: %v", err)
	}
	want := `SELECT SUM("login_count")::float8 FROM "users" WHERE TRUE AND "deleted_at" IS NULL AND "app_id" = $1::uuid`
	if f.SQL != want {
		t.Errorf("expected %q, got %q", want, f.SQL)
	}

	// COUNT with no field counts rows.
	f, err = r.aggSQL(ctx, "users.agg", nil, AggCount, "")
	if err != nil {
		t.Fatalf("aggSQL failed: %v", err)
	}
	want = `SELECT COUNT(*)::float8 FROM "users" WHERE TRUE AND "deleted_at" IS NULL AND "app_id" = $1::uuid`
	if f.SQL != want {
		t.Errorf("expected %q, got %q", want, f.SQL)
	}
}

func TestAggSQLRejectsUnknown(t *testing.T) {
	r := testRepo(t, scopedCfg())
	ctx := tenantCtx("t1")

	if _, err := r.aggSQL(ctx, "users.agg", nil, AggKind("median"), "loginCount"); err == nil {
		t.Error("expected unknown aggregate kind to fail")
	}
	if _, err := r.aggSQL(ctx, "users.agg", nil, AggSum, "nope"); err == nil {
		t.Error("expected unknown field to fail")
	}
}

func TestPageSQLKeyset(t *testing.T) {
	r := testRepo(t, scopedCfg())
	ctx := tenantCtx("t1")

	cur := cursor.Cursor{ID: "u1"}
	f, err := r.pageSQL(ctx, "users.page", nil, PageOpts{Limit: 2}, cur, true)
	if err != nil {
		t.Fatalf("pageSQL failed: %v", err)
	}

	want := `SELECT ` + selectCols + ` FROM "users" WHERE TRUE AND "deleted_at" IS NULL AND "app_id" = $1::uuid AND "id" < $2::uuid ORDER BY "id" DESC LIMIT $3`
	if f.SQL != want {
		t.Errorf("expected %q, got %q", want, f.SQL)
	}
	// One row past the limit decides HasNext.
	if len(f.Args) != 3 || f.Args[2] != 3 {
		t.Errorf("expected limit+1 bound as 3, got %v", f.Args)
	}
}

func TestPageSQLAscFlipsComparison(t *testing.T) {
	r := testRepo(t, scopedCfg())

	f, err := r.pageSQL(tenantCtx("t1"), "users.page", nil, PageOpts{Limit: 2, Asc: true}, cursor.Cursor{ID: "u1"}, true)
	if err != nil {
		t.Fatalf("pageSQL failed: %v", err)
	}
	want := `SELECT ` + selectCols + ` FROM "users" WHERE TRUE AND "deleted_at" IS NULL AND "app_id" = $1::uuid AND "id" > $2::uuid ORDER BY "id" ASC LIMIT $3`
	if f.SQL != want {
		t.Errorf("expected %q, got %q", want, f.SQL)
	}
}

func TestPageSQLNoCursor(t *testing.T) {
	r := testRepo(t, scopedCfg())

	f, err := r.pageSQL(tenantCtx("t1"), "users.page", nil, PageOpts{Limit: 2}, cursor.Cursor{}, false)
	if err != nil {
		t.Fatalf("pageSQL failed: %v", err)
	}
	want := `SELECT ` + selectCols + ` FROM "users" WHERE TRUE AND "deleted_at" IS NULL AND "app_id" = $1::uuid ORDER BY "id" DESC LIMIT $2`
	if f.SQL != want {
		t.Errorf("expected %q, got %q", want, f.SQL)
	}
}

func TestClampLimit(t *testing.T) {
	if got := clampLimit(0); got != DefaultPageLimit {
		t.Errorf("expected default %d, got %d", DefaultPageLimit, got)
	}
	if got := clampLimit(-5); got != DefaultPageLimit {
		t.Errorf("expected default %d, got %d", DefaultPageLimit, got)
	}
	if got := clampLimit(MaxPageLimit + 1); got != MaxPageLimit {
		t.Errorf("expected cap %d, got %d", MaxPageLimit, got)
	}
	if got := clampLimit(7); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
}
