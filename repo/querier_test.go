package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shipq/tenantdb/db"
	"github.com/shipq/tenantdb/predicate"
)

// emptyRows is a pgx.Rows over zero rows, which is what an OCC-guarded
// statement returns when its precondition does not hold.
type emptyRows struct{}

func (emptyRows) Close()                                       {}
func (emptyRows) Err() error                                   { return nil }
func (emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (emptyRows) Next() bool                                   { return false }
func (emptyRows) Scan(dest ...any) error                       { return nil }
func (emptyRows) Values() ([]any, error)                       { return nil, nil }
func (emptyRows) RawValues() [][]byte                          { return nil }
func (emptyRows) Conn() *pgx.Conn                              { return nil }

// emptyQuerier answers every query with zero rows, standing in for the pool
// when a write's RETURNING comes back short.
type emptyQuerier struct{}

func (emptyQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (emptyQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return emptyRows{}, nil
}

func (emptyQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return emptyRows{}
}

func (emptyQuerier) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("transactions not supported")
}

var _ db.Beginner = emptyQuerier{}

// emptyRepo builds a repository whose queries all return zero rows.
func emptyRepo(t *testing.T, cfg Config) *Repo[testUser] {
	t.Helper()
	reg := testRegistry(t)
	r, err := New[testUser](emptyQuerier{}, reg, testTable(t, reg), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return r
}

func TestPutOCCShortReturningFails(t *testing.T) {
	cfg := scopedCfg()
	cfg.Conflict = &ConflictSpec{Keys: []string{"email"}, Update: []string{"name"}}
	r := emptyRepo(t, cfg)

	// The conflict update's timestamp guard filtered the row out, so
	// RETURNING yields fewer rows than were written.
	occ := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	_, err := r.Put(tenantCtx("t1"), []testUser{sampleUser()}, PutOpts{OnConflict: true, OCC: &occ})
	var oe *OccError
	if !errors.As(err, &oe) {
		t.Errorf("expected *OccError for a stale upsert, got %v", err)
	}
}

func TestSetOneGuardedZeroRowsFails(t *testing.T) {
	r := emptyRepo(t, scopedCfg())

	_, err := r.SetOne(tenantCtx("t1"), "u1",
		map[string]predicate.Update{"name": predicate.Set{Value: "Ada"}},
		predicate.Field{Field: "loginCount", Op: predicate.OpEq, Value: int64(3)},
	)
	var oe *OccError
	if !errors.As(err, &oe) {
		t.Errorf("expected *OccError when the guard does not hold, got %v", err)
	}
}

func TestSetOneMissingRowFails(t *testing.T) {
	r := emptyRepo(t, scopedCfg())

	// Without a guard a zero-row update means the row does not exist.
	_, err := r.SetOne(tenantCtx("t1"), "u1",
		map[string]predicate.Update{"name": predicate.Set{Value: "Ada"}},
	)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
