package fieldreg

import (
	"testing"
)

func testDescriptors() []Descriptor {
	return []Descriptor{
		{Field: "id", SQLType: "uuid", Mark: MarkPK, Gen: GenStored},
		{Field: "appId", SQLType: "uuid", Gen: GenStored, RefTable: "apps"},
		{Field: "email", SQLType: "text", Mark: MarkCasefold, Gen: GenStored},
		{Field: "name", SQLType: "text", Nullable: true, Gen: GenStored, Wraps: []Wrap{WrapOptional}},
		{Field: "secret", SQLType: "text", Nullable: true, Gen: GenStored, Wraps: []Wrap{WrapSensitive, WrapOptional}},
		{Field: "meta", SQLType: "jsonb", Nullable: true, Gen: GenStored, Wraps: []Wrap{WrapJSONString, WrapOptional}},
		{Field: "loginCount", Column: "login_count", SQLType: "bigint", Gen: GenStored, Wraps: []Wrap{WrapOptional}},
		{Field: "lastIp", SQLType: "inet", Nullable: true, Gen: GenStored, Wraps: []Wrap{WrapOptional}},
		{Field: "updatedAt", SQLType: "timestamptz", Gen: GenServer, Wraps: []Wrap{WrapAutoTimestamp}},
		{Field: "deletedAt", SQLType: "timestamptz", Nullable: true, Mark: MarkSoftDelete, Gen: GenServer},
		{Field: "expiresAt", SQLType: "timestamptz", Nullable: true, Mark: MarkExpiry, Gen: GenStored, Wraps: []Wrap{WrapOptional}},
	}
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(testDescriptors())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return reg
}

func TestResolveBidirectional(t *testing.T) {
	reg := testRegistry(t)

	byField, ok := reg.Resolve("appId")
	if !ok {
		t.Fatal("expected to resolve field appId")
	}
	byColumn, ok := reg.Resolve("app_id")
	if !ok {
		t.Fatal("expected to resolve column app_id")
	}
	if byField.Field != byColumn.Field {
		t.Errorf("field and column lookup disagree: %q vs %q", byField.Field, byColumn.Field)
	}
	if byField.ColumnName() != "app_id" {
		t.Errorf("expected derived column app_id, got %q", byField.ColumnName())
	}

	if _, ok := reg.Resolve("nope"); ok {
		t.Error("expected unknown name to not resolve")
	}
}

func TestNewRejectsDuplicateField(t *testing.T) {
	_, err := New([]Descriptor{
		{Field: "id", SQLType: "uuid"},
		{Field: "id", SQLType: "text"},
	})
	if err == nil {
		t.Error("expected duplicate field name to be rejected")
	}
}

func TestNewRejectsDuplicateColumn(t *testing.T) {
	_, err := New([]Descriptor{
		{Field: "appId", SQLType: "uuid"},
		{Field: "appID", SQLType: "uuid"}, // both derive app_id
	})
	if err == nil {
		t.Error("expected shared column name to be rejected")
	}
}

func TestNoTwoFieldsShareAColumn(t *testing.T) {
	// Registry-wide invariant: field and column namespaces are each unique.
	descs := testDescriptors()
	fields := make(map[string]bool)
	columns := make(map[string]bool)
	for _, d := range descs {
		if fields[d.Field] {
			t.Errorf("field %q registered twice", d.Field)
		}
		if columns[d.ColumnName()] {
			t.Errorf("column %q registered twice", d.ColumnName())
		}
		fields[d.Field] = true
		columns[d.ColumnName()] = true
	}
}

func TestHas(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		cap  Capability
		name string
		want bool
	}{
		{MarkPK, "id", true},
		{MarkPK, "email", false},
		{MarkSoftDelete, "deletedAt", true},
		{MarkSoftDelete, "deleted_at", true},
		{MarkCasefold, "email", true},
		{WrapSensitive, "secret", true},
		{WrapSensitive, "name", false},
		{WrapAutoTimestamp, "updatedAt", true},
		{GenServer, "updatedAt", true},
		{GenServer, "email", false},
		{MarkPK, "unknown", false},
	}
	for _, tt := range tests {
		if got := reg.Has(tt.cap, tt.name); got != tt.want {
			t.Errorf("Has(%v, %q) = %v, want %v", tt.cap, tt.name, got, tt.want)
		}
	}
}

func TestPick(t *testing.T) {
	reg := testRegistry(t)

	row := map[string]any{"id": "x", "email": "a@b.c", "deleted_at": nil}
	d, ok := reg.Pick(MarkSoftDelete, row)
	if !ok {
		t.Fatal("expected to pick soft-delete column from row")
	}
	if d.Field != "deletedAt" {
		t.Errorf("expected deletedAt, got %q", d.Field)
	}

	if _, ok := reg.Pick(MarkExpiry, row); ok {
		t.Error("expected no expiry column in row")
	}
}

func TestPredicateMeta(t *testing.T) {
	reg := testRegistry(t)

	cast, casefold := reg.PredicateMeta("appId")
	if cast != "uuid" || casefold {
		t.Errorf("appId meta = (%q, %v), want (uuid, false)", cast, casefold)
	}

	cast, casefold = reg.PredicateMeta("email")
	if cast != "" || !casefold {
		t.Errorf("email meta = (%q, %v), want (\"\", true)", cast, casefold)
	}

	cast, _ = reg.PredicateMeta("lastIp")
	if cast != "inet" {
		t.Errorf("lastIp cast = %q, want inet", cast)
	}

	cast, _ = reg.PredicateMeta("meta")
	if cast != "jsonb" {
		t.Errorf("meta cast = %q, want jsonb", cast)
	}
}

func TestCapabilityIndices(t *testing.T) {
	reg := testRegistry(t)

	if got := len(reg.All(WrapOptional)); got != 6 {
		t.Errorf("expected 6 optional fields, got %d", got)
	}
	if got := len(reg.All(MarkPK)); got != 1 {
		t.Errorf("expected 1 pk field, got %d", got)
	}
	if got := len(reg.Nullable()); got != 6 {
		t.Errorf("expected 6 nullable fields, got %d", got)
	}
	if got := len(reg.OfSQLType("timestamptz")); got != 3 {
		t.Errorf("expected 3 timestamptz fields, got %d", got)
	}
}
