package fieldreg

import "testing"

func testTable(t *testing.T, reg *Registry) Table {
	t.Helper()
	fields := []string{"id", "appId", "email", "name", "meta", "loginCount", "updatedAt", "deletedAt"}
	tbl := Table{Name: "users", Required: []string{"name"}}
	for _, f := range fields {
		d, ok := reg.Resolve(f)
		if !ok {
			t.Fatalf("fixture field %q missing from registry", f)
		}
		tbl.Fields = append(tbl.Fields, d)
	}
	if err := tbl.Validate(reg); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return tbl
}

func TestTableMarked(t *testing.T) {
	reg := testRegistry(t)
	tbl := testTable(t, reg)

	d, ok := tbl.Marked(MarkSoftDelete)
	if !ok {
		t.Fatal("expected users to have a soft-delete column")
	}
	if d.ColumnName() != "deleted_at" {
		t.Errorf("expected deleted_at, got %q", d.ColumnName())
	}

	if _, ok := tbl.Marked(MarkExpiry); ok {
		t.Error("users has no expiry column")
	}
}

func TestTableRequiredOverride(t *testing.T) {
	reg := testRegistry(t)
	tbl := testTable(t, reg)

	// name is globally nullable+optional, but users requires it.
	if !tbl.IsRequired("name") {
		t.Error("expected name to be required in users")
	}
	// meta stays optional.
	if tbl.IsRequired("meta") {
		t.Error("expected meta to stay optional")
	}
	// email is globally required (not nullable, not optional, not server-generated).
	if !tbl.IsRequired("email") {
		t.Error("expected email to be required")
	}
	// updatedAt is server-generated, never required of the caller.
	if tbl.IsRequired("updatedAt") {
		t.Error("expected updatedAt to not be required")
	}
}

func TestTableValidateRejectsUnknownRequired(t *testing.T) {
	reg := testRegistry(t)
	tbl := testTable(t, reg)
	tbl.Required = append(tbl.Required, "notAField")
	if err := tbl.Validate(reg); err == nil {
		t.Error("expected unknown required field to be rejected")
	}
}

func TestTableWrapped(t *testing.T) {
	reg := testRegistry(t)
	tbl := testTable(t, reg)

	auto := tbl.Wrapped(WrapAutoTimestamp)
	if len(auto) != 1 || auto[0].Field != "updatedAt" {
		t.Errorf("expected [updatedAt], got %v", auto)
	}
}
