package fieldreg

import (
	"fmt"

	"github.com/shipq/tenantdb/sqlfrag"
)

// Table narrows the registry to the shape of one entity: which fields the
// table actually has, plus per-table tightening of the global rules.
type Table struct {
	// Name is the SQL table name.
	Name string

	// Fields lists the table's descriptors, in column order.
	Fields []Descriptor

	// Required lists fields that must be present on insert even when the
	// global descriptor says nullable or optional.
	Required []string

	// UniqueGroups lists column groups under a uniqueness constraint.
	UniqueGroups [][]string

	// FKOverrides replaces a descriptor's RefTable for this table only,
	// keyed by field name.
	FKOverrides map[string]string
}

// Validate checks the table shape against the registry: every field must
// resolve, and every Required/FKOverrides entry must name a table field.
func (t Table) Validate(reg *Registry) error {
	have := make(map[string]bool, len(t.Fields))
	for _, d := range t.Fields {
		if _, ok := reg.Resolve(d.Field); !ok {
			return fmt.Errorf("table %s: field %q not in registry", t.Name, d.Field)
		}
		have[d.Field] = true
	}
	for _, f := range t.Required {
		if !have[f] {
			return fmt.Errorf("table %s: required field %q not in table", t.Name, f)
		}
	}
	for f := range t.FKOverrides {
		if !have[f] {
			return fmt.Errorf("table %s: fk override for %q, which is not in table", t.Name, f)
		}
	}
	return nil
}

// Ident returns the table name as a trusted identifier.
func (t Table) Ident() sqlfrag.Ident {
	return sqlfrag.MustIdent(t.Name)
}

// Field returns the table's descriptor for a field or column name.
func (t Table) Field(nameOrColumn string) (Descriptor, bool) {
	for _, d := range t.Fields {
		if d.Field == nameOrColumn || d.ColumnName() == nameOrColumn {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Columns returns the table's column names in field order.
func (t Table) Columns() []string {
	out := make([]string, len(t.Fields))
	for i, d := range t.Fields {
		out[i] = d.ColumnName()
	}
	return out
}

// Has reports whether the table has the field or column.
func (t Table) Has(nameOrColumn string) bool {
	_, ok := t.Field(nameOrColumn)
	return ok
}

// Marked returns the table's first field carrying the mark, if any. Used to
// find, e.g., the soft-delete column this table actually has.
func (t Table) Marked(m Mark) (Descriptor, bool) {
	for _, d := range t.Fields {
		if d.Mark == m {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Wrapped returns every table field carrying the wrap.
func (t Table) Wrapped(w Wrap) []Descriptor {
	var out []Descriptor
	for _, d := range t.Fields {
		if d.HasWrap(w) {
			out = append(out, d)
		}
	}
	return out
}

// IsRequired reports whether the field is required for this table, either
// globally (not nullable, not optional) or via a per-table override.
func (t Table) IsRequired(field string) bool {
	for _, f := range t.Required {
		if f == field {
			return true
		}
	}
	d, ok := t.Field(field)
	if !ok {
		return false
	}
	return !d.Nullable && !d.HasWrap(WrapOptional) && d.Gen != GenServer
}
