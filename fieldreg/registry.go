package fieldreg

import (
	"fmt"
)

// Registry is the frozen index over a set of descriptors. Build one with New
// at startup and share it; it is never mutated afterwards, so concurrent
// reads need no locking.
type Registry struct {
	byField  map[string]Descriptor
	byColumn map[string]Descriptor
	byCap    map[Capability][]Descriptor
	bySQL    map[string][]Descriptor
	nullable []Descriptor
	ordered  []Descriptor
}

// New validates descs and builds the lookup indices. It fails when two
// descriptors share a field name or a column name: both namespaces must be
// globally unique for bidirectional lookup to be well defined.
func New(descs []Descriptor) (*Registry, error) {
	r := &Registry{
		byField:  make(map[string]Descriptor, len(descs)),
		byColumn: make(map[string]Descriptor, len(descs)),
		byCap:    make(map[Capability][]Descriptor),
		bySQL:    make(map[string][]Descriptor),
	}

	for _, d := range descs {
		if d.Field == "" {
			return nil, fmt.Errorf("descriptor with empty field name")
		}
		if d.SQLType == "" {
			return nil, fmt.Errorf("field %q has no SQL type", d.Field)
		}
		col := d.ColumnName()
		if _, dup := r.byField[d.Field]; dup {
			return nil, fmt.Errorf("duplicate field name %q", d.Field)
		}
		if prev, dup := r.byColumn[col]; dup {
			return nil, fmt.Errorf("fields %q and %q share column %q", prev.Field, d.Field, col)
		}

		r.byField[d.Field] = d
		r.byColumn[col] = d
		r.bySQL[d.SQLType] = append(r.bySQL[d.SQLType], d)
		if d.Nullable {
			r.nullable = append(r.nullable, d)
		}
		if d.Mark != "" {
			r.byCap[d.Mark] = append(r.byCap[d.Mark], d)
		}
		if d.Gen != "" {
			r.byCap[d.Gen] = append(r.byCap[d.Gen], d)
		}
		for _, w := range d.Wraps {
			r.byCap[w] = append(r.byCap[w], d)
		}
		r.ordered = append(r.ordered, d)
	}

	return r, nil
}

// Resolve looks a descriptor up by field name or column name.
func (r *Registry) Resolve(nameOrColumn string) (Descriptor, bool) {
	if d, ok := r.byField[nameOrColumn]; ok {
		return d, true
	}
	d, ok := r.byColumn[nameOrColumn]
	return d, ok
}

// Has reports whether the named field (or column) carries the capability.
func (r *Registry) Has(c Capability, nameOrColumn string) bool {
	d, ok := r.Resolve(nameOrColumn)
	if !ok {
		return false
	}
	switch tag := c.(type) {
	case Mark:
		return d.Mark == tag
	case Gen:
		return d.Gen == tag
	case Wrap:
		return d.HasWrap(tag)
	}
	return false
}

// All returns every descriptor carrying the capability, in registration
// order. The returned slice is shared; callers must not mutate it.
func (r *Registry) All(c Capability) []Descriptor {
	return r.byCap[c]
}

// Pick returns the first registry entry carrying the capability whose field
// or column name appears as a key in row. It answers questions like "which
// soft-delete column does this row actually have".
func (r *Registry) Pick(c Capability, row map[string]any) (Descriptor, bool) {
	for _, d := range r.byCap[c] {
		if _, ok := row[d.Field]; ok {
			return d, true
		}
		if _, ok := row[d.ColumnName()]; ok {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Nullable returns every globally nullable descriptor.
func (r *Registry) Nullable() []Descriptor {
	return r.nullable
}

// OfSQLType returns every descriptor with the given SQL type.
func (r *Registry) OfSQLType(sqlType string) []Descriptor {
	return r.bySQL[sqlType]
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int { return len(r.ordered) }

// PredicateMeta returns what the predicate compiler needs to compare against
// the field: the cast suffix for bound values and whether comparisons fold
// case.
func (r *Registry) PredicateMeta(nameOrColumn string) (cast string, casefold bool) {
	d, ok := r.Resolve(nameOrColumn)
	if !ok {
		return "", false
	}
	return d.Cast(), d.Mark == MarkCasefold
}
