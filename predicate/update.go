package predicate

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shipq/tenantdb/fieldreg"
	"github.com/shipq/tenantdb/sqlfrag"
)

// Update is one entry in an update map. The vocabulary is closed: a value
// is exactly one of Set, Now, Inc, JSONSet or JSONDel, and Entries matches
// it exhaustively.
type Update interface {
	updateNode()
}

// Set assigns a value. Objects headed for jsonb columns are JSON-encoded;
// everything else is a direct scalar assignment.
type Set struct {
	Value any
}

// Now assigns the server-side NOW().
type Now struct{}

// Inc adds a delta to a numeric column.
type Inc struct {
	Delta any
}

// JSONSet sets a value at a path inside a jsonb column. Value is always
// JSON-encoded as given: a Go string becomes a JSON string, not raw JSON
// text. Callers holding pre-serialized JSON use Set on the whole column.
type JSONSet struct {
	Path  []string
	Value any
}

// JSONDel deletes the value at a path inside a jsonb column.
type JSONDel struct {
	Path []string
}

func (Set) updateNode()     {}
func (Now) updateNode()     {}
func (Inc) updateNode()     {}
func (JSONSet) updateNode() {}
func (JSONDel) updateNode() {}

var (
	_ Update = Set{}
	_ Update = Now{}
	_ Update = Inc{}
	_ Update = JSONSet{}
	_ Update = JSONDel{}
)

// Entries appends the comma-joined `col = ...` assignments for updates to
// b, in field-name order so compiled SQL is deterministic.
func Entries(reg *fieldreg.Registry, b *sqlfrag.Builder, updates map[string]Update) error {
	if len(updates) == 0 {
		return fmt.Errorf("empty update map")
	}

	fields := make([]string, 0, len(updates))
	for f := range updates {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for i, f := range fields {
		if i > 0 {
			b.Write(", ")
		}
		if err := compileEntry(reg, b, f, updates[f]); err != nil {
			return err
		}
	}
	return nil
}

func compileEntry(reg *fieldreg.Registry, b *sqlfrag.Builder, field string, u Update) error {
	d, ok := reg.Resolve(field)
	if !ok {
		return fmt.Errorf("unknown field %q in update", field)
	}
	col := d.Ident()
	b.WriteIdent(col)
	b.Write(" = ")

	switch u := u.(type) {
	case Now:
		b.Write("NOW()")
		return nil

	case Inc:
		b.WriteIdent(col)
		b.Write(" + ")
		b.Bind(u.Delta)
		return nil

	case JSONDel:
		b.WriteIdent(col)
		b.Write(" #- ")
		b.BindCast(u.Path, "text[]")
		return nil

	case JSONSet:
		b.Write("jsonb_set(")
		b.WriteIdent(col)
		b.Write(", ")
		b.BindCast(u.Path, "text[]")
		b.Write(", ")
		// Unconditional encoding: a string value must become a JSON
		// string here, or jsonb_set rejects it as malformed jsonb.
		data, err := json.Marshal(u.Value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", field, err)
		}
		b.BindCast(string(data), "jsonb")
		b.Write(")")
		return nil

	case Set:
		if d.Cast() == "jsonb" || d.HasWrap(fieldreg.WrapJSONString) {
			return bindJSONString(b, u.Value, d)
		}
		b.BindCast(u.Value, d.Cast())
		return nil

	default:
		return fmt.Errorf("unknown update type %T for field %q", u, field)
	}
}

// bindJSONString encodes a Set value for a JSON-backed column. Strings are
// assumed to already be serialized JSON for jsonb columns; JSON-string
// wrapped text columns always re-encode.
func bindJSONString(b *sqlfrag.Builder, v any, d fieldreg.Descriptor) error {
	if d.Cast() == "jsonb" {
		return bindJSON(b, v)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.Field, err)
	}
	b.Bind(string(data))
	return nil
}
