// Package predicate compiles the closed predicate and update vocabularies
// into SQL fragments. Column expressions and casts come from the field
// registry; values are always bound through sqlfrag, never interpolated.
package predicate

import (
	"encoding/json"
	"fmt"

	"github.com/shipq/tenantdb/fieldreg"
	"github.com/shipq/tenantdb/sqlfrag"
)

// TimestampFn extracts the embedded creation timestamp from a
// timestamp-ordered (v7) UUID. Provided by the schema layer; native in
// PostgreSQL 18.
const TimestampFn = "uuid_extract_timestamp"

// Op is a predicate operator.
type Op string

const (
	OpEq          Op = "eq"
	OpGt          Op = "gt"
	OpGte         Op = "gte"
	OpLt          Op = "lt"
	OpLte         Op = "lte"
	OpLike        Op = "like"
	OpIn          Op = "in"
	OpNull        Op = "null"
	OpNotNull     Op = "notNull"
	OpContains    Op = "contains"
	OpContainedBy Op = "containedBy"
	OpHasKey      Op = "hasKey"
	OpHasKeys     Op = "hasKeys"
	OpAfter       Op = "after"
	OpBefore      Op = "before"
)

var comparisonSQL = map[Op]string{
	OpEq:   " = ",
	OpGt:   " > ",
	OpGte:  " >= ",
	OpLt:   " < ",
	OpLte:  " <= ",
	OpLike: " LIKE ",
}

// FoldMode overrides the registry's casefold behavior for one predicate.
type FoldMode int

const (
	FoldDefault FoldMode = iota // use the field's casefold mark
	FoldOn
	FoldOff
)

// Pred is one predicate in an AND-joined list.
type Pred interface {
	predNode()
}

// Tuple is the fast equality path: column = value, with the cast resolved
// from the registry.
type Tuple struct {
	Column string
	Value  any
}

// Field is the general predicate: a field, an operator, and a value (or
// value set for OpIn). Cast and Fold override the registry when set.
type Field struct {
	Field  string
	Op     Op
	Value  any
	Values []any
	Cast   string
	Fold   FoldMode
}

// Raw is the escape hatch: trusted SQL text with '?' placeholders for its
// bound args. The text must be a compile-time constant in the caller.
type Raw struct {
	SQL  string
	Args []any
}

func (Tuple) predNode() {}
func (Field) predNode() {}
func (Raw) predNode()   {}

var (
	_ Pred = Tuple{}
	_ Pred = Field{}
	_ Pred = Raw{}
)

// Where appends the AND-joined compilation of preds to b. An empty list
// compiles to TRUE, so composed SQL can always say WHERE <fragment>.
func Where(reg *fieldreg.Registry, b *sqlfrag.Builder, preds []Pred) error {
	if len(preds) == 0 {
		b.Write("TRUE")
		return nil
	}
	for i, p := range preds {
		if i > 0 {
			b.Write(" AND ")
		}
		if err := compilePred(reg, b, p); err != nil {
			return err
		}
	}
	return nil
}

func compilePred(reg *fieldreg.Registry, b *sqlfrag.Builder, p Pred) error {
	switch p := p.(type) {
	case Tuple:
		d, ok := reg.Resolve(p.Column)
		if !ok {
			return fmt.Errorf("unknown column %q", p.Column)
		}
		cast, _ := reg.PredicateMeta(p.Column)
		b.WriteIdent(d.Ident())
		b.Write(" = ")
		return bindValue(b, p.Value, cast)

	case Raw:
		b.Write("(")
		if err := b.WriteRaw(p.SQL, p.Args...); err != nil {
			return err
		}
		b.Write(")")
		return nil

	case Field:
		return compileField(reg, b, p)

	default:
		return fmt.Errorf("unknown predicate type %T", p)
	}
}

func compileField(reg *fieldreg.Registry, b *sqlfrag.Builder, p Field) error {
	d, ok := reg.Resolve(p.Field)
	if !ok {
		return fmt.Errorf("unknown field %q", p.Field)
	}
	col := d.Ident()

	cast, fold := reg.PredicateMeta(p.Field)
	if p.Cast != "" {
		if err := sqlfrag.ValidCast(p.Cast); err != nil {
			return fmt.Errorf("field %q: %w", p.Field, err)
		}
		cast = p.Cast
	}
	switch p.Fold {
	case FoldOn:
		fold = true
	case FoldOff:
		fold = false
	}

	switch p.Op {
	case OpEq, OpGt, OpGte, OpLt, OpLte, OpLike:
		if fold && (p.Op == OpEq || p.Op == OpLike) {
			b.Write("lower(")
			b.WriteIdent(col)
			b.Write(")")
			b.Write(comparisonSQL[p.Op])
			b.Write("lower(")
			if err := bindValue(b, p.Value, cast); err != nil {
				return err
			}
			b.Write(")")
			return nil
		}
		b.WriteIdent(col)
		b.Write(comparisonSQL[p.Op])
		return bindValue(b, p.Value, cast)

	case OpIn:
		// IN () is invalid SQL and must match nothing.
		if len(p.Values) == 0 {
			b.Write("FALSE")
			return nil
		}
		b.WriteIdent(col)
		b.Write(" IN (")
		for i, v := range p.Values {
			if i > 0 {
				b.Write(", ")
			}
			if err := bindValue(b, v, cast); err != nil {
				return err
			}
		}
		b.Write(")")
		return nil

	case OpNull:
		b.WriteIdent(col)
		b.Write(" IS NULL")
		return nil

	case OpNotNull:
		b.WriteIdent(col)
		b.Write(" IS NOT NULL")
		return nil

	case OpContains:
		b.WriteIdent(col)
		b.Write(" @> ")
		return bindJSON(b, p.Value)

	case OpContainedBy:
		b.WriteIdent(col)
		b.Write(" <@ ")
		return bindJSON(b, p.Value)

	case OpHasKey:
		b.WriteIdent(col)
		b.Write(" ? ")
		b.Bind(p.Value)
		return nil

	case OpHasKeys:
		keys, err := stringKeys(p)
		if err != nil {
			return err
		}
		// Every row trivially has all of zero keys.
		if len(keys) == 0 {
			b.Write("TRUE")
			return nil
		}
		b.WriteIdent(col)
		b.Write(" ?& ")
		b.BindCast(keys, "text[]")
		return nil

	case OpAfter, OpBefore:
		// The pk embeds its creation time, so temporal predicates compare
		// against the extracted timestamp instead of a stored column.
		cmp := " > "
		if p.Op == OpBefore {
			cmp = " < "
		}
		b.Write(TimestampFn)
		b.Write("(")
		b.WriteIdent(col)
		b.Write(")")
		b.Write(cmp)
		return bindValue(b, p.Value, "timestamptz")

	default:
		return fmt.Errorf("unknown predicate op %q", p.Op)
	}
}

// bindValue binds v with the cast suffix. jsonb-cast values that are not
// already serialized get JSON-encoded first.
func bindValue(b *sqlfrag.Builder, v any, cast string) error {
	if cast == "jsonb" {
		return bindJSON(b, v)
	}
	b.BindCast(v, cast)
	return nil
}

func bindJSON(b *sqlfrag.Builder, v any) error {
	switch v := v.(type) {
	case string:
		b.BindCast(v, "jsonb")
	case []byte:
		b.BindCast(string(v), "jsonb")
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode jsonb value: %w", err)
		}
		b.BindCast(string(data), "jsonb")
	}
	return nil
}

func stringKeys(p Field) ([]string, error) {
	if p.Values == nil {
		return nil, nil
	}
	keys := make([]string, 0, len(p.Values))
	for _, v := range p.Values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("hasKeys on %q: key %v is not a string", p.Field, v)
		}
		keys = append(keys, s)
	}
	return keys, nil
}
