// Package sqlfrag builds parameterized SQL fragments.
//
// The package draws a hard line between the two kinds of text that end up in
// a statement: identifiers (table and column names, validated and quoted via
// Identifier) and values (always bound as $n parameters, never interpolated).
// Code elsewhere in this module only ever composes statements through a
// Builder, which makes it impossible to splice an untrusted value into SQL
// text by accident.
package sqlfrag

import (
	"fmt"
	"strings"
)

// Ident is a quoted, validated SQL identifier. The zero value is invalid;
// construct one with Identifier or MustIdent.
type Ident struct {
	quoted string
}

// String returns the quoted form, e.g. `"deleted_at"`.
func (id Ident) String() string { return id.quoted }

// IsZero reports whether the identifier was never constructed.
func (id Ident) IsZero() bool { return id.quoted == "" }

// Identifier validates name as a SQL identifier and returns its quoted form.
// Only ASCII letters, digits and underscores are accepted, and the first
// character must not be a digit. Internal quotes are therefore impossible,
// but we quote anyway so reserved words are safe as column names.
func Identifier(name string) (Ident, error) {
	if name == "" {
		return Ident{}, fmt.Errorf("empty identifier")
	}
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return Ident{}, fmt.Errorf("identifier %q starts with a digit", name)
			}
		default:
			return Ident{}, fmt.Errorf("identifier %q contains %q", name, c)
		}
	}
	return Ident{quoted: `"` + name + `"`}, nil
}

// MustIdent is Identifier for names known at compile time.
func MustIdent(name string) Ident {
	id, err := Identifier(name)
	if err != nil {
		panic(err)
	}
	return id
}

// Fragment is a completed piece of SQL with its bound arguments.
// Placeholders are Postgres-style ($1, $2, ...).
type Fragment struct {
	SQL  string
	Args []any
}

// Builder accumulates SQL text and bound arguments with continuous $n
// placeholder numbering. The zero value is ready to use.
type Builder struct {
	sql  strings.Builder
	args []any
}

// Write appends literal SQL text. The text must come from this package or
// from string constants; values go through Bind.
func (b *Builder) Write(sql string) {
	b.sql.WriteString(sql)
}

// WriteIdent appends a quoted identifier.
func (b *Builder) WriteIdent(id Ident) {
	b.sql.WriteString(id.quoted)
}

// Bind appends the next placeholder and records v as its argument.
func (b *Builder) Bind(v any) {
	b.args = append(b.args, v)
	fmt.Fprintf(&b.sql, "$%d", len(b.args))
}

// ValidCast checks that cast is a plain type token, optionally with an
// array suffix, e.g. "uuid", "timestamptz", "text[]". The cast ends up in
// SQL text, so it gets the same character discipline as identifiers.
func ValidCast(cast string) error {
	name := strings.TrimSuffix(cast, "[]")
	if name == "" {
		return fmt.Errorf("empty cast")
	}
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return fmt.Errorf("cast %q starts with a digit", cast)
			}
		default:
			return fmt.Errorf("cast %q contains %q", cast, c)
		}
	}
	return nil
}

// BindCast is Bind followed by a cast suffix when cast is non-empty,
// e.g. "$3::uuid". The cast must satisfy ValidCast; like MustIdent, an
// invalid one panics. Callers forwarding untrusted cast text run ValidCast
// first and return the error.
func (b *Builder) BindCast(v any, cast string) {
	b.Bind(v)
	if cast == "" {
		return
	}
	if err := ValidCast(cast); err != nil {
		panic(err)
	}
	b.sql.WriteString("::")
	b.sql.WriteString(cast)
}

// WriteRaw appends a caller-supplied fragment whose placeholders are written
// as '?'. Each '?' is renumbered into the builder's $n sequence. The number
// of '?' marks must match len(args).
func (b *Builder) WriteRaw(sql string, args ...any) error {
	n := strings.Count(sql, "?")
	if n != len(args) {
		return fmt.Errorf("raw fragment has %d placeholders but %d args", n, len(args))
	}
	i := 0
	for _, c := range sql {
		if c == '?' {
			b.Bind(args[i])
			i++
			continue
		}
		b.sql.WriteRune(c)
	}
	return nil
}

// Len returns the number of SQL bytes written so far.
func (b *Builder) Len() int { return b.sql.Len() }

// Fragment returns the accumulated SQL and arguments.
func (b *Builder) Fragment() Fragment {
	return Fragment{SQL: b.sql.String(), Args: b.args}
}
