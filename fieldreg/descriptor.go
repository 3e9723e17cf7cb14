// Package fieldreg holds the static field registry: one descriptor per
// logical column, annotated with the role and behavior tags the rest of the
// engine consults instead of hard-coding per-entity rules. The registry is
// built once at startup and frozen; every lookup after that is O(1).
package fieldreg

import (
	"github.com/shipq/tenantdb/dbstrings"
	"github.com/shipq/tenantdb/sqlfrag"
)

// Mark tags a field with its structural role in a table.
type Mark string

const (
	MarkPK         Mark = "pk"         // primary key
	MarkSoftDelete Mark = "softDelete" // tombstone timestamp, NULL = live
	MarkExpiry     Mark = "expiry"     // row expires after this timestamp
	MarkCasefold   Mark = "casefold"   // compared case-insensitively
)

// Gen tags how a field's value comes to exist.
type Gen string

const (
	GenServer  Gen = "server"  // generated by the database server
	GenStored  Gen = "stored"  // supplied by the application and stored
	GenVirtual Gen = "virtual" // computed, never stored
)

// Wrap tags a storage or behavioral transform applied to a field. A field
// may carry several wraps.
type Wrap string

const (
	WrapSensitive     Wrap = "sensitive"     // encrypted at rest, redacted in logs
	WrapOptional      Wrap = "optional"      // may be omitted on writes
	WrapAutoTimestamp Wrap = "autoTimestamp" // set to NOW() on every write
	WrapJSONString    Wrap = "jsonString"    // JSON-encoded before storage
)

// Capability is a tag that can be asked about via Registry.Has and
// Registry.Pick: a Mark, a Gen, or a Wrap.
type Capability interface {
	capabilityNode()
}

func (Mark) capabilityNode() {}
func (Gen) capabilityNode()  {}
func (Wrap) capabilityNode() {}

var (
	_ Capability = MarkPK
	_ Capability = GenServer
	_ Capability = WrapOptional
)

// Descriptor describes one logical column. Field and Column are each unique
// across the whole registry, which is what makes bidirectional lookup work.
type Descriptor struct {
	// Field is the lowerCamelCase logical name, e.g. "appId".
	Field string

	// Column is the snake_case column name. Empty means "derive from Field".
	Column string

	// SQLType is the Postgres type, e.g. "uuid", "text", "jsonb".
	SQLType string

	// Nullable reports whether the column accepts NULL globally. A table
	// may still require the field (see Table.Required).
	Nullable bool

	Mark  Mark
	Gen   Gen
	Wraps []Wrap

	// RefTable names the referenced table for foreign-key fields.
	RefTable string
}

// HasWrap reports whether the descriptor carries the given wrap.
func (d Descriptor) HasWrap(w Wrap) bool {
	for _, have := range d.Wraps {
		if have == w {
			return true
		}
	}
	return false
}

// ColumnName returns the explicit column name, or the one derived from the
// field name.
func (d Descriptor) ColumnName() string {
	if d.Column != "" {
		return d.Column
	}
	return dbstrings.ToSnakeCase(d.Field)
}

// Ident returns the column as a trusted, quoted identifier.
func (d Descriptor) Ident() sqlfrag.Ident {
	return sqlfrag.MustIdent(d.ColumnName())
}

// castBySQLType lists the types whose bound literals are ambiguous to
// Postgres without an explicit cast.
var castBySQLType = map[string]string{
	"uuid":        "uuid",
	"inet":        "inet",
	"cidr":        "cidr",
	"jsonb":       "jsonb",
	"timestamptz": "timestamptz",
}

// Cast returns the cast suffix ("uuid", "jsonb", ...) to apply when
// comparing a bound value against this column, or "" when none is needed.
func (d Descriptor) Cast() string {
	return castBySQLType[d.SQLType]
}
