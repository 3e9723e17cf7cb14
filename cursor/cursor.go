// Package cursor implements the opaque pagination cursor and the page
// envelopes returned by list operations.
//
// A cursor is base64url-encoded JSON carrying the last-seen row id and,
// for rank-ordered listings, the secondary sort value. Decoding is total:
// malformed or tampered input degrades to "no cursor", so pagination is
// always resumable from the first page rather than failing the request.
package cursor

import (
	"encoding/base64"
	"encoding/json"
)

// Cursor is the decoded form of a pagination cursor.
type Cursor struct {
	// ID is the primary key of the last row on the previous page.
	ID string `json:"id"`

	// V carries the secondary sort value for compound keyset ordering.
	// Nil for plain id-ordered listings.
	V any `json:"v,omitempty"`
}

// Encode returns the opaque URL-safe form of c.
func Encode(c Cursor) string {
	data, err := json.Marshal(c)
	if err != nil {
		// Cursor fields are JSON-encodable by construction.
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode parses an opaque cursor. It never fails: any input that is not a
// well-formed cursor yields ok=false, which callers treat as "start from
// the first page".
func Decode(s string) (Cursor, bool) {
	if s == "" {
		return Cursor{}, false
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, false
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, false
	}
	if c.ID == "" {
		return Cursor{}, false
	}
	return c, true
}

// KeysetPage is the envelope for cursor-based pagination.
type KeysetPage[E any] struct {
	Items   []E    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasNext bool   `json:"hasNext"`
	HasPrev bool   `json:"hasPrev"`
	Total   int64  `json:"total"`
}

// OffsetPage is the envelope for page-number pagination.
type OffsetPage[E any] struct {
	Items   []E   `json:"items"`
	Page    int   `json:"page"`
	Pages   int   `json:"pages"`
	Total   int64 `json:"total"`
	HasNext bool  `json:"hasNext"`
	HasPrev bool  `json:"hasPrev"`
}
