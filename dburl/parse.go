// Package dburl validates and inspects PostgreSQL connection URLs.
package dburl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrInvalidURL     = errors.New("invalid database URL")
	ErrUnknownDialect = errors.New("unsupported database dialect")
)

// Validate checks that dbURL is a well-formed postgres:// URL.
func Validate(dbURL string) error {
	u, err := url.Parse(dbURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return nil
	case "":
		return fmt.Errorf("%w: missing scheme", ErrInvalidURL)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownDialect, u.Scheme)
	}
}

// Redact returns dbURL with any password replaced, safe for logs.
func Redact(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "(invalid database URL)"
	}
	if u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	return u.String()
}

// IsLocalhost reports whether the URL points at a local database.
func IsLocalhost(dbURL string) bool {
	u, err := url.Parse(dbURL)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// Database returns the database name component of the URL.
func Database(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}
