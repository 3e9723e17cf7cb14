package repo

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a single-row operation that matched no row.
var ErrNotFound = errors.New("row not found")

// ConfigError reports an operation that requires repository configuration
// that was never supplied, e.g. Purge without a purge function. It is a
// programmer error, never retried.
type ConfigError struct {
	Op      string
	Missing string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: repository not configured with %s", e.Op, e.Missing)
}

// OccError reports an optimistic-concurrency precondition that no longer
// held: the expected timestamp changed under a concurrent write. Expected
// under contention; the caller retries or surfaces a conflict.
type OccError struct {
	Op string
}

func (e *OccError) Error() string {
	return fmt.Sprintf("%s: concurrent update, expected timestamp did not match", e.Op)
}

// UnknownFnError reports a custom function (or resolver) name that is not
// among the configured ones. Distinct from ConfigError so a typo is
// distinguishable from missing wiring.
type UnknownFnError struct {
	Op   string
	Name string
}

func (e *UnknownFnError) Error() string {
	return fmt.Sprintf("%s: %q is not a configured function", e.Op, e.Name)
}
