package validation

import (
	"fmt"
	"sort"
	"strings"
)

// Error collects field level validation failures. Err, when set, is the
// sentinel the failure belongs to so callers can use errors.Is.
type Error struct {
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, field := range keys {
		msgs = append(msgs, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(msgs, "; ")
}

func (e *Error) Unwrap() error {
	return e.Err
}
