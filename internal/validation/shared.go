package validation

import (
	"fmt"
	"slices"
	"strings"
)

// Error collects field-level validation failures of one request.
type Error struct {
	Fields map[string]string
}

// Error lists the failures ordered by field name, so the CLI and API print
// the same message for the same input.
func (e *Error) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	slices.Sort(fields)

	msgs := make([]string, 0, len(fields))
	for _, field := range fields {
		msgs = append(msgs, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(msgs, "; ")
}
