// Package validation checks and sanitises the applicant fields of a submission.
package validation

import (
	"fmt"
	"strings"

	"github.com/jonathan/hiring-intake/internal/types"
)

// FieldError describes one field that is present but malformed.
type FieldError struct {
	Field  string
	Reason string
}

// Error represents a rejected submission. Missing lists every absent required
// field; Invalid lists fields that failed a format or length check.
type Error struct {
	Missing []string
	Invalid []FieldError
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Invalid) > 0 {
		invalid := make([]string, 0, len(e.Invalid))
		for _, fe := range e.Invalid {
			invalid = append(invalid, fmt.Sprintf("%s (%s)", fe.Field, fe.Reason))
		}
		parts = append(parts, fmt.Sprintf("invalid fields: %s", strings.Join(invalid, ", ")))
	}
	if len(parts) == 0 {
		return "validation error"
	}
	return strings.Join(parts, "; ")
}

// Kind implements types.Kinded.
func (e *Error) Kind() types.ErrorKind { return types.KindValidation }

// Fields returns the names of every offending field, missing ones first.
func (e *Error) Fields() []string {
	out := make([]string, 0, len(e.Missing)+len(e.Invalid))
	out = append(out, e.Missing...)
	for _, fe := range e.Invalid {
		out = append(out, fe.Field)
	}
	return out
}
