package validation

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxLength caps any field without a specific limit.
const DefaultMaxLength = 200

// fieldLimits overrides DefaultMaxLength for short fields.
var fieldLimits = map[string]int{
	"phone":        32,
	"postal_code":  16,
	"commute_mode": 60,
	"submitted_at": 64,
}

// Fields holds the applicant-supplied text fields of a submission. The json
// tags double as the wire names used in error messages.
type Fields struct {
	Name         string `json:"name" validate:"required,max=180"`
	NationalID   string `json:"national_id" validate:"required,nationalid"`
	Phone        string `json:"phone" validate:"required"`
	Email        string `json:"email" validate:"required,max=180,emailshape"`
	PostalCode   string `json:"postal_code" validate:"required"`
	City         string `json:"city" validate:"required,max=120"`
	Neighborhood string `json:"neighborhood" validate:"required,max=120"`
	Street       string `json:"street" validate:"required,max=180"`
	CommuteMode  string `json:"commute_mode" validate:"required"`
	TargetRole   string `json:"target_role" validate:"required,max=180"`
	SubmittedAt  string `json:"submitted_at,omitempty"`
}

// Sanitize trims every field and truncates it to its rune limit.
func Sanitize(f Fields) Fields {
	return Fields{
		Name:         clean("name", f.Name),
		NationalID:   clean("national_id", f.NationalID),
		Phone:        clean("phone", f.Phone),
		Email:        clean("email", f.Email),
		PostalCode:   clean("postal_code", f.PostalCode),
		City:         clean("city", f.City),
		Neighborhood: clean("neighborhood", f.Neighborhood),
		Street:       clean("street", f.Street),
		CommuteMode:  clean("commute_mode", f.CommuteMode),
		TargetRole:   clean("target_role", f.TargetRole),
		SubmittedAt:  clean("submitted_at", f.SubmittedAt),
	}
}

// Limit returns the truncation length for a field.
func Limit(field string) int {
	if n, ok := fieldLimits[field]; ok {
		return n
	}
	return DefaultMaxLength
}

func clean(field, value string) string {
	return Truncate(strings.TrimSpace(value), Limit(field))
}

// Truncate shortens s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}
