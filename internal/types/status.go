// Package types provides type definitions shared by the intake services and the HTTP layer.
package types

import "strings"

// Status is the review state of an application.
type Status string

// Review statuses. Any status may move to any other status.
const (
	StatusNew                Status = "New"
	StatusNotReached         Status = "NotReached"
	StatusWithdrawn          Status = "Withdrawn"
	StatusPreviouslyEmployed Status = "PreviouslyEmployed"
	StatusInterviewPassed    Status = "InterviewPassed"
	StatusCurrentlyEmployed  Status = "CurrentlyEmployed"
	StatusSelected           Status = "Selected"
	StatusHired              Status = "Hired"
)

var allStatuses = []Status{
	StatusNew,
	StatusNotReached,
	StatusWithdrawn,
	StatusPreviouslyEmployed,
	StatusInterviewPassed,
	StatusCurrentlyEmployed,
	StatusSelected,
	StatusHired,
}

// Statuses returns every known status in display order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus resolves raw to a known status. Matching ignores surrounding
// whitespace and letter case, so "interviewpassed" resolves to InterviewPassed.
func ParseStatus(raw string) (Status, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	for _, known := range allStatuses {
		if strings.EqualFold(trimmed, string(known)) {
			return known, true
		}
	}
	return "", false
}
