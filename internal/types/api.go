package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// SubmissionResponse is returned after an application has been committed.
type SubmissionResponse struct {
	ID            uuid.UUID `json:"id"`
	SubmittedAt   time.Time `json:"submitted_at"`
	AttachmentURL *string   `json:"attachment_url,omitempty"`
}

// DuplicateResponse is returned when an applicant re-submits for the same role
// inside the retention window. Dates are omitted when they are not known.
type DuplicateResponse struct {
	Reason       string     `json:"reason"`
	Message      string     `json:"message"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	ReapplyAfter *time.Time `json:"reapply_after,omitempty"`
}

// ValidationResponse is returned for rejected input.
type ValidationResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// StatusTransitionRequest is the body of a status change.
type StatusTransitionRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

// PurgeResponse reports a manual retention sweep.
type PurgeResponse struct {
	Removed int       `json:"removed"`
	Cutoff  time.Time `json:"cutoff"`
}

// PurgeFailureResponse reports a sweep that stopped on an error. Removed
// counts the records deleted before it stopped.
type PurgeFailureResponse struct {
	Error   string    `json:"error"`
	Message string    `json:"message"`
	Removed int       `json:"removed"`
	Cutoff  time.Time `json:"cutoff"`
}

// CreateVacancyRequest creates a vacancy shown to applicants.
type CreateVacancyRequest struct {
	Name   string `json:"name" validate:"required,min=1,max=180"`
	Active *bool  `json:"active,omitempty"`
}

// UpdateVacancyRequest toggles whether a vacancy is listed.
type UpdateVacancyRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// Validate validates the CreateVacancyRequest using the validator.
func (r *CreateVacancyRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the UpdateVacancyRequest using the validator.
func (r *UpdateVacancyRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
