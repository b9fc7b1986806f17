package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/hiring-intake/internal/types"
)

// Application represents one job application
type Application struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	NationalID   string    `json:"national_id"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	PostalCode   string    `json:"postal_code"`
	City         string    `json:"city"`
	Neighborhood string    `json:"neighborhood"`
	Street       string    `json:"street"`
	CommuteMode  string    `json:"commute_mode"`
	TargetRole   string    `json:"target_role"`

	NationalIDNormalized string `json:"national_id_normalized"`
	RoleNormalized       string `json:"role_normalized"`

	SubmittedAt time.Time `json:"submitted_at"`

	AttachmentPath        string  `json:"attachment_path"`
	AttachmentURL         *string `json:"attachment_url,omitempty"`
	AttachmentContentType string  `json:"attachment_content_type"`
	AttachmentSize        int64   `json:"attachment_size"`

	CurrentStatus   types.Status `json:"current_status"`
	StatusChangedBy *uuid.UUID   `json:"status_changed_by,omitempty"`
	StatusChangedAt *time.Time   `json:"status_changed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// StatusHistoryEntry is one immutable status change of an application
type StatusHistoryEntry struct {
	ID            uuid.UUID    `json:"id"`
	ApplicationID uuid.UUID    `json:"application_id"`
	ActorID       uuid.UUID    `json:"actor_id"`
	Status        types.Status `json:"status"`
	Note          *string      `json:"note,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Vacancy is a role applicants may apply for
type Vacancy struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExpiredApplication identifies a record due for purge and its blob key
type ExpiredApplication struct {
	ID             uuid.UUID
	AttachmentPath string
	SubmittedAt    time.Time
}

// ApplicationFilters holds optional filters for listing applications
type ApplicationFilters struct {
	Status types.Status
	Role   string
	Limit  int
	Offset int
}

// DefaultListLimit caps list queries without an explicit limit
const DefaultListLimit = 50

// MaxListLimit is the largest page a list query returns
const MaxListLimit = 500

// NormalizedLimit clamps Limit into [1, MaxListLimit].
func (f ApplicationFilters) NormalizedLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}
