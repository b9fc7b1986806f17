package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/hiring-intake/internal/types"
	"github.com/jonathan/hiring-intake/internal/validation"
)

// -----------------------------------------------------------------------------
// Application Methods
// -----------------------------------------------------------------------------

const applicationColumns = `id, name, national_id, phone, email, postal_code, city, neighborhood, street,
	commute_mode, target_role, national_id_normalized, role_normalized, submitted_at,
	attachment_path, attachment_url, attachment_content_type, attachment_size,
	current_status, status_changed_by, status_changed_at, created_at`

// NormalizeNationalID keeps only the digits of a national id, at most eleven
func NormalizeNationalID(raw string) string {
	digits := validation.DigitsOnly(raw)
	if len(digits) > 11 {
		digits = digits[:11]
	}
	return digits
}

// NormalizeRole lower-cases and trims a target role for duplicate detection
func NormalizeRole(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func scanApplication(row pgx.Row) (*Application, error) {
	var a Application
	var status string
	err := row.Scan(
		&a.ID, &a.Name, &a.NationalID, &a.Phone, &a.Email, &a.PostalCode, &a.City, &a.Neighborhood, &a.Street,
		&a.CommuteMode, &a.TargetRole, &a.NationalIDNormalized, &a.RoleNormalized, &a.SubmittedAt,
		&a.AttachmentPath, &a.AttachmentURL, &a.AttachmentContentType, &a.AttachmentSize,
		&status, &a.StatusChangedBy, &a.StatusChangedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.CurrentStatus = types.Status(status)
	return &a, nil
}

// InsertApplication stores a new application and fills in its generated fields.
// A violation of the (national id, role) unique index returns ErrDuplicateApplication.
func (db *DB) InsertApplication(ctx context.Context, app *Application) error {
	if app.NationalIDNormalized == "" {
		app.NationalIDNormalized = NormalizeNationalID(app.NationalID)
	}
	if app.RoleNormalized == "" {
		app.RoleNormalized = NormalizeRole(app.TargetRole)
	}

	var status string
	err := db.pool.QueryRow(ctx,
		`INSERT INTO applications (name, national_id, phone, email, postal_code, city, neighborhood, street,
			commute_mode, target_role, national_id_normalized, role_normalized, submitted_at,
			attachment_path, attachment_url, attachment_content_type, attachment_size)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 RETURNING id, current_status, created_at`,
		app.Name, app.NationalID, app.Phone, app.Email, app.PostalCode, app.City, app.Neighborhood, app.Street,
		app.CommuteMode, app.TargetRole, app.NationalIDNormalized, app.RoleNormalized, app.SubmittedAt,
		app.AttachmentPath, app.AttachmentURL, app.AttachmentContentType, app.AttachmentSize,
	).Scan(&app.ID, &status, &app.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, applicationKeyConstraint) {
			return fmt.Errorf("failed to insert application: %w", ErrDuplicateApplication)
		}
		return fmt.Errorf("failed to insert application: %w", err)
	}
	app.CurrentStatus = types.Status(status)
	return nil
}

// FindRecentApplication returns the latest application for the normalized id
// and role submitted at or after since, or nil when there is none
func (db *DB) FindRecentApplication(ctx context.Context, nationalID, role string, since time.Time) (*Application, error) {
	app, err := scanApplication(db.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+`
		 FROM applications
		 WHERE national_id_normalized = $1 AND role_normalized = $2 AND submitted_at >= $3
		 ORDER BY submitted_at DESC
		 LIMIT 1`,
		nationalID, role, since,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find recent application: %w", err)
	}
	return app, nil
}

// GetApplication retrieves an application by its UUID
func (db *DB) GetApplication(ctx context.Context, id uuid.UUID) (*Application, error) {
	app, err := scanApplication(db.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return app, nil
}

// ListApplications retrieves applications newest first, optionally filtered
func (db *DB) ListApplications(ctx context.Context, filters ApplicationFilters) ([]Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Status != "" {
		query += fmt.Sprintf(" AND current_status = $%d", argNum)
		args = append(args, string(filters.Status))
		argNum++
	}
	if role := NormalizeRole(filters.Role); role != "" {
		query += fmt.Sprintf(" AND role_normalized = $%d", argNum)
		args = append(args, role)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY submitted_at DESC LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filters.NormalizedLimit(), max(filters.Offset, 0))

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	apps := []Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}
	return apps, nil
}
