package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/hiring-intake/internal/types"
)

// -----------------------------------------------------------------------------
// Status History Methods
// -----------------------------------------------------------------------------

// RecordStatusChange appends a history entry and moves the application's
// current status in one transaction. The history row is written first, so the
// projection is never visible without its entry. Returns ErrNotFound when the
// application does not exist.
func (db *DB) RecordStatusChange(ctx context.Context, entry *StatusHistoryEntry) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM applications WHERE id = $1 FOR UPDATE`,
		entry.ApplicationID,
	).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to record status change: %w", ErrNotFound)
		}
		return fmt.Errorf("failed to lock application: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO application_status_history (application_id, actor_id, status, note)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		entry.ApplicationID, entry.ActorID, string(entry.Status), entry.Note,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert status history: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE applications
		 SET current_status = $1, status_changed_by = $2, status_changed_at = $3
		 WHERE id = $4`,
		string(entry.Status), entry.ActorID, entry.CreatedAt, entry.ApplicationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update application status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit status change: %w", err)
	}
	return nil
}

// ListStatusHistory retrieves an application's status changes oldest first
func (db *DB) ListStatusHistory(ctx context.Context, applicationID uuid.UUID) ([]StatusHistoryEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, application_id, actor_id, status, note, created_at
		 FROM application_status_history
		 WHERE application_id = $1
		 ORDER BY created_at ASC, id ASC`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}
	defer rows.Close()

	entries := []StatusHistoryEntry{}
	for rows.Next() {
		var e StatusHistoryEntry
		var status string
		if err := rows.Scan(&e.ID, &e.ApplicationID, &e.ActorID, &status, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status history: %w", err)
		}
		e.Status = types.Status(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status history: %w", err)
	}
	return entries, nil
}
