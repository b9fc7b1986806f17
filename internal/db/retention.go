package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Retention Methods
// -----------------------------------------------------------------------------

// ListExpiredApplications returns up to limit applications submitted before
// cutoff, oldest first
func (db *DB) ListExpiredApplications(ctx context.Context, cutoff time.Time, limit int) ([]ExpiredApplication, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, attachment_path, submitted_at
		 FROM applications
		 WHERE submitted_at < $1
		 ORDER BY submitted_at ASC
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired applications: %w", err)
	}
	defer rows.Close()

	var expired []ExpiredApplication
	for rows.Next() {
		var e ExpiredApplication
		if err := rows.Scan(&e.ID, &e.AttachmentPath, &e.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan expired application: %w", err)
		}
		expired = append(expired, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expired applications: %w", err)
	}
	return expired, nil
}

// CountExpiredApplications counts applications submitted before cutoff
func (db *DB) CountExpiredApplications(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM applications WHERE submitted_at < $1`,
		cutoff,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count expired applications: %w", err)
	}
	return count, nil
}

// DeleteApplications removes applications by id; their history cascades.
// Ids that no longer exist are ignored.
func (db *DB) DeleteApplications(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := db.pool.Exec(ctx, `DELETE FROM applications WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete applications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// TryAdvisoryLock takes a session-level advisory lock on a dedicated
// connection. When ok is true the caller must call release.
func (db *DB) TryAdvisoryLock(ctx context.Context, key int64) (release func(), ok bool, err error) {
	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire connection: %w", err)
	}

	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("failed to try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}

	release = func() {
		// Unlock on a fresh context so a cancelled caller still frees the lock.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1)`, key); err != nil {
			// Drop the connection so the session and its lock end with it.
			_ = conn.Conn().Close(unlockCtx)
		}
		conn.Release()
	}
	return release, true, nil
}
