// Package retention removes applications older than the retention window
// from both stores.
package retention

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/hiring-intake/internal/blob"
	"github.com/jonathan/hiring-intake/internal/db"
	"github.com/jonathan/hiring-intake/internal/metrics"
	"github.com/jonathan/hiring-intake/internal/types"
)

// Sweep bounds.
const (
	DefaultBatchSize     = 200
	DefaultMaxIterations = 50
)

// RecordStore is the record store surface the purge needs.
type RecordStore interface {
	ListExpiredApplications(ctx context.Context, cutoff time.Time, limit int) ([]db.ExpiredApplication, error)
	DeleteApplications(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// Result summarises one purge run.
type Result struct {
	Removed int
	Cutoff  time.Time
	Batches int
	// Exhausted is set when the sweep stopped at the iteration bound with
	// expired records possibly left for the next run.
	Exhausted bool
}

// Job sweeps expired applications in bounded batches.
type Job struct {
	records       RecordStore
	blobs         blob.Store
	retention     time.Duration
	batchSize     int
	maxIterations int
	logger        *zap.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

// NewJob creates a Job that treats applications submitted more than
// retention ago as expired.
func NewJob(records RecordStore, blobs blob.Store, retention time.Duration, logger *zap.Logger, m *metrics.Metrics) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		records:       records,
		blobs:         blobs,
		retention:     retention,
		batchSize:     DefaultBatchSize,
		maxIterations: DefaultMaxIterations,
		logger:        logger,
		metrics:       m,
		now:           time.Now,
	}
}

// Cutoff returns the submission time before which applications are expired.
func (j *Job) Cutoff() time.Time {
	return j.now().UTC().Add(-j.retention)
}

// PurgeExpired purges everything older than Cutoff.
func (j *Job) PurgeExpired(ctx context.Context) (Result, error) {
	return j.Purge(ctx, j.Cutoff())
}

// Purge deletes applications submitted before cutoff together with their
// attachments and history. A blob removal failure is logged and the sweep
// continues; a record deletion failure stops it and the partial count is
// returned with the error. Running it again is safe.
func (j *Job) Purge(ctx context.Context, cutoff time.Time) (Result, error) {
	res := Result{Cutoff: cutoff}
	log := j.logger.With(zap.Time("cutoff", cutoff))

	for {
		if res.Batches >= j.maxIterations {
			res.Exhausted = true
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		expired, err := j.records.ListExpiredApplications(ctx, cutoff, j.batchSize)
		if err != nil {
			log.Error("failed to list expired applications", zap.Int("removed", res.Removed), zap.Error(err))
			return res, &types.StoreError{Op: "list expired applications", Cause: err}
		}
		if len(expired) == 0 {
			break
		}
		res.Batches++

		ids := make([]uuid.UUID, 0, len(expired))
		keys := make([]string, 0, len(expired))
		for _, e := range expired {
			ids = append(ids, e.ID)
			if e.AttachmentPath != "" {
				keys = append(keys, e.AttachmentPath)
			}
		}

		if len(keys) > 0 {
			if err := j.blobs.RemoveMany(ctx, keys); err != nil {
				log.Warn("failed to remove expired attachments, continuing",
					zap.Int("batch", res.Batches), zap.Int("keys", len(keys)), zap.Error(err))
			}
		}

		deleted, err := j.records.DeleteApplications(ctx, ids)
		res.Removed += int(deleted)
		j.metrics.AddPurged(int(deleted))
		if err != nil {
			log.Error("failed to delete expired applications", zap.Int("removed", res.Removed), zap.Error(err))
			return res, &types.StoreError{Op: "delete expired applications", Cause: err}
		}

		if len(expired) < j.batchSize {
			break
		}
	}

	log.Info("retention purge finished",
		zap.Int("removed", res.Removed), zap.Int("batches", res.Batches), zap.Bool("exhausted", res.Exhausted))
	return res, nil
}
