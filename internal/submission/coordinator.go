// Package submission commits admitted applications across the blob store
// and the record store. The attachment is uploaded first; when the record
// insert then fails the blob is deleted again, so a record never points at a
// missing attachment. A failed compensating delete leaves an orphan blob,
// which is tolerated.
package submission

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/hiring-intake/internal/admission"
	"github.com/jonathan/hiring-intake/internal/blob"
	"github.com/jonathan/hiring-intake/internal/db"
	"github.com/jonathan/hiring-intake/internal/metrics"
	"github.com/jonathan/hiring-intake/internal/types"
)

// DefaultSignedURLTTL is how long attachment links stay valid.
const DefaultSignedURLTTL = 30 * 24 * time.Hour

const compensateTimeout = 30 * time.Second

// RecordInserter stores a new application and fills its generated fields.
type RecordInserter interface {
	InsertApplication(ctx context.Context, app *db.Application) error
}

// Coordinator performs the two-store write of a submission.
type Coordinator struct {
	blobs        blob.Store
	records      RecordInserter
	signedURLTTL time.Duration
	storeTimeout time.Duration
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// Options configures a Coordinator.
type Options struct {
	SignedURLTTL time.Duration
	StoreTimeout time.Duration
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(blobs blob.Store, records RecordInserter, opts Options, logger *zap.Logger, m *metrics.Metrics) *Coordinator {
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = DefaultSignedURLTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		blobs:        blobs,
		records:      records,
		signedURLTTL: opts.SignedURLTTL,
		storeTimeout: opts.StoreTimeout,
		logger:       logger,
		metrics:      m,
	}
}

// Commit uploads the attachment, inserts the record and returns it.
func (c *Coordinator) Commit(ctx context.Context, a *admission.Admitted) (*db.Application, error) {
	key := blob.BuildKey(blob.KeyParts{
		Role:        a.RoleNormalized,
		NationalID:  a.NationalIDNormalized,
		Name:        a.Fields.Name,
		At:          a.SubmittedAt,
		ContentType: a.Attachment.ContentType,
	})
	log := c.logger.With(zap.String("key", key))

	putCtx, cancel := c.withTimeout(ctx)
	err := c.blobs.Put(putCtx, key, a.Attachment.Data, a.Attachment.ContentType)
	cancel()
	if err != nil {
		log.Error("attachment upload failed", zap.Error(err))
		c.metrics.IncSubmission(metrics.OutcomeStoreError)
		return nil, &types.StoreError{Op: "attachment upload", Cause: err}
	}

	app := &db.Application{
		Name:                  a.Fields.Name,
		NationalID:            a.Fields.NationalID,
		Phone:                 a.Fields.Phone,
		Email:                 a.Fields.Email,
		PostalCode:            a.Fields.PostalCode,
		City:                  a.Fields.City,
		Neighborhood:          a.Fields.Neighborhood,
		Street:                a.Fields.Street,
		CommuteMode:           a.Fields.CommuteMode,
		TargetRole:            a.Fields.TargetRole,
		NationalIDNormalized:  a.NationalIDNormalized,
		RoleNormalized:        a.RoleNormalized,
		SubmittedAt:           a.SubmittedAt,
		AttachmentPath:        key,
		AttachmentContentType: a.Attachment.ContentType,
		AttachmentSize:        int64(len(a.Attachment.Data)),
	}
	app.AttachmentURL = c.sign(ctx, key, log)

	insertCtx, cancel := c.withTimeout(ctx)
	err = c.records.InsertApplication(insertCtx, app)
	cancel()
	if err != nil {
		c.compensate(ctx, key, log)
		if errors.Is(err, db.ErrDuplicateApplication) {
			log.Info("insert lost duplicate race", zap.String("role", a.RoleNormalized))
			c.metrics.IncSubmission(metrics.OutcomeDuplicate)
			return nil, &types.DuplicateError{Role: a.Fields.TargetRole}
		}
		log.Error("application insert failed", zap.Error(err))
		c.metrics.IncSubmission(metrics.OutcomeStoreError)
		return nil, &types.StoreError{Op: "application insert", Cause: err}
	}

	c.metrics.IncSubmission(metrics.OutcomeAccepted)
	log.Info("application committed", zap.String("id", app.ID.String()))
	return app, nil
}

// sign returns a signed attachment URL, or nil when signing fails.
func (c *Coordinator) sign(ctx context.Context, key string, log *zap.Logger) *string {
	signCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	url, err := c.blobs.Sign(signCtx, key, c.signedURLTTL)
	if err != nil {
		log.Warn("attachment signing failed", zap.Error(err))
		c.metrics.IncSignFailure()
		return nil
	}
	return &url
}

// compensate removes an uploaded blob after a failed insert. It runs even
// when the request context is already cancelled.
func (c *Coordinator) compensate(ctx context.Context, key string, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	if err := c.blobs.RemoveMany(ctx, []string{key}); err != nil {
		log.Error("compensating delete failed, attachment orphaned", zap.Error(err))
		c.metrics.IncCompensatingDelete(false)
		return
	}
	c.metrics.IncCompensatingDelete(true)
}

func (c *Coordinator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.storeTimeout)
}
