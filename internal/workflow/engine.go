// Package workflow moves applications through review statuses. Every
// transition appends an immutable history entry and updates the current
// status projection in the same store transaction.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/hiring-intake/internal/db"
	"github.com/jonathan/hiring-intake/internal/metrics"
	"github.com/jonathan/hiring-intake/internal/types"
)

// MaxNoteLength is the longest note a transition may carry, in characters.
const MaxNoteLength = 1000

// Store is the record store surface the engine needs.
type Store interface {
	GetApplication(ctx context.Context, id uuid.UUID) (*db.Application, error)
	RecordStatusChange(ctx context.Context, entry *db.StatusHistoryEntry) error
	ListStatusHistory(ctx context.Context, applicationID uuid.UUID) ([]db.StatusHistoryEntry, error)
}

// Engine applies status transitions. Any status may follow any other.
type Engine struct {
	store        Store
	storeTimeout time.Duration
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// NewEngine creates an Engine.
func NewEngine(store Store, storeTimeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, storeTimeout: storeTimeout, logger: logger, metrics: m}
}

// Transition sets the status of application appID to rawStatus on behalf of
// actor and returns the recorded history entry.
func (e *Engine) Transition(ctx context.Context, appID uuid.UUID, rawStatus string, actor uuid.UUID, note string) (*db.StatusHistoryEntry, error) {
	status, ok := types.ParseStatus(rawStatus)
	if !ok {
		return nil, &types.ValidationError{
			Message: fmt.Sprintf("unknown status %q", strings.TrimSpace(rawStatus)),
			Fields:  []string{"status"},
		}
	}

	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > MaxNoteLength {
		return nil, &types.ValidationError{
			Message: fmt.Sprintf("note must be at most %d characters", MaxNoteLength),
			Fields:  []string{"note"},
		}
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	app, err := e.store.GetApplication(ctx, appID)
	if err != nil {
		e.logger.Error("failed to load application", zap.String("application_id", appID.String()), zap.Error(err))
		return nil, &types.StoreError{Op: "load application", Cause: err}
	}
	if app == nil {
		return nil, &types.NotFoundError{Resource: "application", ID: appID.String()}
	}

	entry := &db.StatusHistoryEntry{
		ApplicationID: appID,
		ActorID:       actor,
		Status:        status,
	}
	if note != "" {
		entry.Note = &note
	}

	if err := e.store.RecordStatusChange(ctx, entry); err != nil {
		// The application can vanish between the check and the write when a purge runs.
		if errors.Is(err, db.ErrNotFound) {
			return nil, &types.NotFoundError{Resource: "application", ID: appID.String()}
		}
		e.logger.Error("failed to record status change",
			zap.String("application_id", appID.String()), zap.String("status", status.String()), zap.Error(err))
		return nil, &types.StoreError{Op: "record status change", Cause: err}
	}

	e.metrics.IncStatusTransition(status.String())
	e.logger.Info("status changed",
		zap.String("application_id", appID.String()),
		zap.String("from", app.CurrentStatus.String()),
		zap.String("to", status.String()),
		zap.String("actor_id", actor.String()))
	return entry, nil
}

// History lists the status changes of application appID, oldest first.
func (e *Engine) History(ctx context.Context, appID uuid.UUID) ([]db.StatusHistoryEntry, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	app, err := e.store.GetApplication(ctx, appID)
	if err != nil {
		return nil, &types.StoreError{Op: "load application", Cause: err}
	}
	if app == nil {
		return nil, &types.NotFoundError{Resource: "application", ID: appID.String()}
	}

	entries, err := e.store.ListStatusHistory(ctx, appID)
	if err != nil {
		return nil, &types.StoreError{Op: "list status history", Cause: err}
	}
	return entries, nil
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.storeTimeout)
}
