package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/hiring-intake/internal/db"
	"github.com/jonathan/hiring-intake/internal/db/memory"
	"github.com/jonathan/hiring-intake/internal/metrics"
	"github.com/jonathan/hiring-intake/internal/types"
)

func seedApplication(t *testing.T, store *memory.Store) uuid.UUID {
	t.Helper()
	app := &db.Application{
		Name:           "Ana Souza",
		NationalID:     "52998224725",
		TargetRole:     "Driver",
		SubmittedAt:    time.Now().UTC(),
		AttachmentPath: "driver/" + uuid.NewString() + ".pdf",
	}
	require.NoError(t, store.InsertApplication(context.Background(), app))
	return app.ID
}

// brokenStore fails every read.
type brokenStore struct{ *memory.Store }

func (brokenStore) GetApplication(context.Context, uuid.UUID) (*db.Application, error) {
	return nil, errors.New("pool closed")
}

// vanishingStore reports the application as gone at write time.
type vanishingStore struct{ *memory.Store }

func (vanishingStore) RecordStatusChange(context.Context, *db.StatusHistoryEntry) error {
	return errors.Join(errors.New("failed to record status change"), db.ErrNotFound)
}

func TestTransition_RecordsOneEntryPerTransition(t *testing.T) {
	store := memory.New()
	id := seedApplication(t, store)
	actor := uuid.New()
	m := metrics.New(prometheus.NewRegistry())
	engine := NewEngine(store, time.Second, nil, m)

	sequence := []types.Status{types.StatusInterviewPassed, types.StatusSelected, types.StatusNew, types.StatusHired}
	for i, status := range sequence {
		entry, err := engine.Transition(context.Background(), id, string(status), actor, "")
		require.NoError(t, err)
		assert.Equal(t, status, entry.Status)

		history, err := engine.History(context.Background(), id)
		require.NoError(t, err)
		assert.Len(t, history, i+1)
	}

	app, err := store.GetApplication(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusHired, app.CurrentStatus)
	require.NotNil(t, app.StatusChangedBy)
	assert.Equal(t, actor, *app.StatusChangedBy)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatusTransitions.WithLabelValues("Hired")))
}

func TestTransition_CaseInsensitiveStatus(t *testing.T) {
	store := memory.New()
	id := seedApplication(t, store)

	entry, err := NewEngine(store, 0, nil, nil).Transition(context.Background(), id, " interviewpassed ", uuid.New(), "")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInterviewPassed, entry.Status)
}

func TestTransition_InvalidStatusWritesNothing(t *testing.T) {
	store := memory.New()
	id := seedApplication(t, store)
	engine := NewEngine(store, 0, nil, nil)

	for _, raw := range []string{"", "Promoted", "Hired!"} {
		_, err := engine.Transition(context.Background(), id, raw, uuid.New(), "")

		var verr *types.ValidationError
		require.True(t, errors.As(err, &verr), raw)
		assert.Equal(t, []string{"status"}, verr.Fields)
	}

	history, err := engine.History(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, history)

	app, _ := store.GetApplication(context.Background(), id)
	assert.Equal(t, types.StatusNew, app.CurrentStatus)
	assert.Nil(t, app.StatusChangedAt)
}

func TestTransition_UnknownApplication(t *testing.T) {
	engine := NewEngine(memory.New(), 0, nil, nil)

	_, err := engine.Transition(context.Background(), uuid.New(), "Hired", uuid.New(), "")

	var nf *types.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "application", nf.Resource)
}

func TestTransition_ApplicationPurgedMidway(t *testing.T) {
	store := memory.New()
	id := seedApplication(t, store)

	_, err := NewEngine(vanishingStore{store}, 0, nil, nil).Transition(context.Background(), id, "Hired", uuid.New(), "")

	var nf *types.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestTransition_Note(t *testing.T) {
	store := memory.New()
	id := seedApplication(t, store)
	engine := NewEngine(store, 0, nil, nil)

	entry, err := engine.Transition(context.Background(), id, "Selected", uuid.New(), "  strong interview  ")
	require.NoError(t, err)
	require.NotNil(t, entry.Note)
	assert.Equal(t, "strong interview", *entry.Note)

	entry, err = engine.Transition(context.Background(), id, "Hired", uuid.New(), "   ")
	require.NoError(t, err)
	assert.Nil(t, entry.Note)

	entry, err = engine.Transition(context.Background(), id, "Hired", uuid.New(), strings.Repeat("é", MaxNoteLength))
	require.NoError(t, err)
	assert.NotNil(t, entry.Note)

	_, err = engine.Transition(context.Background(), id, "Hired", uuid.New(), strings.Repeat("a", MaxNoteLength+1))
	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"note"}, verr.Fields)

	history, _ := engine.History(context.Background(), id)
	assert.Len(t, history, 3)
}

func TestTransition_StoreFailure(t *testing.T) {
	store := memory.New()
	id := seedApplication(t, store)

	_, err := NewEngine(brokenStore{store}, 0, nil, nil).Transition(context.Background(), id, "Hired", uuid.New(), "")

	var storeErr *types.StoreError
	require.True(t, errors.As(err, &storeErr))
}

func TestHistory_OldestFirst(t *testing.T) {
	store := memory.New()
	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})
	id := seedApplication(t, store)
	engine := NewEngine(store, 0, nil, nil)

	_, err := engine.Transition(context.Background(), id, "NotReached", uuid.New(), "")
	require.NoError(t, err)
	_, err = engine.Transition(context.Background(), id, "Withdrawn", uuid.New(), "")
	require.NoError(t, err)

	history, err := engine.History(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, types.StatusNotReached, history[0].Status)
	assert.True(t, history[0].CreatedAt.Before(history[1].CreatedAt))
}

func TestHistory_UnknownApplication(t *testing.T) {
	_, err := NewEngine(memory.New(), 0, nil, nil).History(context.Background(), uuid.New())

	var nf *types.NotFoundError
	assert.True(t, errors.As(err, &nf))
}
