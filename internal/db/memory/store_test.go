package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/hiring-intake/internal/db"
	"github.com/jonathan/hiring-intake/internal/types"
)

func newApp(nationalID, role string, submittedAt time.Time) *db.Application {
	return &db.Application{
		Name:                  "Maria Souza",
		NationalID:            nationalID,
		TargetRole:            role,
		SubmittedAt:           submittedAt,
		AttachmentPath:        role + "/" + uuid.NewString() + ".pdf",
		AttachmentContentType: "application/pdf",
	}
}

func TestStore_InsertEnforcesUniqueIDAndRole(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	first := newApp("529.982.247-25", "Cashier", now)
	require.NoError(t, s.InsertApplication(ctx, first))
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.Equal(t, types.StatusNew, first.CurrentStatus)

	err := s.InsertApplication(ctx, newApp("52998224725", " CASHIER ", now))
	assert.True(t, errors.Is(err, db.ErrDuplicateApplication))

	require.NoError(t, s.InsertApplication(ctx, newApp("52998224725", "Butcher", now)))
	assert.Equal(t, 2, s.Len())
}

func TestStore_FindRecentApplication(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	app := newApp("52998224725", "Cashier", now.Add(-10*24*time.Hour))
	require.NoError(t, s.InsertApplication(ctx, app))

	found, err := s.FindRecentApplication(ctx, "52998224725", "cashier", now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, app.ID, found.ID)

	none, err := s.FindRecentApplication(ctx, "52998224725", "cashier", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestStore_StatusChangeAndCascade(t *testing.T) {
	s := New()
	ctx := context.Background()

	app := newApp("52998224725", "Cashier", time.Now().Add(-100*24*time.Hour))
	require.NoError(t, s.InsertApplication(ctx, app))

	actor := uuid.New()
	require.NoError(t, s.RecordStatusChange(ctx, &db.StatusHistoryEntry{
		ApplicationID: app.ID, ActorID: actor, Status: types.StatusInterviewPassed,
	}))

	got, err := s.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInterviewPassed, got.CurrentStatus)
	assert.Equal(t, actor, *got.StatusChangedBy)

	history, err := s.ListStatusHistory(ctx, app.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	err = s.RecordStatusChange(ctx, &db.StatusHistoryEntry{ApplicationID: uuid.New(), ActorID: actor, Status: types.StatusHired})
	assert.True(t, errors.Is(err, db.ErrNotFound))

	expired, err := s.ListExpiredApplications(ctx, time.Now().Add(-90*24*time.Hour), 200)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	deleted, err := s.DeleteApplications(ctx, []uuid.UUID{app.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	history, err = s.ListStatusHistory(ctx, app.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	// The unique slot is free again.
	require.NoError(t, s.InsertApplication(ctx, newApp("52998224725", "Cashier", time.Now())))
}

func TestStore_ExpiredOrderingAndLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now().Add(-200 * 24 * time.Hour)

	ids := []string{"52998224725", "11144477735", "12345678909"}
	for i, id := range ids {
		require.NoError(t, s.InsertApplication(ctx, newApp(id, "Cashier", base.Add(time.Duration(len(ids)-i)*time.Hour))))
	}

	expired, err := s.ListExpiredApplications(ctx, time.Now(), 2)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.True(t, expired[0].SubmittedAt.Before(expired[1].SubmittedAt))

	count, err := s.CountExpiredApplications(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestStore_ListApplicationsFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	a := newApp("52998224725", "Cashier", now.Add(-time.Hour))
	b := newApp("11144477735", "Butcher", now)
	require.NoError(t, s.InsertApplication(ctx, a))
	require.NoError(t, s.InsertApplication(ctx, b))
	require.NoError(t, s.RecordStatusChange(ctx, &db.StatusHistoryEntry{ApplicationID: b.ID, ActorID: uuid.New(), Status: types.StatusHired}))

	all, err := s.ListApplications(ctx, db.ApplicationFilters{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, b.ID, all[0].ID)

	hired, err := s.ListApplications(ctx, db.ApplicationFilters{Status: types.StatusHired})
	require.NoError(t, err)
	require.Len(t, hired, 1)

	cashiers, err := s.ListApplications(ctx, db.ApplicationFilters{Role: "CASHIER"})
	require.NoError(t, err)
	require.Len(t, cashiers, 1)
	assert.Equal(t, a.ID, cashiers[0].ID)

	page, err := s.ListApplications(ctx, db.ApplicationFilters{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestStore_Vacancies(t *testing.T) {
	s := New()
	ctx := context.Background()

	v, err := s.CreateVacancy(ctx, "Cashier", true)
	require.NoError(t, err)
	_, err = s.CreateVacancy(ctx, "cashier ", false)
	assert.True(t, errors.Is(err, db.ErrDuplicateVacancy))

	_, err = s.SetVacancyActive(ctx, v.ID, false)
	require.NoError(t, err)

	active, err := s.ListVacancies(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	missing, err := s.SetVacancyActive(ctx, uuid.New(), true)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_FailureInjection(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("connection refused")

	s.FailInsert = boom
	err := s.InsertApplication(ctx, newApp("52998224725", "Cashier", time.Now()))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len())

	s.FailDelete = boom
	_, err = s.DeleteApplications(ctx, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, boom)
}
