// Package memory provides an in-process implementation of the record store
// with the same uniqueness and cascade rules as the PostgreSQL schema.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/hiring-intake/internal/db"
	"github.com/jonathan/hiring-intake/internal/types"
)

type uniqueKey struct {
	nationalID string
	role       string
}

// Store keeps applications, history and vacancies in maps under one mutex.
// The Fail* fields inject errors into the matching operation.
type Store struct {
	mu           sync.Mutex
	applications map[uuid.UUID]*db.Application
	byKey        map[uniqueKey]uuid.UUID
	history      map[uuid.UUID][]db.StatusHistoryEntry
	vacancies    map[uuid.UUID]*db.Vacancy
	now          func() time.Time

	FailInsert error
	FailFind   error
	FailDelete error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		applications: make(map[uuid.UUID]*db.Application),
		byKey:        make(map[uniqueKey]uuid.UUID),
		history:      make(map[uuid.UUID][]db.StatusHistoryEntry),
		vacancies:    make(map[uuid.UUID]*db.Vacancy),
		now:          time.Now,
	}
}

// SetClock replaces the time source used for generated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// InsertApplication mirrors db.DB.InsertApplication.
func (s *Store) InsertApplication(_ context.Context, app *db.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailInsert != nil {
		return fmt.Errorf("failed to insert application: %w", s.FailInsert)
	}

	if app.NationalIDNormalized == "" {
		app.NationalIDNormalized = db.NormalizeNationalID(app.NationalID)
	}
	if app.RoleNormalized == "" {
		app.RoleNormalized = db.NormalizeRole(app.TargetRole)
	}

	key := uniqueKey{nationalID: app.NationalIDNormalized, role: app.RoleNormalized}
	if _, exists := s.byKey[key]; exists {
		return fmt.Errorf("failed to insert application: %w", db.ErrDuplicateApplication)
	}
	for _, existing := range s.applications {
		if existing.AttachmentPath == app.AttachmentPath {
			return fmt.Errorf("failed to insert application: duplicate attachment path %q", app.AttachmentPath)
		}
	}

	app.ID = uuid.New()
	app.CurrentStatus = types.StatusNew
	app.StatusChangedBy = nil
	app.StatusChangedAt = nil
	app.CreatedAt = s.now().UTC()

	stored := *app
	s.applications[app.ID] = &stored
	s.byKey[key] = app.ID
	return nil
}

// FindRecentApplication mirrors db.DB.FindRecentApplication.
func (s *Store) FindRecentApplication(_ context.Context, nationalID, role string, since time.Time) (*db.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailFind != nil {
		return nil, fmt.Errorf("failed to find recent application: %w", s.FailFind)
	}

	var latest *db.Application
	for _, a := range s.applications {
		if a.NationalIDNormalized != nationalID || a.RoleNormalized != role || a.SubmittedAt.Before(since) {
			continue
		}
		if latest == nil || a.SubmittedAt.After(latest.SubmittedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

// GetApplication mirrors db.DB.GetApplication.
func (s *Store) GetApplication(_ context.Context, id uuid.UUID) (*db.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.applications[id]
	if !ok {
		return nil, nil
	}
	out := *a
	return &out, nil
}

// ListApplications mirrors db.DB.ListApplications.
func (s *Store) ListApplications(_ context.Context, filters db.ApplicationFilters) ([]db.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	role := db.NormalizeRole(filters.Role)
	apps := []db.Application{}
	for _, a := range s.applications {
		if filters.Status != "" && a.CurrentStatus != filters.Status {
			continue
		}
		if role != "" && a.RoleNormalized != role {
			continue
		}
		apps = append(apps, *a)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].SubmittedAt.After(apps[j].SubmittedAt) })

	offset := max(filters.Offset, 0)
	if offset >= len(apps) {
		return []db.Application{}, nil
	}
	apps = apps[offset:]
	if limit := filters.NormalizedLimit(); len(apps) > limit {
		apps = apps[:limit]
	}
	return apps, nil
}

// RecordStatusChange mirrors db.DB.RecordStatusChange.
func (s *Store) RecordStatusChange(_ context.Context, entry *db.StatusHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.applications[entry.ApplicationID]
	if !ok {
		return fmt.Errorf("failed to record status change: %w", db.ErrNotFound)
	}

	entry.ID = uuid.New()
	entry.CreatedAt = s.now().UTC()
	s.history[a.ID] = append(s.history[a.ID], *entry)

	actor := entry.ActorID
	changedAt := entry.CreatedAt
	a.CurrentStatus = entry.Status
	a.StatusChangedBy = &actor
	a.StatusChangedAt = &changedAt
	return nil
}

// ListStatusHistory mirrors db.DB.ListStatusHistory.
func (s *Store) ListStatusHistory(_ context.Context, applicationID uuid.UUID) ([]db.StatusHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]db.StatusHistoryEntry, len(s.history[applicationID]))
	copy(entries, s.history[applicationID])
	return entries, nil
}

// ListExpiredApplications mirrors db.DB.ListExpiredApplications.
func (s *Store) ListExpiredApplications(_ context.Context, cutoff time.Time, limit int) ([]db.ExpiredApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := s.expiredLocked(cutoff)
	if limit >= 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

// CountExpiredApplications mirrors db.DB.CountExpiredApplications.
func (s *Store) CountExpiredApplications(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.expiredLocked(cutoff))), nil
}

func (s *Store) expiredLocked(cutoff time.Time) []db.ExpiredApplication {
	var expired []db.ExpiredApplication
	for _, a := range s.applications {
		if a.SubmittedAt.Before(cutoff) {
			expired = append(expired, db.ExpiredApplication{
				ID:             a.ID,
				AttachmentPath: a.AttachmentPath,
				SubmittedAt:    a.SubmittedAt,
			})
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].SubmittedAt.Before(expired[j].SubmittedAt) })
	return expired
}

// DeleteApplications mirrors db.DB.DeleteApplications, cascading history.
func (s *Store) DeleteApplications(_ context.Context, ids []uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailDelete != nil {
		return 0, fmt.Errorf("failed to delete applications: %w", s.FailDelete)
	}

	var deleted int64
	for _, id := range ids {
		a, ok := s.applications[id]
		if !ok {
			continue
		}
		delete(s.byKey, uniqueKey{nationalID: a.NationalIDNormalized, role: a.RoleNormalized})
		delete(s.applications, id)
		delete(s.history, id)
		deleted++
	}
	return deleted, nil
}

// ListVacancies mirrors db.DB.ListVacancies.
func (s *Store) ListVacancies(_ context.Context, activeOnly bool) ([]db.Vacancy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vacancies := []db.Vacancy{}
	for _, v := range s.vacancies {
		if activeOnly && !v.Active {
			continue
		}
		vacancies = append(vacancies, *v)
	}
	sort.Slice(vacancies, func(i, j int) bool { return vacancies[i].Name < vacancies[j].Name })
	return vacancies, nil
}

// CreateVacancy mirrors db.DB.CreateVacancy.
func (s *Store) CreateVacancy(_ context.Context, name string, active bool) (*db.Vacancy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := db.NormalizeRole(name)
	for _, v := range s.vacancies {
		if db.NormalizeRole(v.Name) == normalized {
			return nil, fmt.Errorf("failed to create vacancy: %w", db.ErrDuplicateVacancy)
		}
	}

	now := s.now().UTC()
	v := &db.Vacancy{ID: uuid.New(), Name: name, Active: active, CreatedAt: now, UpdatedAt: now}
	s.vacancies[v.ID] = v
	out := *v
	return &out, nil
}

// SetVacancyActive mirrors db.DB.SetVacancyActive.
func (s *Store) SetVacancyActive(_ context.Context, id uuid.UUID, active bool) (*db.Vacancy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vacancies[id]
	if !ok {
		return nil, nil
	}
	v.Active = active
	v.UpdatedAt = s.now().UTC()
	out := *v
	return &out, nil
}

// Backdate moves an application's submission time, as if it had been
// submitted earlier. It reports whether the application exists.
func (s *Store) Backdate(id uuid.UUID, submittedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.applications[id]
	if ok {
		a.SubmittedAt = submittedAt
	}
	return ok
}

// Len returns the number of stored applications.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.applications)
}
