package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jonathan/hiring-intake/internal/db"
	"github.com/jonathan/hiring-intake/internal/types"
	schemafiles "github.com/jonathan/hiring-intake/schemas"
)

// handleListActiveVacancies lists the vacancies open to applicants.
func (s *Server) handleListActiveVacancies(w http.ResponseWriter, r *http.Request) {
	s.listVacancies(w, r, true)
}

// handleListAllVacancies lists every vacancy, including inactive ones.
func (s *Server) handleListAllVacancies(w http.ResponseWriter, r *http.Request) {
	s.listVacancies(w, r, false)
}

func (s *Server) listVacancies(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	vacancies, err := s.store.ListVacancies(ctx, activeOnly)
	if err != nil {
		s.writeError(w, r, &types.StoreError{Op: "list vacancies", Cause: err})
		return
	}
	if vacancies == nil {
		vacancies = []db.Vacancy{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"vacancies": vacancies})
}

// handleCreateVacancy creates a vacancy, active unless stated otherwise.
func (s *Server) handleCreateVacancy(w http.ResponseWriter, r *http.Request) {
	var req types.CreateVacancyRequest
	if !s.decodeJSON(w, r, schemafiles.Vacancy, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := req.Validate(); err != nil {
		s.writeError(w, r, &types.ValidationError{Message: "vacancy name must be 1 to 180 characters", Fields: []string{"name"}})
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()
	vacancy, err := s.store.CreateVacancy(ctx, req.Name, active)
	if errors.Is(err, db.ErrDuplicateVacancy) {
		s.errorResponse(w, http.StatusConflict, string(types.KindDuplicate), "a vacancy with this name already exists")
		return
	}
	if err != nil {
		s.writeError(w, r, &types.StoreError{Op: "create vacancy", Cause: err})
		return
	}
	s.jsonResponse(w, http.StatusCreated, vacancy)
}

// handleUpdateVacancy toggles whether a vacancy is listed.
func (s *Server) handleUpdateVacancy(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req types.UpdateVacancyRequest
	if !s.decodeJSON(w, r, schemafiles.VacancyUpdate, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, &types.ValidationError{Message: "active is required", Fields: []string{"active"}})
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()
	vacancy, err := s.store.SetVacancyActive(ctx, id, *req.Active)
	if err != nil {
		s.writeError(w, r, &types.StoreError{Op: "update vacancy", Cause: err})
		return
	}
	if vacancy == nil {
		s.writeError(w, r, &types.NotFoundError{Resource: "vacancy", ID: id.String()})
		return
	}
	s.jsonResponse(w, http.StatusOK, vacancy)
}
