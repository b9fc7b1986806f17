package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jonathan/hiring-intake/internal/admission"
	"github.com/jonathan/hiring-intake/internal/db"
	"github.com/jonathan/hiring-intake/internal/schemas"
	"github.com/jonathan/hiring-intake/internal/server/middleware"
	"github.com/jonathan/hiring-intake/internal/types"
	"github.com/jonathan/hiring-intake/internal/validation"
	schemafiles "github.com/jonathan/hiring-intake/schemas"
)

// multipartOverhead is the room left for text fields and part headers on top
// of the attachment limit.
const multipartOverhead = 64 << 10

// AttachmentField is the multipart part carrying the document.
const AttachmentField = "attachment"

// handleSubmitApplication accepts a multipart application with its attachment.
func (s *Server) handleSubmitApplication(w http.ResponseWriter, r *http.Request) {
	if s.maxUploadBytes > 0 {
		limit := s.maxUploadBytes + multipartOverhead
		if r.ContentLength > limit {
			s.writeError(w, r, &types.PayloadTooLargeError{Size: r.ContentLength, Limit: s.maxUploadBytes})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	sub, err := s.readSubmission(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	admitted, err := s.admission.Admit(r.Context(), sub)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.setRateLimitHeaders(w, admitted.RateLimit)

	app, err := s.coordinator.Commit(r.Context(), admitted)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.jsonResponse(w, http.StatusCreated, types.SubmissionResponse{
		ID:            app.ID,
		SubmittedAt:   app.SubmittedAt,
		AttachmentURL: app.AttachmentURL,
	})
}

func (s *Server) readSubmission(r *http.Request) (admission.Submission, error) {
	sub := admission.Submission{ClientID: clientIP(r)}

	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return sub, &types.PayloadTooLargeError{Size: r.ContentLength, Limit: s.maxUploadBytes}
		}
		return sub, &types.ValidationError{Message: "request must be multipart/form-data"}
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	sub.Fields = validation.Fields{
		Name:         r.FormValue("name"),
		NationalID:   r.FormValue("national_id"),
		Phone:        r.FormValue("phone"),
		Email:        r.FormValue("email"),
		PostalCode:   r.FormValue("postal_code"),
		City:         r.FormValue("city"),
		Neighborhood: r.FormValue("neighborhood"),
		Street:       r.FormValue("street"),
		CommuteMode:  r.FormValue("commute_mode"),
		TargetRole:   r.FormValue("target_role"),
		SubmittedAt:  r.FormValue("submitted_at"),
	}

	file, header, err := r.FormFile(AttachmentField)
	if errors.Is(err, http.ErrMissingFile) {
		return sub, nil
	}
	if err != nil {
		return sub, &types.ValidationError{Message: "attachment could not be read", Fields: []string{AttachmentField}}
	}
	defer file.Close()

	attachment, err := readAttachment(file, header)
	if err != nil {
		return sub, err
	}
	sub.Attachment = attachment
	return sub, nil
}

// readAttachment loads a file part. A missing or generic declared type is
// replaced by the sniffed one.
func readAttachment(file multipart.File, header *multipart.FileHeader) (*admission.Attachment, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return nil, &types.ValidationError{Message: "attachment could not be read", Fields: []string{AttachmentField}}
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = http.DetectContentType(buf.Bytes())
	}
	return &admission.Attachment{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        buf.Bytes(),
	}, nil
}

// handleListApplications lists applications, newest first.
func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	filters := db.ApplicationFilters{
		Role:   strings.TrimSpace(r.URL.Query().Get("role")),
		Limit:  parseQueryInt(r, "limit", db.DefaultListLimit, db.MaxListLimit),
		Offset: parseQueryInt(r, "offset", 0, 0),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := types.ParseStatus(raw)
		if !ok {
			s.writeError(w, r, &types.ValidationError{Message: "unknown status " + strconv.Quote(raw), Fields: []string{"status"}})
			return
		}
		filters.Status = status
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()
	apps, err := s.store.ListApplications(ctx, filters)
	if err != nil {
		s.writeError(w, r, &types.StoreError{Op: "list applications", Cause: err})
		return
	}
	if apps == nil {
		apps = []db.Application{}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"applications": apps,
		"count":        len(apps),
		"limit":        filters.NormalizedLimit(),
		"offset":       filters.Offset,
	})
}

// handleGetApplication retrieves an application by ID
func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()
	app, err := s.store.GetApplication(ctx, id)
	if err != nil {
		s.writeError(w, r, &types.StoreError{Op: "get application", Cause: err})
		return
	}
	if app == nil {
		s.writeError(w, r, &types.NotFoundError{Resource: "application", ID: id.String()})
		return
	}

	s.jsonResponse(w, http.StatusOK, app)
}

// handleApplicationHistory lists an application's status changes.
func (s *Server) handleApplicationHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	entries, err := s.workflow.History(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []db.StatusHistoryEntry{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"history": entries})
}

// handleTransitionStatus records a status change by the authenticated actor.
func (s *Server) handleTransitionStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	actorID, err := middleware.GetActorID(r)
	if err != nil {
		s.writeError(w, r, &types.UnauthorizedError{Message: err.Error()})
		return
	}

	var req types.StatusTransitionRequest
	if !s.decodeJSON(w, r, schemafiles.StatusTransition, &req) {
		return
	}

	entry, err := s.workflow.Transition(r.Context(), id, req.Status, actorID, req.Note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, entry)
}

// pathID parses the {id} route parameter, answering 400 when it is not a UUID.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		s.writeError(w, r, &types.ValidationError{Message: "invalid id " + strconv.Quote(raw), Fields: []string{"id"}})
		return uuid.Nil, false
	}
	return id, true
}

// decodeJSON validates the body against the named schema and decodes it into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, schema string, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64<<10))
	if err != nil {
		s.writeError(w, r, &types.ValidationError{Message: "request body could not be read"})
		return false
	}
	if err := schemas.Validate(schema, body); err != nil {
		s.writeError(w, r, err)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		s.writeError(w, r, &types.ValidationError{Message: "invalid request body"})
		return false
	}
	return true
}

// parseQueryInt parses an integer query parameter with default and max values
func parseQueryInt(r *http.Request, key string, defaultValue, maxValue int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val < 0 {
		return defaultValue
	}
	if maxValue > 0 && val > maxValue {
		return maxValue
	}
	return val
}
