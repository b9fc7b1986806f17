package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/hiring-intake/internal/admission"
	"github.com/jonathan/hiring-intake/internal/blob"
	"github.com/jonathan/hiring-intake/internal/config"
	"github.com/jonathan/hiring-intake/internal/db"
	"github.com/jonathan/hiring-intake/internal/db/memory"
	"github.com/jonathan/hiring-intake/internal/metrics"
	"github.com/jonathan/hiring-intake/internal/retention"
	"github.com/jonathan/hiring-intake/internal/server/ratelimit"
	"github.com/jonathan/hiring-intake/internal/submission"
	"github.com/jonathan/hiring-intake/internal/types"
	"github.com/jonathan/hiring-intake/internal/workflow"
)

const (
	testPurgeSecret = "purge-secret-for-tests"
	testRetention   = 90 * 24 * time.Hour
	testMaxUpload   = 4096
)

type testEnv struct {
	handler http.Handler
	records *memory.Store
	blobs   *blob.MemoryStore
	jwt     *JWTService
	actor   uuid.UUID
	token   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	records := memory.New()
	blobs := blob.NewMemoryStore("attachments")
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	limiter := ratelimit.NewLimiter(&ratelimit.Config{
		Enabled:         true,
		CleanupInterval: time.Minute,
		EndpointConfigs: ratelimit.DefaultEndpointConfigs(30, time.Minute),
	}, nil, nil)
	t.Cleanup(limiter.Stop)

	pipeline := admission.New(limiter.For(http.MethodPost, ratelimit.SubmissionEndpoint), records, admission.Options{
		Retention:           testRetention,
		MaxUploadBytes:      testMaxUpload,
		AllowedContentTypes: []string{"application/pdf", "image/png"},
		StoreTimeout:        time.Second,
	}, nil, m)

	secret, err := config.NewPurgeSecret("", testPurgeSecret, 4)
	require.NoError(t, err)

	jwtService := NewJWTService(&config.JWTConfig{Secret: testJWTSecret, ExpirationHours: 1})
	actor := uuid.New()
	token, err := jwtService.GenerateToken(actor)
	require.NoError(t, err)

	s := New(Config{MaxUploadBytes: testMaxUpload, StoreTimeout: time.Second}, Deps{
		Store:       records,
		Admission:   pipeline,
		Coordinator: submission.NewCoordinator(blobs, records, submission.Options{}, nil, m),
		Workflow:    workflow.NewEngine(records, time.Second, nil, m),
		Purge:       retention.NewJob(records, blobs, testRetention, nil, m),
		PurgeSecret: secret,
		JWT:         jwtService,
		Registry:    registry,
	})

	return &testEnv{handler: s.Handler(), records: records, blobs: blobs, jwt: jwtService, actor: actor, token: token}
}

func applicantFields() map[string]string {
	return map[string]string{
		"name":         "Ana Souza",
		"national_id":  "529.982.247-25",
		"phone":        "11912345678",
		"email":        "ana@example.com",
		"postal_code":  "01310-100",
		"city":         "Sao Paulo",
		"neighborhood": "Bela Vista",
		"street":       "Av. Paulista, 1000",
		"commute_mode": "bus",
		"target_role":  "Warehouse Operator",
	}
}

type upload struct {
	filename    string
	contentType string
	data        []byte
}

func pdfUpload() *upload {
	return &upload{filename: "cv.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4 curriculum")}
}

func multipartRequest(t *testing.T, fields map[string]string, file *upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, AttachmentField, file.filename))
		if file.contentType != "" {
			header.Set("Content-Type", file.contentType)
		}
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/applications", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.RemoteAddr = "192.0.2.10:50000"
	return req
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) admin(method, path string, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodOptions, "/applications", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestSubmit_Created(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(multipartRequest(t, applicantFields(), pdfUpload()))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[types.SubmissionResponse](t, w)
	assert.NotEqual(t, uuid.Nil, resp.ID)
	require.NotNil(t, resp.AttachmentURL)
	assert.True(t, strings.HasPrefix(*resp.AttachmentURL, "memory://attachments/warehouse-operator/52998224725-ana-souza-"))
	assert.Equal(t, "30", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "29", w.Header().Get("X-RateLimit-Remaining"))

	app, err := env.records.GetApplication(context.Background(), resp.ID)
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.Equal(t, "Ana Souza", app.Name)
	assert.Equal(t, types.StatusNew, app.CurrentStatus)
	assert.True(t, env.blobs.Exists(app.AttachmentPath))
}

func TestSubmit_SubmittedAtDate(t *testing.T) {
	env := newTestEnv(t)
	fields := applicantFields()
	fields["submitted_at"] = time.Now().UTC().AddDate(0, 0, -3).Format(time.DateOnly)

	w := env.do(multipartRequest(t, fields, pdfUpload()))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[types.SubmissionResponse](t, w)
	assert.Equal(t, fields["submitted_at"], resp.SubmittedAt.Format(time.DateOnly))
}

func TestSubmit_SniffsGenericContentType(t *testing.T) {
	env := newTestEnv(t)
	file := pdfUpload()
	file.contentType = "application/octet-stream"

	w := env.do(multipartRequest(t, applicantFields(), file))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	app, _ := env.records.GetApplication(context.Background(), decode[types.SubmissionResponse](t, w).ID)
	assert.Equal(t, "application/pdf", app.AttachmentContentType)
	assert.True(t, strings.HasSuffix(app.AttachmentPath, ".pdf"))
}

func TestSubmit_ValidationFailure(t *testing.T) {
	env := newTestEnv(t)
	fields := applicantFields()
	delete(fields, "email")
	delete(fields, "street")
	fields["national_id"] = "111.111.111-11"

	w := env.do(multipartRequest(t, fields, pdfUpload()))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[types.ValidationResponse](t, w)
	assert.Equal(t, string(types.KindValidation), resp.Error)
	assert.ElementsMatch(t, []string{"email", "street", "national_id"}, resp.Fields)
	assert.Equal(t, 0, env.records.Len())
	assert.Equal(t, 0, env.blobs.Len())
}

func TestSubmit_AttachmentRejections(t *testing.T) {
	tests := []struct {
		name string
		file *upload
		want int
	}{
		{"missing", nil, http.StatusBadRequest},
		{"empty", &upload{filename: "cv.pdf", contentType: "application/pdf"}, http.StatusBadRequest},
		{"disallowed type", &upload{filename: "cv.zip", contentType: "application/zip", data: []byte("PK\x03\x04")}, http.StatusBadRequest},
		{"over limit", &upload{filename: "cv.pdf", contentType: "application/pdf", data: bytes.Repeat([]byte("a"), testMaxUpload+1)}, http.StatusRequestEntityTooLarge},
		{"over body limit", &upload{filename: "cv.pdf", contentType: "application/pdf", data: bytes.Repeat([]byte("a"), testMaxUpload+multipartOverhead+1)}, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.do(multipartRequest(t, applicantFields(), tt.file))

			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Equal(t, 0, env.records.Len())
			assert.Equal(t, 0, env.blobs.Len())
		})
	}
}

func TestSubmit_NotMultipart(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(`{"name":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	w := env.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmit_Throttled(t *testing.T) {
	env := newTestEnv(t)

	send := func(client string) *httptest.ResponseRecorder {
		req := multipartRequest(t, map[string]string{}, nil)
		req.Header.Set("X-Forwarded-For", client)
		return env.do(req)
	}

	for i := 0; i < 30; i++ {
		w := send("198.51.100.7")
		require.Equal(t, http.StatusBadRequest, w.Code, "request %d should reach validation", i+1)
	}

	w := send("198.51.100.7")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "30", w.Header().Get("X-RateLimit-Limit"))

	w = send("198.51.100.8")
	assert.Equal(t, http.StatusBadRequest, w.Code, "other clients are unaffected")
}

func TestAdmin_RequiresToken(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/admin/applications", "/admin/vacancies"} {
		w := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/applications", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)
}

func TestAdmin_NoJWTConfigured(t *testing.T) {
	s := New(Config{}, Deps{Store: memory.New()})

	req := httptest.NewRequest(http.MethodGet, "/admin/applications", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_ApplicationsAndStatus(t *testing.T) {
	env := newTestEnv(t)
	created := env.do(multipartRequest(t, applicantFields(), pdfUpload()))
	require.Equal(t, http.StatusCreated, created.Code)
	id := decode[types.SubmissionResponse](t, created).ID

	w := env.do(env.admin(http.MethodGet, "/admin/applications?status=new&limit=10", ""))
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Applications []db.Application `json:"applications"`
		Count        int              `json:"count"`
	}](t, w)
	assert.Equal(t, 1, list.Count)

	w = env.do(env.admin(http.MethodGet, "/admin/applications?status=promoted", ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(env.admin(http.MethodGet, "/admin/applications/"+id.String(), ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ana Souza", decode[db.Application](t, w).Name)

	w = env.do(env.admin(http.MethodGet, "/admin/applications/"+uuid.NewString(), ""))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(env.admin(http.MethodGet, "/admin/applications/not-a-uuid", ""))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	statusPath := "/admin/applications/" + id.String() + "/status"
	w = env.do(env.admin(http.MethodPost, statusPath, `{"status":"Promoted"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"status"}, decode[types.ValidationResponse](t, w).Fields)

	w = env.do(env.admin(http.MethodPost, statusPath, `{"note":"no status"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(env.admin(http.MethodPost, statusPath, `not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(env.admin(http.MethodPost, "/admin/applications/"+uuid.NewString()+"/status", `{"status":"Hired"}`))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(env.admin(http.MethodPost, statusPath, `{"status":"Selected","note":"good fit"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	entry := decode[db.StatusHistoryEntry](t, w)
	assert.Equal(t, types.StatusSelected, entry.Status)
	assert.Equal(t, env.actor, entry.ActorID)

	w = env.do(env.admin(http.MethodGet, "/admin/applications/"+id.String()+"/history", ""))
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[struct {
		History []db.StatusHistoryEntry `json:"history"`
	}](t, w)
	require.Len(t, history.History, 1, "rejected transitions leave no history")
	require.NotNil(t, history.History[0].Note)
	assert.Equal(t, "good fit", *history.History[0].Note)
}

func TestVacancies(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(env.admin(http.MethodPost, "/admin/vacancies", `{"name":"Driver"}`))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	driver := decode[db.Vacancy](t, w)
	assert.True(t, driver.Active)

	w = env.do(env.admin(http.MethodPost, "/admin/vacancies", `{"name":"Picker","active":false}`))
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(env.admin(http.MethodPost, "/admin/vacancies", `{"name":" driver "}`))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(env.admin(http.MethodPost, "/admin/vacancies", `{"name":"   "}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	type listing struct {
		Vacancies []db.Vacancy `json:"vacancies"`
	}
	w = env.do(httptest.NewRequest(http.MethodGet, "/vacancies", nil))
	require.Equal(t, http.StatusOK, w.Code)
	public := decode[listing](t, w)
	require.Len(t, public.Vacancies, 1)
	assert.Equal(t, "Driver", public.Vacancies[0].Name)

	w = env.do(env.admin(http.MethodGet, "/admin/vacancies", ""))
	assert.Len(t, decode[listing](t, w).Vacancies, 2)

	w = env.do(env.admin(http.MethodPatch, "/admin/vacancies/"+driver.ID.String(), `{"active":false}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[db.Vacancy](t, w).Active)

	w = env.do(httptest.NewRequest(http.MethodGet, "/vacancies", nil))
	assert.Empty(t, decode[listing](t, w).Vacancies)

	w = env.do(env.admin(http.MethodPatch, "/admin/vacancies/"+uuid.NewString(), `{"active":true}`))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(env.admin(http.MethodPatch, "/admin/vacancies/"+driver.ID.String(), `{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPurge_Secret(t *testing.T) {
	env := newTestEnv(t)

	for _, secret := range []string{"", "wrong"} {
		req := httptest.NewRequest(http.MethodPost, "/admin/purge", nil)
		if secret != "" {
			req.Header.Set(PurgeSecretHeader, secret)
		}
		assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)
	}

	s := New(Config{}, Deps{Store: memory.New()})
	req := httptest.NewRequest(http.MethodPost, "/admin/purge", nil)
	req.Header.Set(PurgeSecretHeader, testPurgeSecret)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "purge is disabled without a configured secret")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(multipartRequest(t, applicantFields(), pdfUpload())).Code)

	w := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `intake_submissions_total{outcome="accepted"} 1`)
}

// TestEndToEnd walks one applicant through submission, a duplicate attempt,
// review, and retention.
func TestEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	purge := func() types.PurgeResponse {
		req := httptest.NewRequest(http.MethodPost, "/admin/purge", nil)
		req.Header.Set(PurgeSecretHeader, testPurgeSecret)
		w := env.do(req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decode[types.PurgeResponse](t, w)
	}

	// Submit.
	w := env.do(multipartRequest(t, applicantFields(), pdfUpload()))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[types.SubmissionResponse](t, w).ID
	app, err := env.records.GetApplication(context.Background(), id)
	require.NoError(t, err)
	key := app.AttachmentPath

	// Same applicant and role, differently formatted: refused with dates.
	fields := applicantFields()
	fields["national_id"] = "52998224725"
	fields["target_role"] = "  warehouse OPERATOR "
	w = env.do(multipartRequest(t, fields, pdfUpload()))
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	dup := decode[types.DuplicateResponse](t, w)
	assert.Equal(t, "duplicate", dup.Reason)
	assert.Contains(t, dup.Message, `"Warehouse Operator"`, "the message names the role as first recorded")
	require.NotNil(t, dup.SubmittedAt)
	require.NotNil(t, dup.ReapplyAfter)
	assert.Equal(t, dup.SubmittedAt.Add(testRetention), *dup.ReapplyAfter)
	assert.Equal(t, 1, env.blobs.Len())

	// Review.
	w = env.do(env.admin(http.MethodPost, "/admin/applications/"+id.String()+"/status", `{"status":"InterviewPassed"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Nothing is old enough yet.
	res := purge()
	assert.Equal(t, 0, res.Removed)
	assert.Equal(t, 1, env.records.Len())

	// Age the application past the retention window.
	require.True(t, env.records.Backdate(id, time.Now().Add(-testRetention-24*time.Hour)))
	res = purge()
	assert.Equal(t, 1, res.Removed)

	got, err := env.records.GetApplication(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, env.blobs.Exists(key))
	history, _ := env.records.ListStatusHistory(context.Background(), id)
	assert.Empty(t, history)

	// A purge with nothing left is a no-op.
	assert.Equal(t, 0, purge().Removed)

	// The applicant may apply again.
	w = env.do(multipartRequest(t, applicantFields(), pdfUpload()))
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

// flakyDeletes fails every DeleteApplications call after the first failAfter.
type flakyDeletes struct {
	*memory.Store
	failAfter int
	calls     int
}

func (f *flakyDeletes) DeleteApplications(ctx context.Context, ids []uuid.UUID) (int64, error) {
	f.calls++
	if f.calls > f.failAfter {
		return 0, errors.New("connection reset")
	}
	return f.Store.DeleteApplications(ctx, ids)
}

func TestPurge_PartialFailureReportsRemoved(t *testing.T) {
	records := memory.New()
	old := time.Now().Add(-testRetention - 24*time.Hour)
	for i := 0; i < 250; i++ {
		require.NoError(t, records.InsertApplication(context.Background(), &db.Application{
			Name:           "Applicant",
			NationalID:     fmt.Sprintf("%011d", i),
			TargetRole:     "Driver",
			SubmittedAt:    old,
			AttachmentPath: fmt.Sprintf("driver/%d.pdf", i),
		}))
	}

	secret, err := config.NewPurgeSecret("", testPurgeSecret, 4)
	require.NoError(t, err)
	store := &flakyDeletes{Store: records, failAfter: 1}
	s := New(Config{}, Deps{
		Store:       records,
		Purge:       retention.NewJob(store, blob.NewMemoryStore("attachments"), testRetention, nil, nil),
		PurgeSecret: secret,
	})

	req := httptest.NewRequest(http.MethodPost, "/admin/purge", nil)
	req.Header.Set(PurgeSecretHeader, testPurgeSecret)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode[types.PurgeFailureResponse](t, w)
	assert.Equal(t, string(types.KindStoreFailure), resp.Error)
	assert.Equal(t, 200, resp.Removed)
	assert.False(t, resp.Cutoff.IsZero())
	assert.NotContains(t, w.Body.String(), "connection reset")
	assert.Equal(t, 50, records.Len())
}
