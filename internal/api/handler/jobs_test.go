package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/otahub/otahub/internal/api/handler"
	"github.com/otahub/otahub/internal/artifact"
	"github.com/otahub/otahub/internal/ota"
	"github.com/otahub/otahub/internal/store"
	"github.com/otahub/otahub/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJobService is a canned-response JobService.
type fakeJobService struct {
	createJob   models.Job
	createErr   error
	getJob      models.Job
	getOK       bool
	listJobs    []models.Job
	dispatchJob models.Job
	dispatchErr error

	lastDeviceID string
	lastArtifact string
	lastVersion  string
	lastDispatch uuid.UUID
}

func (s *fakeJobService) Create(deviceID, artifactName, version string) (models.Job, error) {
	s.lastDeviceID, s.lastArtifact, s.lastVersion = deviceID, artifactName, version
	return s.createJob, s.createErr
}

func (s *fakeJobService) Get(uuid.UUID) (models.Job, bool) { return s.getJob, s.getOK }
func (s *fakeJobService) List() []models.Job               { return s.listJobs }
func (s *fakeJobService) Dispatch(_ context.Context, id uuid.UUID) (models.Job, error) {
	s.lastDispatch = id
	return s.dispatchJob, s.dispatchErr
}

func sampleJob() models.Job {
	return models.Job{
		ID:        uuid.New(),
		DeviceID:  "device-1",
		Artifact:  "fw.bin",
		Version:   "v2",
		Status:    models.JobStatusCreated,
		CreatedAt: time.Now().UTC(),
	}
}

// routeWithParam mounts h at a chi route so URL params resolve in tests.
func routeWithParam(method, pattern string, h http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Method(method, pattern, h)
	return r
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

// --- create ---

func TestCreateJob(t *testing.T) {
	svc := &fakeJobService{createJob: sampleJob()}
	h := handler.NewCreateJobHandler(svc)

	req := httptest.NewRequest("POST", "/ota/jobs",
		strings.NewReader(`{"device_id":"device-1","artifact":"fw.bin","version":"v2"}`))
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "device-1", svc.lastDeviceID)
	assert.Equal(t, "fw.bin", svc.lastArtifact)
	assert.Equal(t, "v2", svc.lastVersion)

	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, svc.createJob.ID, job.ID)
	assert.Equal(t, models.JobStatusCreated, job.Status)
}

func TestCreateJob_BadJSON(t *testing.T) {
	h := handler.NewCreateJobHandler(&fakeJobService{})

	req := httptest.NewRequest("POST", "/ota/jobs", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
}

func TestCreateJob_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing device_id", `{"artifact":"fw.bin","version":"v2"}`},
		{"blank device_id", `{"device_id":"   ","artifact":"fw.bin","version":"v2"}`},
		{"missing artifact", `{"device_id":"device-1","version":"v2"}`},
		{"missing version", `{"device_id":"device-1","artifact":"fw.bin"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewCreateJobHandler(&fakeJobService{})
			req := httptest.NewRequest("POST", "/ota/jobs", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
		})
	}
}

func TestCreateJob_UnknownArtifact(t *testing.T) {
	svc := &fakeJobService{createErr: artifact.ErrNotFound}
	h := handler.NewCreateJobHandler(svc)

	req := httptest.NewRequest("POST", "/ota/jobs",
		strings.NewReader(`{"device_id":"device-1","artifact":"missing.bin","version":"v2"}`))
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ARTIFACT_NOT_FOUND", errorCode(t, rec))
}

func TestCreateJob_TraversalArtifact(t *testing.T) {
	svc := &fakeJobService{createErr: artifact.ErrInvalidName}
	h := handler.NewCreateJobHandler(svc)

	req := httptest.NewRequest("POST", "/ota/jobs",
		strings.NewReader(`{"device_id":"device-1","artifact":"../../etc/passwd","version":"v2"}`))
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARTIFACT", errorCode(t, rec))
}

// --- list / get ---

func TestListJobs(t *testing.T) {
	svc := &fakeJobService{listJobs: []models.Job{sampleJob(), sampleJob()}}
	h := handler.NewListJobsHandler(svc)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/ota/jobs", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var jobs []models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	assert.Len(t, jobs, 2)
}

func TestListJobs_EmptyIsArray(t *testing.T) {
	svc := &fakeJobService{listJobs: []models.Job{}}
	h := handler.NewListJobsHandler(svc)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/ota/jobs", nil))

	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestGetJob(t *testing.T) {
	job := sampleJob()
	svc := &fakeJobService{getJob: job, getOK: true}
	router := routeWithParam("GET", "/ota/jobs/{id}", handler.NewGetJobHandler(svc))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/ota/jobs/"+job.ID.String(), nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, job.ID, got.ID)
}

func TestGetJob_NotFound(t *testing.T) {
	svc := &fakeJobService{}
	router := routeWithParam("GET", "/ota/jobs/{id}", handler.NewGetJobHandler(svc))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/ota/jobs/"+uuid.NewString(), nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
}

func TestGetJob_BadID(t *testing.T) {
	svc := &fakeJobService{getOK: true}
	router := routeWithParam("GET", "/ota/jobs/{id}", handler.NewGetJobHandler(svc))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/ota/jobs/not-a-uuid", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- dispatch ---

func TestDispatchJob(t *testing.T) {
	job := sampleJob()
	job.Status = models.JobStatusDispatched
	svc := &fakeJobService{dispatchJob: job}
	router := routeWithParam("POST", "/ota/jobs/{id}/dispatch", handler.NewDispatchJobHandler(svc))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/ota/jobs/"+job.ID.String()+"/dispatch", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, job.ID, svc.lastDispatch)

	var got models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.JobStatusDispatched, got.Status)
}

func TestDispatchJob_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"job missing", store.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"terminal job", ota.ErrAlreadyTerminal, http.StatusConflict, "ALREADY_TERMINAL"},
		{"broker down", ota.ErrPublishFailed, http.StatusBadGateway, "PUBLISH_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeJobService{dispatchErr: tt.err}
			router := routeWithParam("POST", "/ota/jobs/{id}/dispatch", handler.NewDispatchJobHandler(svc))

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("POST", "/ota/jobs/"+uuid.NewString()+"/dispatch", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}
