package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/otahub/otahub/internal/api/response"
	"github.com/otahub/otahub/internal/artifact"
	"github.com/otahub/otahub/internal/ota"
	"github.com/otahub/otahub/internal/store"
	"github.com/otahub/otahub/pkg/models"
)

// JobService is the interface the job handlers depend on.
type JobService interface {
	Create(deviceID, artifactName, version string) (models.Job, error)
	Get(id uuid.UUID) (models.Job, bool)
	List() []models.Job
	Dispatch(ctx context.Context, id uuid.UUID) (models.Job, error)
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /ota/jobs.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			DeviceID string `json:"device_id"`
			Artifact string `json:"artifact"`
			Version  string `json:"version"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
			return
		}

		if strings.TrimSpace(req.DeviceID) == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "device_id is required")
			return
		}
		if req.Artifact == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "artifact is required")
			return
		}
		if req.Version == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "version is required")
			return
		}

		job, err := svc.Create(req.DeviceID, req.Artifact, req.Version)
		if err != nil {
			switch {
			case errors.Is(err, artifact.ErrInvalidName):
				response.Error(w, http.StatusBadRequest, "INVALID_ARTIFACT", "Artifact name is not valid")
			case errors.Is(err, artifact.ErrNotFound):
				response.Error(w, http.StatusBadRequest, "ARTIFACT_NOT_FOUND", "Artifact does not exist")
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create job")
			}
			return
		}

		response.Created(w, job)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /ota/jobs.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, svc.List())
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /ota/jobs/{id}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
			return
		}

		job, ok := svc.Get(id)
		if !ok {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
			return
		}
		response.JSON(w, job)
	}
}

// NewDispatchJobHandler returns an http.HandlerFunc for POST /ota/jobs/{id}/dispatch.
func NewDispatchJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
			return
		}

		job, err := svc.Dispatch(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
			case errors.Is(err, ota.ErrAlreadyTerminal):
				response.Error(w, http.StatusConflict, "ALREADY_TERMINAL", "Job already finished; cannot dispatch")
			case errors.Is(err, ota.ErrPublishFailed):
				response.Error(w, http.StatusBadGateway, "PUBLISH_FAILED", "Publishing update command failed")
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to dispatch job")
			}
			return
		}

		response.JSON(w, job)
	}
}
