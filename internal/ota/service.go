package ota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/otahub/otahub/internal/artifact"
	"github.com/otahub/otahub/internal/bus"
	"github.com/otahub/otahub/internal/store"
	"github.com/otahub/otahub/pkg/models"
)

// Sentinel errors for dispatch failures.
var (
	ErrAlreadyTerminal = errors.New("job already in a terminal state")
	ErrPublishFailed   = errors.New("publishing update command failed")
)

// Service owns the control-plane job operations: admitting new jobs and
// dispatching update commands to devices.
type Service struct {
	jobs        store.Store
	artifacts   *artifact.Store
	publisher   bus.Publisher
	topicPrefix string
}

func NewService(jobs store.Store, artifacts *artifact.Store, publisher bus.Publisher, topicPrefix string) *Service {
	return &Service{
		jobs:        jobs,
		artifacts:   artifacts,
		publisher:   publisher,
		topicPrefix: topicPrefix,
	}
}

// Create admits a new job after verifying the artifact exists. The existence
// check runs before the job store is touched so no lock is held across I/O.
func (s *Service) Create(deviceID, artifactName, version string) (models.Job, error) {
	if err := s.artifacts.Exists(artifactName); err != nil {
		return models.Job{}, err
	}

	job := s.jobs.Create(deviceID, artifactName, version)
	slog.Info("ota job created", "job_id", job.ID, "device_id", job.DeviceID, "artifact", job.Artifact)
	return job, nil
}

// Get returns a copy of the job, if present.
func (s *Service) Get(id uuid.UUID) (models.Job, bool) {
	return s.jobs.Get(id)
}

// List returns copies of all jobs.
func (s *Service) List() []models.Job {
	return s.jobs.List()
}

// Dispatch publishes the update command for the job to its device's command
// topic and, on broker acknowledgment, marks the job dispatched. A failed
// publish leaves the job untouched so the caller can retry.
func (s *Service) Dispatch(ctx context.Context, id uuid.UUID) (models.Job, error) {
	job, ok := s.jobs.Get(id)
	if !ok {
		return models.Job{}, store.ErrNotFound
	}
	if job.Status.IsTerminal() {
		return models.Job{}, fmt.Errorf("%w: job is %s", ErrAlreadyTerminal, job.Status)
	}

	cmd := models.Command{
		JobID:       job.ID,
		ArtifactURL: s.artifacts.URL(job.Artifact),
		Version:     job.Version,
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return models.Job{}, fmt.Errorf("encoding command: %w", err)
	}

	topic := s.commandTopic(job.DeviceID)
	if err := s.publisher.Publish(ctx, topic, payload); err != nil {
		return models.Job{}, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	updated, err := s.jobs.Transition(id, func(j *models.Job) {
		// Dispatch never regresses a job that a device already reported on.
		if j.Status == models.JobStatusCreated {
			j.Status = models.JobStatusDispatched
		}
		if j.DispatchedAt == nil {
			now := time.Now().UTC()
			j.DispatchedAt = &now
		}
		msg := "command dispatched"
		j.Message = &msg
	})
	if err != nil {
		return models.Job{}, err
	}

	slog.Info("ota command dispatched", "job_id", id, "topic", topic)
	return updated, nil
}

func (s *Service) commandTopic(deviceID string) string {
	return s.topicPrefix + deviceID + "/ota"
}
