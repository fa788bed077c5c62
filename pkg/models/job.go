package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an OTA job.
type JobStatus string

const (
	JobStatusCreated    JobStatus = "created"
	JobStatusDispatched JobStatus = "dispatched"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status accepts no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job tracks one OTA update attempt for a single device/artifact/version.
// A job is created via POST /ota/jobs, moves to dispatched when its command
// is published to the device, and is driven to a terminal state by status
// reports arriving over the message bus.
type Job struct {
	ID           uuid.UUID  `json:"id"`
	DeviceID     string     `json:"device_id"`
	Artifact     string     `json:"artifact"`
	Version      string     `json:"version"`
	Status       JobStatus  `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Message      *string    `json:"message,omitempty"`
}
