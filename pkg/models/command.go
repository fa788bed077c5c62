package models

import "github.com/google/uuid"

// Command is the update instruction published to a device's command topic.
// The device fetches ArtifactURL and applies the referenced version.
type Command struct {
	JobID       uuid.UUID `json:"job_id"`
	ArtifactURL string    `json:"artifact_url"`
	Version     string    `json:"version"`
}

// StatusReport is a device's progress message for a job, received on the
// device's status sub-topic.
type StatusReport struct {
	JobID   uuid.UUID `json:"job_id"`
	Status  string    `json:"status"`
	Message *string   `json:"message,omitempty"`
}
