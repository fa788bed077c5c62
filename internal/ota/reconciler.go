package ota

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/otahub/otahub/internal/bus"
	"github.com/otahub/otahub/internal/store"
	"github.com/otahub/otahub/pkg/models"
)

// Reconciler drains device status reports from the bus and folds them into
// job state. It is the only writer besides Dispatch; the bus client delivers
// messages sequentially, so no two reconciliations race each other.
type Reconciler struct {
	jobs        store.Store
	subscriber  bus.Subscriber
	topicPrefix string
}

func NewReconciler(jobs store.Store, subscriber bus.Subscriber, topicPrefix string) *Reconciler {
	return &Reconciler{
		jobs:        jobs,
		subscriber:  subscriber,
		topicPrefix: topicPrefix,
	}
}

// Start subscribes to every device's status sub-topic. Reconnection and
// resubscription on transport errors are handled by the bus client; the
// handler itself never returns an error because the bus has no caller to
// respond to.
func (r *Reconciler) Start() error {
	return r.subscriber.Subscribe(r.topicPrefix+"+/ota/status", r.HandleMessage)
}

// HandleMessage applies one status report. Malformed topics and payloads and
// reports for unknown jobs are logged and dropped; a device may legitimately
// report on a job this process no longer remembers.
func (r *Reconciler) HandleMessage(topic string, payload []byte) {
	deviceID, ok := parseStatusTopic(r.topicPrefix, topic)
	if !ok {
		slog.Warn("dropping status message with unexpected topic", "topic", topic)
		return
	}

	var report models.StatusReport
	if err := json.Unmarshal(payload, &report); err != nil {
		slog.Warn("dropping malformed status payload", "topic", topic, "error", err)
		return
	}

	mapped := mapReportedStatus(report.Status)
	job, err := r.jobs.Transition(report.JobID, func(j *models.Job) {
		now := time.Now().UTC()
		if j.DispatchedAt == nil {
			j.DispatchedAt = &now
		}
		if mapped.IsTerminal() && j.CompletedAt == nil {
			j.CompletedAt = &now
		}
		j.Status = mapped
		if report.Message != nil {
			j.Message = report.Message
		} else {
			msg := "reported by " + deviceID
			j.Message = &msg
		}
	})
	if err != nil {
		slog.Info("status report for unknown job", "job_id", report.JobID, "device_id", deviceID)
		return
	}

	slog.Info("job status updated",
		"job_id", job.ID,
		"device_id", deviceID,
		"status", job.Status,
	)
}

// parseStatusTopic extracts the device id from <prefix><device>/ota/status.
// Anything else, including extra or missing segments, is rejected.
func parseStatusTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix)
	if !ok {
		return "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] != "ota" || parts[2] != "status" {
		return "", false
	}
	return parts[0], true
}

// mapReportedStatus maps a device's free-form status string onto the job
// state machine. Unrecognized values count as a liveness signal, not an
// error.
func mapReportedStatus(reported string) models.JobStatus {
	switch reported {
	case "completed", "success", "ok":
		return models.JobStatusCompleted
	case "failed", "error":
		return models.JobStatusFailed
	case "in_progress", "downloading", "installing":
		return models.JobStatusInProgress
	default:
		return models.JobStatusInProgress
	}
}
