package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/otahub/otahub/pkg/models"
)

var ErrNotFound = errors.New("job not found")

// Store is the job data access interface. All job reads and mutations go
// through here.
type Store interface {
	Create(deviceID, artifact, version string) models.Job
	Get(id uuid.UUID) (models.Job, bool)
	List() []models.Job
	Transition(id uuid.UUID, mutate func(*models.Job)) (models.Job, error)
}

// entry pairs a job with its own lock so transitions on one job never block
// transitions on another.
type entry struct {
	mu  sync.Mutex
	job models.Job
}

// MemoryStore keeps all jobs in process memory. A restart forgets every job;
// late device reports for forgotten jobs are dropped by the reconciler. Safe
// for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]*entry)}
}

// Create admits a new job with a fresh id and Created status. Callers are
// expected to check artifact existence before calling; the store itself never
// performs I/O.
func (s *MemoryStore) Create(deviceID, artifact, version string) models.Job {
	job := models.Job{
		ID:        uuid.New(),
		DeviceID:  strings.TrimSpace(deviceID),
		Artifact:  artifact,
		Version:   version,
		Status:    models.JobStatusCreated,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = &entry{job: job}
	s.mu.Unlock()

	return job
}

// Get returns a copy of the job, if present.
func (s *MemoryStore) Get(id uuid.UUID) (models.Job, bool) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return models.Job{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job, true
}

// List returns copies of all jobs ordered by creation time.
func (s *MemoryStore) List() []models.Job {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	jobs := make([]models.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		jobs = append(jobs, e.job)
		e.mu.Unlock()
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID.String() < jobs[j].ID.String()
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// Transition applies mutate to the job under its per-job lock and returns the
// updated copy. Jobs in a terminal state are frozen: the mutator is skipped
// and the unchanged copy is returned with a nil error, which makes duplicate
// and late status reports harmless no-ops.
func (s *MemoryStore) Transition(id uuid.UUID, mutate func(*models.Job)) (models.Job, error) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return models.Job{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.Status.IsTerminal() {
		return e.job, nil
	}
	mutate(&e.job)
	return e.job, nil
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
