// Package jobs tracks asynchronous work: per-job progress text, a cooperative
// cancellation flag, and the structured outcome once a job is terminal. The
// registry is injected into every worker; nothing reads ambient process state.
package jobs

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DeviceIngineering/-tocka-marketplace/constants"
)

// Registry is the keyed progress/cancellation state shared between a running
// job (single writer) and its status pollers (many readers).
type Registry interface {
	// Create registers a job id. Creating an existing id is a no-op.
	Create(jobID string)
	// SetStatus overwrites the job's progress message.
	SetStatus(jobID, message string)
	// GetStatus returns the latest progress message, or the "no data"
	// sentinel for ids the registry has never seen.
	GetStatus(jobID string) string
	// RequestCancel sets the cancellation flag. Idempotent; the flag is
	// never reset.
	RequestCancel(jobID string)
	// IsCancelled reports whether cancellation was requested.
	IsCancelled(jobID string) bool
	// Finish records a terminal status message and the completion time.
	// Only the first call per job sets the completion time.
	Finish(jobID, message string)
	// SetResult attaches the structured outcome and marks the job finished.
	SetResult(jobID string, result any)
	// Result returns the structured outcome, if the job produced one yet.
	Result(jobID string) (any, bool)
}

// NewID generates a fresh job identifier.
func NewID() string {
	return uuid.NewString()
}

type entry struct {
	status     string
	cancel     bool
	result     any
	hasResult  bool
	finishedAt time.Time
}

type memoryRegistry struct {
	mu     sync.RWMutex
	jobs   map[string]*entry
	logger *slog.Logger
}

// NewMemoryRegistry returns the in-process Registry. Finished entries stay
// available for polling until Sweep removes them.
func NewMemoryRegistry(logger *slog.Logger) *memoryRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &memoryRegistry{jobs: make(map[string]*entry), logger: logger}
}

func (r *memoryRegistry) Create(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[jobID]; ok {
		return
	}
	r.jobs[jobID] = &entry{}
	r.logger.Info("jobs.created", "job_id", jobID)
}

func (r *memoryRegistry) SetStatus(jobID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.jobs[jobID]; ok {
		e.status = message
	}
}

func (r *memoryRegistry) GetStatus(jobID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[jobID]
	if !ok || e.status == "" {
		return constants.StatusNoData
	}
	return e.status
}

func (r *memoryRegistry) RequestCancel(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[jobID]
	if !ok {
		return
	}
	if !e.cancel {
		e.cancel = true
		r.logger.Info("jobs.cancel_requested", "job_id", jobID)
	}
}

func (r *memoryRegistry) IsCancelled(jobID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[jobID]
	return ok && e.cancel
}

func (r *memoryRegistry) Finish(jobID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[jobID]
	if !ok {
		return
	}
	e.status = message
	if e.finishedAt.IsZero() {
		e.finishedAt = time.Now()
	}
}

func (r *memoryRegistry) SetResult(jobID string, result any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[jobID]
	if !ok {
		return
	}
	e.result = result
	e.hasResult = true
	if e.finishedAt.IsZero() {
		e.finishedAt = time.Now()
	}
}

func (r *memoryRegistry) Result(jobID string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[jobID]
	if !ok || !e.hasResult {
		return nil, false
	}
	return e.result, true
}

// Sweep drops entries that finished before now-retention and returns how many
// were removed. Running jobs are never swept.
func (r *memoryRegistry) Sweep(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.jobs {
		if !e.finishedAt.IsZero() && e.finishedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("jobs.swept", "removed", removed)
	}
	return removed
}
