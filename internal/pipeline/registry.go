package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mediapress/internal/logging"
	"mediapress/internal/statuscache"
)

// ExecState is the job-queue view of one handle, distinct from the persisted
// task status: a retrying job still shows task status processing.
type ExecState string

const (
	ExecQueued    ExecState = "queued"
	ExecRunning   ExecState = "running"
	ExecRetrying  ExecState = "retrying"
	ExecSucceeded ExecState = "succeeded"
	ExecFailed    ExecState = "failed"
)

// Execution is the tracked state for one job handle.
type Execution struct {
	State     ExecState `json:"state"`
	Stage     string    `json:"stage,omitempty"`
	Progress  int       `json:"progress"`
	Attempt   int       `json:"attempt,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Registry tracks execution state per job handle in memory, with optional
// write-through to the Redis status cache. Mirror failures are logged, never
// propagated; the in-memory view is authoritative for this process.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[string]Execution
	cache  *statuscache.Cache
	logger *slog.Logger
}

func NewRegistry(cache *statuscache.Cache, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		jobs:   make(map[string]Execution),
		cache:  cache,
		logger: logger,
	}
}

// Set records the state for a handle.
func (r *Registry) Set(ctx context.Context, handle string, exec Execution) {
	if handle == "" {
		return
	}
	exec.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	r.jobs[handle] = exec
	r.mu.Unlock()

	if err := r.cache.Put(ctx, handle, exec); err != nil {
		r.logger.Warn("execution state mirror failed", "handle", handle, "error", err)
	}
}

// Lookup returns the tracked state for a handle. When the handle is unknown
// locally it falls through to the cache, covering handles owned by another
// process.
func (r *Registry) Lookup(ctx context.Context, handle string) (Execution, bool) {
	r.mu.RLock()
	exec, ok := r.jobs[handle]
	r.mu.RUnlock()
	if ok {
		return exec, true
	}

	var cached Execution
	if err := r.cache.Get(ctx, handle, &cached); err == nil {
		return cached, true
	}
	return Execution{}, false
}
