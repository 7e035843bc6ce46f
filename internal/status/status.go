// Package status streams live task snapshots to subscribers. The publisher
// polls the task store on a fixed cadence, composing the persisted record
// with the job queue's execution state, and closes the stream once the task
// reaches a terminal status.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mediapress/internal/config"
	"mediapress/internal/logging"
	"mediapress/internal/pipeline"
	"mediapress/internal/tasks"
)

// Execution is the job-queue view included in each snapshot, kept separate
// from the persisted task status so a retrying job is distinguishable from a
// plain processing one.
type Execution struct {
	State string `json:"state"`
	Meta  Meta   `json:"meta"`
}

// Meta carries the stage-level detail behind an execution state.
type Meta struct {
	Stage    string `json:"stage,omitempty"`
	Progress int    `json:"progress"`
	Attempt  int    `json:"attempt,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Snapshot is one observation of a task. NotFound marks the single snapshot
// emitted for an unknown task id before the stream closes.
type Snapshot struct {
	TaskID       string         `json:"task_id"`
	Status       tasks.Status   `json:"status,omitempty"`
	Progress     int            `json:"progress"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Outputs      *tasks.Outputs `json:"outputs,omitempty"`
	Execution    *Execution     `json:"execution,omitempty"`
	NotFound     bool           `json:"not_found,omitempty"`
}

// ExecutionSource resolves a job handle to its execution state. Satisfied by
// *pipeline.Registry.
type ExecutionSource interface {
	Lookup(ctx context.Context, handle string) (pipeline.Execution, bool)
}

// Publisher composes and streams snapshots.
type Publisher struct {
	cfg    *config.Config
	store  *tasks.Store
	execs  ExecutionSource
	logger *slog.Logger
}

func NewPublisher(cfg *config.Config, store *tasks.Store, execs ExecutionSource, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{cfg: cfg, store: store, execs: execs, logger: logger}
}

// Subscribe streams snapshots for a task until it reaches a terminal status
// or the context is canceled. The first snapshot is emitted immediately,
// subsequent ones on the configured tick. An unknown task id produces a
// single NotFound snapshot. The returned channel is always closed.
func (p *Publisher) Subscribe(ctx context.Context, taskID string) <-chan Snapshot {
	out := make(chan Snapshot, 1)
	go p.stream(ctx, taskID, out)
	return out
}

func (p *Publisher) stream(ctx context.Context, taskID string, out chan<- Snapshot) {
	defer close(out)

	interval := time.Duration(p.cfg.Status.TickIntervalMillis) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snapshot, terminal, err := p.Snapshot(ctx, taskID)
		if err != nil {
			// A failed store read is not "task does not exist"; skip this
			// tick and try again.
			p.logger.Warn("snapshot read failed", "task_id", taskID, "error", err)
		} else {
			select {
			case out <- snapshot:
			case <-ctx.Done():
				return
			}
			if terminal {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Snapshot composes one observation. The second return reports whether the
// stream should end after this snapshot.
func (p *Publisher) Snapshot(ctx context.Context, taskID string) (Snapshot, bool, error) {
	task, err := p.store.GetByID(ctx, taskID)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task == nil {
		return Snapshot{TaskID: taskID, NotFound: true}, true, nil
	}

	snapshot := Snapshot{
		TaskID:       task.ID,
		Status:       task.Status,
		Progress:     task.Progress,
		ErrorMessage: task.ErrorMessage,
	}
	if outputs, err := task.Outputs(); err == nil && !outputs.IsZero() {
		snapshot.Outputs = &outputs
	}
	if task.JobHandle != "" {
		if exec, ok := p.execs.Lookup(ctx, task.JobHandle); ok {
			snapshot.Execution = &Execution{
				State: string(exec.State),
				Meta: Meta{
					Stage:    exec.Stage,
					Progress: exec.Progress,
					Attempt:  exec.Attempt,
					Error:    exec.Error,
				},
			}
		}
	}
	return snapshot, task.Status.IsTerminal(), nil
}
