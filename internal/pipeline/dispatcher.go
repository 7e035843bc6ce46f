package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"mediapress/internal/config"
	"mediapress/internal/logging"
	"mediapress/internal/tasks"
)

// ErrQueueFull reports that the dispatch queue has no room for another job.
var ErrQueueFull = errors.New("pipeline: dispatch queue full")

// ErrStopped reports an enqueue attempt after the dispatcher shut down.
var ErrStopped = errors.New("pipeline: dispatcher stopped")

const queueCapacity = 256

type job struct {
	taskID string
	handle string
}

// Dispatcher feeds admitted tasks to a fixed pool of workers. Jobs are
// buffered in process; restart recovery re-derives the queue from the store.
type Dispatcher struct {
	cfg    *config.Config
	store  *tasks.Store
	runner *Runner
	logger *slog.Logger

	queue   chan job
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

func NewDispatcher(cfg *config.Config, store *tasks.Store, runner *Runner, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		cfg:    cfg,
		store:  store,
		runner: runner,
		logger: logger,
		queue:  make(chan job, queueCapacity),
	}
}

// Start launches the worker pool. Workers drain the queue until Stop closes
// it or the context is canceled.
func (d *Dispatcher) Start(ctx context.Context) {
	workers := d.cfg.Pipeline.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work(ctx, i)
	}
	d.logger.Info("dispatcher started", "workers", workers)
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-d.queue:
			if !ok {
				return
			}
			if err := d.runner.Run(ctx, item.taskID, item.handle); err != nil {
				d.logger.Error("job execution aborted",
					"worker", id, "task_id", item.taskID, "error", err)
			}
		}
	}
}

// Enqueue hands a task to the worker pool without blocking. The queued
// execution state is recorded before the send so a worker's running state
// always comes after it.
func (d *Dispatcher) Enqueue(taskID, handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	d.runner.registry.Set(context.Background(), handle, Execution{State: ExecQueued})
	select {
	case d.queue <- job{taskID: taskID, handle: handle}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Recover rebuilds the in-process queue after a restart: tasks left in
// processing are moved back to queued with their committed progress intact,
// then every queued task is assigned a fresh handle and re-enqueued.
func (d *Dispatcher) Recover(ctx context.Context) error {
	requeued, err := d.store.RequeueInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("requeue interrupted tasks: %w", err)
	}
	if requeued > 0 {
		d.logger.Info("interrupted tasks requeued", "count", requeued)
	}

	ids, err := d.store.QueuedTaskIDs(ctx)
	if err != nil {
		return fmt.Errorf("list queued tasks: %w", err)
	}
	for _, id := range ids {
		handle := uuid.NewString()
		patch := tasks.Patch{JobHandle: tasks.StringOf(handle)}
		if err := d.store.Apply(ctx, id, patch); err != nil {
			return fmt.Errorf("assign handle to %s: %w", id, err)
		}
		if err := d.Enqueue(id, handle); err != nil {
			return fmt.Errorf("re-enqueue %s: %w", id, err)
		}
	}
	if len(ids) > 0 {
		d.logger.Info("queued tasks restored", "count", len(ids))
	}
	return nil
}

// Stop closes the queue and waits for in-flight jobs to finish. Enqueue
// calls racing the shutdown get ErrStopped instead of a closed-channel send.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
