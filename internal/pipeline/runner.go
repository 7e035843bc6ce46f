package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mediapress/internal/config"
	"mediapress/internal/events"
	"mediapress/internal/logging"
	"mediapress/internal/services"
	"mediapress/internal/stages"
	"mediapress/internal/tasks"
)

// StageSource supplies the stage chain. Satisfied by *stages.Library.
type StageSource interface {
	Pipeline() []stages.Stage
}

// Runner executes the stage chain for one task at a time. It owns all
// persistence during a run: checkpoint commits after each stage, the terminal
// transition at the end, and the execution state in the registry. Errors from
// stages never escape; they end as a persisted failed status.
type Runner struct {
	cfg       *config.Config
	store     *tasks.Store
	library   StageSource
	registry  *Registry
	publisher events.Publisher
	backoff   Backoff
	logger    *slog.Logger
}

func NewRunner(cfg *config.Config, store *tasks.Store, library StageSource, registry *Registry, publisher events.Publisher, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Runner{
		cfg:       cfg,
		store:     store,
		library:   library,
		registry:  registry,
		publisher: publisher,
		backoff:   backoffFromConfig(cfg),
		logger:    logger,
	}
}

// Run drives one task through the pipeline. Returns an error only for
// infrastructure trouble (store unavailable, shutdown); task-level failures
// are persisted and reported as nil.
func (r *Runner) Run(ctx context.Context, taskID, handle string) error {
	task, err := r.store.GetByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task == nil {
		r.logger.Warn("task vanished before execution", "task_id", taskID)
		return nil
	}
	if task.Status.IsTerminal() {
		r.logger.Debug("task already terminal, skipping", "task_id", taskID, "status", string(task.Status))
		return nil
	}

	ctx = services.WithTaskID(ctx, taskID)
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("pipeline started", "handle", handle, "filename", task.OriginalFilename)

	sc := stages.Context{
		TaskID:    task.ID,
		UserID:    task.UserID,
		InputPath: task.SourcePath,
	}
	maxRetries := r.cfg.Pipeline.MaxAttempts

	for _, stage := range r.library.Pipeline() {
		r.registry.Set(ctx, handle, Execution{
			State: ExecRunning, Stage: stage.Name, Progress: task.Progress,
		})

		out, err := r.runStage(ctx, handle, stage, sc, maxRetries)
		if err != nil {
			if ctx.Err() != nil {
				logger.Warn("pipeline interrupted", "stage", stage.Name)
				return ctx.Err()
			}
			r.failTask(ctx, task, handle, stage.Name, err)
			return nil
		}
		sc = out

		if err := r.commitCheckpoint(ctx, task, stage, sc); err != nil {
			return fmt.Errorf("commit %s checkpoint for %s: %w", stage.Name, task.ID, err)
		}
		task.Progress = stage.Checkpoint
		logger.Info("stage complete", "stage", stage.Name, "progress", stage.Checkpoint)
	}

	r.registry.Set(ctx, handle, Execution{State: ExecSucceeded, Progress: 100})
	r.publish(ctx, events.Event{
		Type: events.TypeCompleted, TaskID: task.ID, UserID: task.UserID,
		Status: string(tasks.StatusCompleted), Progress: 100,
	})
	logger.Info("pipeline completed", "handle", handle)
	return nil
}

// runStage invokes one stage, retrying transient failures with backoff until
// the retry cap is exhausted. The returned error is the last failure.
func (r *Runner) runStage(ctx context.Context, handle string, stage stages.Stage, sc stages.Context, maxRetries int) (stages.Context, error) {
	for attempt := 1; ; attempt++ {
		out, err := stage.Run(ctx, sc)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return sc, err
		}
		if services.IsPermanent(err) {
			return sc, err
		}
		if attempt > maxRetries {
			r.logger.Warn("retry cap exhausted",
				"task_id", sc.TaskID, "stage", stage.Name, "attempts", attempt, "error", err)
			return sc, err
		}

		delay := r.backoff.Delay(attempt - 1)
		r.registry.Set(ctx, handle, Execution{
			State: ExecRetrying, Stage: stage.Name, Attempt: attempt, Error: services.Message(err),
		})
		r.logger.Info("stage retry scheduled",
			"task_id", sc.TaskID, "stage", stage.Name, "attempt", attempt,
			"delay", delay.Round(time.Millisecond).String(), "error", err)
		if err := sleep(ctx, delay); err != nil {
			return sc, err
		}
	}
}

// commitCheckpoint persists the progress for a completed stage, plus the
// extra fields individual stages contribute.
func (r *Runner) commitCheckpoint(ctx context.Context, task *tasks.Task, stage stages.Stage, sc stages.Context) error {
	patch := tasks.Patch{Progress: tasks.IntOf(stage.Checkpoint)}
	switch stage.Name {
	case "validate":
		patch.Status = tasks.StatusOf(tasks.StatusProcessing)
	case "thumbnail":
		patch.ThumbnailPath = tasks.StringOf(sc.ThumbnailPath)
	case "finalize":
		outputs := stages.Outputs(sc)
		patch.Status = tasks.StatusOf(tasks.StatusCompleted)
		patch.Outputs = &outputs
		patch.ErrorMessage = tasks.StringOf("")
	}
	return r.store.Apply(ctx, task.ID, patch)
}

// failTask records a terminal failure. Progress stays at its last committed
// checkpoint.
func (r *Runner) failTask(ctx context.Context, task *tasks.Task, handle, stageName string, cause error) {
	msg := services.Message(cause)
	patch := tasks.Patch{
		Status:       tasks.StatusOf(tasks.StatusFailed),
		ErrorMessage: tasks.StringOf(msg),
	}
	if err := r.store.Apply(ctx, task.ID, patch); err != nil {
		r.logger.Error("failed to persist task failure", "task_id", task.ID, "error", err)
	}

	r.registry.Set(ctx, handle, Execution{
		State: ExecFailed, Stage: stageName, Progress: task.Progress, Error: msg,
	})
	r.publish(ctx, events.Event{
		Type: events.TypeFailed, TaskID: task.ID, UserID: task.UserID,
		Status: string(tasks.StatusFailed), Progress: task.Progress, Error: msg,
	})
	r.logger.Warn("pipeline failed",
		"task_id", task.ID, "stage", stageName, "error", msg)
}

func (r *Runner) publish(ctx context.Context, event events.Event) {
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("event publish failed", "type", event.Type, "task_id", event.TaskID, "error", err)
	}
}
