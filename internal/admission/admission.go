// Package admission gates new work. A submission is accepted only when the
// user's active task count is below the configured quota; rejections happen
// before any file or row is created so they leave no trace.
package admission

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"mediapress/internal/config"
	"mediapress/internal/events"
	"mediapress/internal/logging"
	"mediapress/internal/services"
	"mediapress/internal/tasks"
)

// Enqueuer hands an admitted task to the pipeline. Satisfied by
// *pipeline.Dispatcher.
type Enqueuer interface {
	Enqueue(taskID, handle string) error
}

// Receipt confirms an accepted submission.
type Receipt struct {
	TaskID    string
	JobHandle string
	Status    tasks.Status
}

// Controller admits uploads into the pipeline.
type Controller struct {
	cfg       *config.Config
	store     *tasks.Store
	enqueuer  Enqueuer
	publisher events.Publisher
	logger    *slog.Logger
}

func NewController(cfg *config.Config, store *tasks.Store, enqueuer Enqueuer, publisher events.Publisher, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = logging.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Controller{
		cfg:       cfg,
		store:     store,
		enqueuer:  enqueuer,
		publisher: publisher,
		logger:    logger,
	}
}

// Submit checks the quota, spools the upload to the input directory, creates
// the task row, and enqueues the job. The quota check comes first so a
// rejected submission has no side effects.
func (c *Controller) Submit(ctx context.Context, userID, filename string, content io.Reader) (*Receipt, error) {
	if userID == "" {
		return nil, services.Wrap(services.ErrValidation, "admission", "submit",
			"user id is required", nil)
	}
	if filename == "" {
		return nil, services.Wrap(services.ErrValidation, "admission", "submit",
			"filename is required", nil)
	}

	limit := c.cfg.Quota.MaxActiveTasksPerUser
	active, err := c.store.CountActiveForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count active tasks for %s: %w", userID, err)
	}
	if active >= limit {
		return nil, services.Wrap(services.ErrQuota, "admission", "submit",
			fmt.Sprintf("user %s already has %d active tasks (limit %d)", userID, active, limit), nil)
	}

	taskID := uuid.NewString()
	base := filepath.Base(filename)
	sourcePath := filepath.Join(c.cfg.Paths.InputDir, taskID+"_"+base)
	if err := spoolUpload(sourcePath, content); err != nil {
		return nil, fmt.Errorf("spool upload for %s: %w", taskID, err)
	}

	task, err := c.store.Create(ctx, tasks.CreateParams{
		ID:               taskID,
		UserID:           userID,
		OriginalFilename: base,
		SourcePath:       sourcePath,
	})
	if err != nil {
		os.Remove(sourcePath)
		return nil, fmt.Errorf("create task row: %w", err)
	}

	handle := uuid.NewString()
	patch := tasks.Patch{JobHandle: tasks.StringOf(handle)}
	if err := c.store.Apply(ctx, task.ID, patch); err != nil {
		return nil, fmt.Errorf("assign job handle: %w", err)
	}
	if err := c.enqueuer.Enqueue(task.ID, handle); err != nil {
		return nil, fmt.Errorf("enqueue task %s: %w", task.ID, err)
	}

	if err := c.publisher.Publish(ctx, events.Event{
		Type: events.TypeQueued, TaskID: task.ID, UserID: userID,
		Status: string(tasks.StatusQueued),
	}); err != nil {
		c.logger.Warn("queued event publish failed", "task_id", task.ID, "error", err)
	}

	c.logger.Info("submission admitted",
		"task_id", task.ID, "user_id", userID, "filename", base, "handle", handle)
	return &Receipt{TaskID: task.ID, JobHandle: handle, Status: tasks.StatusQueued}, nil
}

func spoolUpload(path string, content io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
