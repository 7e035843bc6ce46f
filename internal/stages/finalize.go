package stages

import (
	"context"

	"mediapress/internal/tasks"
)

// Finalize assembles the task outputs from the published artifacts. The
// orchestrator commits them together with the terminal completed status.
func (l *Library) Finalize(ctx context.Context, sc Context) (Context, error) {
	l.logger.Info("pipeline finalized", "task_id", sc.TaskID)
	return sc, nil
}

// Outputs maps the published artifacts into the persisted outputs shape.
func Outputs(sc Context) tasks.Outputs {
	variants := make([]tasks.Variant, 0, len(sc.Uploaded))
	for _, item := range sc.Uploaded {
		variants = append(variants, tasks.Variant{Label: item.Label, URL: item.URL})
	}
	return tasks.Outputs{Thumbnail: sc.ThumbnailURL, Variants: variants}
}
