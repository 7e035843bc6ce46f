package stages

import (
	"context"
	"log/slog"

	"mediapress/internal/config"
	"mediapress/internal/logging"
	"mediapress/internal/objectstore"
)

// Stage is one step of the pipeline. Checkpoint is the overall task progress
// committed after the stage completes.
type Stage struct {
	Name       string
	Checkpoint int
	Run        func(ctx context.Context, sc Context) (Context, error)
}

// Library builds the stage chain from configuration and collaborators.
type Library struct {
	cfg      *config.Config
	uploader objectstore.Uploader
	logger   *slog.Logger
}

func NewLibrary(cfg *config.Config, uploader objectstore.Uploader, logger *slog.Logger) *Library {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Library{cfg: cfg, uploader: uploader, logger: logger}
}

// Pipeline returns the stages in execution order. The order and checkpoints
// are fixed; configuration tunes behavior inside stages, never the shape of
// the chain.
func (l *Library) Pipeline() []Stage {
	return []Stage{
		{Name: "validate", Checkpoint: 10, Run: l.Validate},
		{Name: "thumbnail", Checkpoint: 25, Run: l.Thumbnail},
		{Name: "convert", Checkpoint: 55, Run: l.Convert},
		{Name: "watermark", Checkpoint: 75, Run: l.Watermark},
		{Name: "publish", Checkpoint: 90, Run: l.Publish},
		{Name: "finalize", Checkpoint: 100, Run: l.Finalize},
	}
}
