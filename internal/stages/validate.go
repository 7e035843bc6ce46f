package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mediapress/internal/services"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
}

// KindForPath classifies a file as image or video from its extension.
func KindForPath(path string) (MediaKind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case imageExtensions[ext]:
		return KindImage, true
	case videoExtensions[ext]:
		return KindVideo, true
	default:
		return "", false
	}
}

// Validate checks the source file exists, is non-empty, and has a recognized
// extension. All its failures are permanent.
func (l *Library) Validate(ctx context.Context, sc Context) (Context, error) {
	info, err := os.Stat(sc.InputPath)
	if err != nil {
		return sc, services.Wrap(services.ErrValidation, "validate", "stat",
			"source file does not exist", err)
	}
	kind, ok := KindForPath(sc.InputPath)
	if !ok {
		ext := strings.ToLower(filepath.Ext(sc.InputPath))
		return sc, services.Wrap(services.ErrValidation, "validate", "classify",
			fmt.Sprintf("unsupported media format %q", ext), nil)
	}
	if info.Size() == 0 {
		return sc, services.Wrap(services.ErrValidation, "validate", "size",
			"uploaded file is empty", nil)
	}

	sc.Kind = kind
	sc.SizeBytes = info.Size()
	l.logger.Info("source validated",
		"task_id", sc.TaskID, "kind", string(kind), "size_bytes", sc.SizeBytes)
	return sc, nil
}
