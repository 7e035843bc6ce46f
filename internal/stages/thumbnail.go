package stages

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"mediapress/internal/services"
)

const thumbnailBound = 320

// Thumbnail renders a preview capped at 320x320. Images are downscaled in
// process; videos hand a single frame at the one second mark to ffmpeg.
func (l *Library) Thumbnail(ctx context.Context, sc Context) (Context, error) {
	stem := fileStem(sc.InputPath)
	thumbPath := filepath.Join(l.cfg.Paths.ThumbDir, stem+"_thumb.jpg")

	switch sc.Kind {
	case KindImage:
		img, err := imaging.Open(sc.InputPath)
		if err != nil {
			return sc, services.Wrap(services.ErrExternalTool, "thumbnail", "decode",
				fmt.Sprintf("decode %s", sc.InputPath), err)
		}
		thumb := imaging.Fit(img, thumbnailBound, thumbnailBound, imaging.Lanczos)
		if err := imaging.Save(thumb, thumbPath, imaging.JPEGQuality(90)); err != nil {
			return sc, services.Wrap(services.ErrExternalTool, "thumbnail", "encode",
				fmt.Sprintf("write %s", thumbPath), err)
		}
	case KindVideo:
		err := l.runFFmpeg(ctx, "thumbnail",
			"-y", "-i", sc.InputPath, "-ss", "00:00:01", "-frames:v", "1", thumbPath)
		if err != nil {
			return sc, err
		}
	}

	sc.ThumbnailPath = thumbPath
	l.logger.Info("thumbnail generated", "task_id", sc.TaskID, "path", thumbPath)
	return sc, nil
}

// fileStem is the base name without its extension.
func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
