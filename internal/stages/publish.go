package stages

import (
	"context"
	"path/filepath"
)

// Publish pushes every watermarked variant and the thumbnail to object
// storage under {task_id}/{filename}. Storage trouble never fails the stage:
// any item that cannot be uploaded keeps its local path as the URL.
func (l *Library) Publish(ctx context.Context, sc Context) (Context, error) {
	uploaded := make([]Published, 0, len(sc.Watermarked))
	for _, variant := range sc.Watermarked {
		url := l.publishFile(ctx, sc.TaskID, variant.Path)
		uploaded = append(uploaded, Published{Label: variant.Label, URL: url, Path: variant.Path})
	}

	sc.Uploaded = uploaded
	sc.ThumbnailURL = l.publishFile(ctx, sc.TaskID, sc.ThumbnailPath)
	l.logger.Info("outputs published", "task_id", sc.TaskID, "count", len(uploaded)+1)
	return sc, nil
}

// publishFile uploads one file and returns its public URL, falling back to
// the local path when storage is disabled or unavailable.
func (l *Library) publishFile(ctx context.Context, taskID, localPath string) string {
	if l.uploader == nil {
		return localPath
	}
	key := taskID + "/" + filepath.Base(localPath)
	url, err := l.uploader.Upload(ctx, localPath, key)
	if err != nil {
		l.logger.Warn("upload failed, serving local path",
			"task_id", taskID, "key", key, "error", err)
		return localPath
	}
	return url
}
