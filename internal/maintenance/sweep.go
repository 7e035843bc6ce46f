// Package maintenance hosts the background housekeeping jobs: sweeping aged
// media files off disk and a periodic throughput report.
package maintenance

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mediapress/internal/config"
	"mediapress/internal/logging"
)

// Sweeper removes media files older than the configured age from the input,
// output, and thumbnail directories.
type Sweeper struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewSweeper(cfg *config.Config, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sweeper{cfg: cfg, logger: logger}
}

// Run sweeps on the configured interval until the context ends.
func (s *Sweeper) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.Maintenance.SweepIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleaned, err := s.SweepOnce(time.Now())
			if err != nil {
				s.logger.Warn("sweep pass failed", "error", err)
				continue
			}
			if cleaned > 0 {
				s.logger.Info("aged media removed", "files", cleaned)
			}
		}
	}
}

// SweepOnce removes files whose modification time predates the cutoff and
// returns how many were deleted. Unreadable entries are skipped.
func (s *Sweeper) SweepOnce(now time.Time) (int, error) {
	maxAge := time.Duration(s.cfg.Maintenance.CleanupMaxAgeHours) * time.Hour
	cutoff := now.Add(-maxAge)

	cleaned := 0
	for _, dir := range s.cfg.MediaDirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return cleaned, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				path := filepath.Join(dir, entry.Name())
				if err := os.Remove(path); err != nil {
					s.logger.Warn("failed to remove aged file", "path", path, "error", err)
					continue
				}
				cleaned++
			}
		}
	}
	return cleaned, nil
}
