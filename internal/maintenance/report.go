package maintenance

import (
	"context"
	"log/slog"
	"time"

	"mediapress/internal/config"
	"mediapress/internal/logging"
	"mediapress/internal/tasks"
)

// Reporter logs a periodic summary of task throughput over the last day.
type Reporter struct {
	cfg    *config.Config
	store  *tasks.Store
	logger *slog.Logger
}

func NewReporter(cfg *config.Config, store *tasks.Store, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reporter{cfg: cfg, store: store, logger: logger}
}

// Run emits a report on the configured interval until the context ends.
func (r *Reporter) Run(ctx context.Context) {
	interval := time.Duration(r.cfg.Maintenance.ReportIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.ReportOnce(ctx); err != nil {
				r.logger.Warn("report pass failed", "error", err)
			}
		}
	}
}

// ReportOnce counts tasks created in the trailing 24 hours by status and
// logs the breakdown.
func (r *Reporter) ReportOnce(ctx context.Context) error {
	windowStart := time.Now().UTC().Add(-24 * time.Hour)
	counts, err := r.store.CountByStatusSince(ctx, windowStart)
	if err != nil {
		return err
	}

	total := 0
	args := []any{"window_start", windowStart.Format(time.RFC3339)}
	for _, status := range tasks.AllStatuses() {
		count := counts[status]
		total += count
		args = append(args, string(status), count)
	}
	args = append(args, "total", total)
	r.logger.Info("daily task report", args...)
	return nil
}
