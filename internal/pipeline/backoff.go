package pipeline

import (
	"context"
	"math/rand"
	"time"

	"mediapress/internal/config"
)

// Backoff computes retry delays: exponential doubling from Base, capped at
// Max, with full jitter so simultaneous retries spread out.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func backoffFromConfig(cfg *config.Config) Backoff {
	return Backoff{
		Base: time.Duration(cfg.Pipeline.RetryBackoffSeconds) * time.Second,
		Max:  time.Duration(cfg.Pipeline.RetryBackoffMax) * time.Second,
	}
}

// Delay returns the wait before retry number retry (zero-based).
func (b Backoff) Delay(retry int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	ceiling := base
	for i := 0; i < retry; i++ {
		ceiling *= 2
		if b.Max > 0 && ceiling >= b.Max {
			ceiling = b.Max
			break
		}
	}
	if b.Max > 0 && ceiling > b.Max {
		ceiling = b.Max
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}

// sleep waits for d or until the context is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
