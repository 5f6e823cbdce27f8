package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Runner fires a job on a fixed interval. A tick is skipped when the
// previous run is still going, so a job never races itself against the
// same watermark.
type Runner struct {
	Name     string
	Interval time.Duration
	Job      func(ctx context.Context) error
	Logger   zerolog.Logger

	mu sync.Mutex
}

// Start blocks until ctx is cancelled. Job errors are logged and the
// schedule keeps going; the next tick retries from stored state.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if !r.mu.TryLock() {
		r.Logger.Warn().Str("job", r.Name).Msg("previous run still in progress, skipping tick")
		return
	}
	defer r.mu.Unlock()

	if err := r.Job(ctx); err != nil {
		r.Logger.Error().Err(err).Str("job", r.Name).Msg("job run failed")
	}
}
