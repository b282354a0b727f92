package presence

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

type Cleaner interface {
	CleanupStale(ctx context.Context) (int, error)
}

// Janitor periodically removes typing rows whose owners vanished without
// stopping (closed tab, lost connection).
type Janitor struct {
	cleaner  Cleaner
	interval time.Duration
	log      *slog.Logger
}

func NewJanitor(cleaner Cleaner, interval time.Duration, log *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Janitor{cleaner: cleaner, interval: interval, log: log}
}

// Run blocks until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if stop := j.sweep(ctx); stop {
				return nil
			}
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) bool {
	n, err := j.cleaner.CleanupStale(ctx)
	switch {
	case errors.Is(err, domain.ErrAuthRequired):
		return true
	case err != nil:
		if ctx.Err() == nil {
			j.log.WarnContext(ctx, "typing cleanup failed", slog.Any("err", err))
		}
	case n > 0:
		j.log.DebugContext(ctx, "stale typing rows removed", slog.Int("count", n))
	}
	return false
}
