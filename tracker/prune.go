package tracker

import (
	"context"
	"log/slog"
	"time"
)

const (
	// minBackoff is the first retry delay after a failed prune.
	minBackoff = time.Second
	// maxBackoff is the upper limit for exponential backoff between failed
	// prune attempts.
	maxBackoff = 5 * time.Minute
	// pruneTimeout bounds a single prune attempt.
	pruneTimeout = 30 * time.Second
)

// Pruner is implemented by the scan store.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunPruneLoop deletes scans older than retention every interval until ctx
// ends. A failed prune is retried after a backoff that starts at one second
// (or interval, if shorter), doubles per consecutive failure up to 5 minutes,
// and resets on success. It returns ctx.Err().
func RunPruneLoop(ctx context.Context, p Pruner, interval, retention time.Duration, log *slog.Logger) error {
	if interval <= 0 {
		interval = time.Hour
	}
	failures := 0

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("prune loop stopped")
			return ctx.Err()
		case <-timer.C:
			n, err := pruneOnce(ctx, p, retention)
			if err != nil {
				failures++
				next := retryDelay(failures, interval)
				log.Warn("prune failed", "error", err, "attempt", failures, "next_attempt", next)
				timer.Reset(next)
				continue
			}
			if n > 0 {
				log.Info("pruned old scans", "deleted", n, "retention", retention)
			}
			failures = 0
			timer.Reset(interval)
		}
	}
}

// retryDelay returns the wait before retry number failures (1-based).
func retryDelay(failures int, interval time.Duration) time.Duration {
	d := minBackoff
	if interval < d {
		d = interval
	}
	for i := 1; i < failures && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func pruneOnce(ctx context.Context, p Pruner, retention time.Duration) (int64, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()
	return p.PruneBefore(attemptCtx, time.Now().Add(-retention))
}
