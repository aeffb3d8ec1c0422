package watcher

import (
	"context"
	"log"
	"time"

	"github.com/fixstream/fixstream/internal/actionstore"
)

// Retention is the independent cleanup loop: on its own (much slower)
// interval it durably deletes finalized rows past the retention window.
type Retention struct {
	store    *actionstore.Store
	interval time.Duration
	window   time.Duration
	now      func() time.Time
}

func NewRetention(store *actionstore.Store, interval time.Duration, retentionDays int, now func() time.Time) *Retention {
	if interval <= 0 {
		interval = 12 * time.Hour
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if now == nil {
		now = time.Now
	}
	return &Retention{
		store:    store,
		interval: interval,
		window:   time.Duration(retentionDays) * 24 * time.Hour,
		now:      now,
	}
}

// Run blocks until ctx is cancelled, pruning once per interval and once at
// startup.
func (r *Retention) Run(ctx context.Context) error {
	log.Printf("[retention] starting (interval=%s, window=%s)", r.interval, r.window)
	defer log.Printf("[retention] stopped")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.prune(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.prune(ctx)
		}
	}
}

func (r *Retention) prune(ctx context.Context) {
	cutoff := r.now().UTC().Add(-r.window)
	pruneCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := r.store.PruneNotifiedBefore(pruneCtx, cutoff)
	if err != nil {
		log.Printf("[retention] prune failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[retention] pruned %d finalized action(s) older than %s", n, cutoff.Format(time.RFC3339))
	}
}
