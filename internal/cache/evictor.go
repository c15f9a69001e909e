package cache

import (
	"context"
	"log/slog"
	"time"
)

// EvictInterval is how often expired entries are physically removed.
// Eviction is housekeeping, not correctness: Lookup already treats stale
// entries as misses.
const EvictInterval = time.Hour

// Evictor periodically removes cache entries past the retention horizon.
type Evictor struct {
	cache    *Service
	log      *slog.Logger
	interval time.Duration
}

func NewEvictor(cache *Service, log *slog.Logger) *Evictor {
	return &Evictor{cache: cache, log: log, interval: EvictInterval}
}

// Run blocks until ctx is cancelled, evicting on each tick.
func (e *Evictor) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.cache.EvictExpired(ctx)
			if err != nil {
				e.log.Warn("cache eviction failed", "error", err)
				continue
			}
			if n > 0 {
				e.log.Info("evicted expired cache entries", "count", n)
			}
		}
	}
}
