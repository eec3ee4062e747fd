package jobs

import (
	"context"

	"log/slog"

	"brandpulse/internal/cache"
)

// MemorySweeper evicts expired entries from an in-process cache tier.
type MemorySweeper interface {
	Sweep() int
}

// SweeperJob clears expired entries from the in-process tiers and the
// durable cache table.
type SweeperJob struct {
	store  *cache.GormStore
	logger *slog.Logger
	tiers  []MemorySweeper
}

func NewSweeperJob(store *cache.GormStore, logger *slog.Logger, tiers ...MemorySweeper) *SweeperJob {
	return &SweeperJob{store: store, logger: logger, tiers: tiers}
}

// Run performs one sweep over both tiers. A durable-tier failure is
// reported but does not undo the in-process sweep.
func (j *SweeperJob) Run(ctx context.Context) error {
	evicted := 0
	for _, tier := range j.tiers {
		evicted += tier.Sweep()
	}

	var purged int64
	if j.store != nil {
		var err error
		purged, err = j.store.PurgeExpired(ctx)
		if err != nil {
			return err
		}
	}

	if evicted > 0 || purged > 0 {
		j.logger.Info("Swept expired cache entries",
			slog.Int("memory_evicted", evicted),
			slog.Int64("durable_purged", purged))
	}
	return nil
}
