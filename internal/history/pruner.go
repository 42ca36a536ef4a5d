package history

import (
	"context"
	"time"
)

// pruneInterval is how often the retention pruner runs after startup.
const pruneInterval = 24 * time.Hour

// Logger interface for optional logging.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// RunPruner deletes entries older than retention once immediately and then
// daily until ctx is cancelled. A non-positive retention disables pruning.
func RunPruner(ctx context.Context, repo Repository, retention time.Duration, logger Logger) {
	if retention <= 0 {
		return
	}

	prune := func() {
		n, err := repo.Prune(ctx, retention)
		if logger == nil {
			return
		}
		if err != nil {
			logger.Warn("activity prune failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("activity pruned", "rows", n, "retention", retention)
		}
	}

	prune()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
