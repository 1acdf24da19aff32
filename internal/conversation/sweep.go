package conversation

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is used when StartSweeper is given no interval.
const DefaultSweepInterval = 5 * time.Minute

// StartSweeper runs a background goroutine that periodically retires
// sessions idle for longer than ttl. A non-positive ttl disables it.
func StartSweeper(ctx context.Context, store *Store, ttl, interval time.Duration) {
	if ttl <= 0 {
		slog.Info("Session sweeper disabled")
		return
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if n := store.Sweep(ttl); n > 0 {
					slog.Info("Session sweeper retired idle sessions", "count", n, "remaining", store.Len())
				}
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
