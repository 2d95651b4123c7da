package notification

import (
	"context"
	"log/slog"
	"time"
)

// StartRetryScheduler runs RetryFailed on a fixed interval until ctx is
// cancelled. Notifications that age out of the retry window between ticks are
// abandoned; that only ever shows up in logs.
func StartRetryScheduler(ctx context.Context, svc Service, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("retry scheduler stopped")
				return
			case <-ticker.C:
				n, err := svc.RetryFailed(ctx)
				if err != nil {
					logger.Error("retry pass failed", "err", err)
					continue
				}
				if n > 0 {
					logger.Info("retried failed notifications", "count", n)
				}
			}
		}
	}()
}
