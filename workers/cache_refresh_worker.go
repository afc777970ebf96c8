// workers/cache_refresh_worker.go
package workers

import (
	"context"
	"time"

	"referral-tracking-system/services"

	"github.com/sirupsen/logrus"
)

// CacheRefreshWorker periodically re-warms the Redis copy of the bank list
// and welcome text. Admin mutations already invalidate synchronously; the
// worker covers TTL expiry and any out-of-band database edits.
type CacheRefreshWorker struct {
	banks    *services.BankService
	interval time.Duration
}

func NewCacheRefreshWorker(banks *services.BankService) *CacheRefreshWorker {
	return &CacheRefreshWorker{
		banks:    banks,
		interval: 5 * time.Minute,
	}
}

func (w *CacheRefreshWorker) Start(ctx context.Context) {
	logrus.Info("🔁 Starting cache refresh worker (banks/welcome → redis)…")
	go w.run(ctx)
}

func (w *CacheRefreshWorker) run(ctx context.Context) {
	if err := w.banks.RefreshCache(ctx); err != nil {
		logrus.Warnf("[CACHE_REFRESH] initial warm-up failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.banks.RefreshCache(ctx); err != nil {
				logrus.Warnf("[CACHE_REFRESH] refresh failed: %v", err)
			}
		case <-ctx.Done():
			logrus.Info("⏹️ Cache refresh worker stopped")
			return
		}
	}
}
