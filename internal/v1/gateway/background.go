package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/visitly/presence-gateway/internal/v1/logging"
)

const (
	reaperInterval  = time.Second
	flusherInterval = time.Second
)

// StartReaper launches the periodic expiry sweep over every room. Expired
// members drop out of the effective count and empty rooms are removed from
// the registry. Stops when ctx is cancelled.
func (h *Hub) StartReaper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reaperInterval)
		defer ticker.Stop()

		logging.Info(ctx, "reaper started", zap.Duration("interval", reaperInterval), zap.Duration("ttl", h.ttl))
		for {
			select {
			case <-ctx.Done():
				logging.Info(ctx, "reaper stopped")
				return
			case <-ticker.C:
				h.rooms.CleanupAll(time.Now(), h.ttl)
			}
		}
	}()
}

// StartFlusher launches the online-stats flusher: once per tick, if the
// global count changed since the last flush, fold it into the daily stats.
// The tick acts as a debounce so a burst of connects costs one write.
func (h *Hub) StartFlusher(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(flusherInterval)
		defer ticker.Stop()

		last := h.online.Get()
		logging.Info(ctx, "online stats flusher started", zap.Duration("interval", flusherInterval))
		for {
			select {
			case <-ctx.Done():
				logging.Info(ctx, "online stats flusher stopped")
				return
			case <-ticker.C:
				current := h.online.Get()
				if current != last {
					h.meta.UpdateOnlineStats(ctx, current)
					last = current
				}
			}
		}
	}()
}
