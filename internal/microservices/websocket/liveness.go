package websocket

import (
	"context"
	"log/slog"
	"time"
)

// Heartbeat pings every connection on a fixed interval and prunes the ones that
// have not answered within the grace window.
type Heartbeat struct {
	registry *Registry
	interval time.Duration
	grace    time.Duration
	logger   *slog.Logger
}

func NewHeartbeat(registry *Registry, interval, grace time.Duration, logger *slog.Logger) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeat{registry: registry, interval: interval, grace: grace, logger: logger}
}

// Run blocks until ctx is cancelled
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info("heartbeat_started", "interval", h.interval, "grace", h.grace)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("heartbeat_stopped")
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

// beat sends one ping round and prunes after the grace window
func (h *Heartbeat) beat(ctx context.Context) int {
	frame, err := NewPing().ToJSON()
	if err != nil {
		return 0
	}

	pingAt := time.Now()
	sent := h.registry.BroadcastAll(frame)

	timer := time.NewTimer(h.grace)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0
	case <-timer.C:
	}

	pruned := h.registry.PruneUnresponsive(pingAt)
	if pruned > 0 {
		h.logger.Info("heartbeat_pruned", "pinged", sent, "pruned", pruned)
	}
	return pruned
}
