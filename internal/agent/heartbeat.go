package agent

import (
	"context"
	"log/slog"
	"time"

	"entice/internal/domain"
	"entice/internal/metrics"
)

// HeartbeatConfig configures the periodic tracked chat refresh.
type HeartbeatConfig struct {
	Interval time.Duration
	Store    domain.ChatStore
	Logger   *slog.Logger
}

// Heartbeat recomputes the tracked chat gauge from the store on a timer, so
// the gauge stays correct when rows change outside the bot.
type Heartbeat struct {
	interval time.Duration
	store    domain.ChatStore
	logger   *slog.Logger
}

// NewHeartbeat creates a heartbeat. Intervals under one second become one minute.
func NewHeartbeat(cfg HeartbeatConfig) *Heartbeat {
	if cfg.Interval < time.Second {
		cfg.Interval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Heartbeat{
		interval: cfg.Interval,
		store:    cfg.Store,
		logger:   cfg.Logger,
	}
}

// Start refreshes once, then on every tick. Blocks until ctx is cancelled.
func (h *Heartbeat) Start(ctx context.Context) {
	h.logger.Info("heartbeat started", "interval", h.interval)
	h.refresh(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("heartbeat stopped")
			return
		case <-ticker.C:
			h.refresh(ctx)
		}
	}
}

func (h *Heartbeat) refresh(ctx context.Context) {
	chats, err := h.store.LoadChats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			h.logger.Warn("heartbeat failed to load chats", "err", err)
		}
		return
	}
	metrics.TrackedChats.Set(int64(len(chats)))
	h.logger.Debug("heartbeat", "tracked_chats", len(chats))
}
