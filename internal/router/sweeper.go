package router

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/systemx-switch/systemx/internal/registry"
)

// RunHeartbeatSweeper periodically evicts connections whose last heartbeat
// is older than heartbeatTimeoutMs, disconnecting them with reason timeout
// (spec §4.8). It blocks until ctx is cancelled.
func (r *Router) RunHeartbeatSweeper(ctx context.Context) {
	interval := time.Duration(r.cfg.Heartbeat.IntervalMs) * time.Millisecond
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepExpiredHeartbeats(time.Now())
		}
	}
}

func (r *Router) sweepExpiredHeartbeats(now time.Time) {
	timeout := time.Duration(r.cfg.Heartbeat.TimeoutMs) * time.Millisecond

	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*registry.Connection
	r.reg.AllSessions(func(c *registry.Connection) {
		if now.Sub(c.LastHeartbeatAt) <= timeout {
			return
		}
		expired = append(expired, c)
	})

	for _, c := range expired {
		r.log.Debug("evicting connection on heartbeat timeout",
			zap.String("session_id", c.SessionID), zap.String("address", c.Address))
		r.disconnect(c, ReasonTimeout)
		r.metrics.recordHeartbeatEviction()
	}
}
