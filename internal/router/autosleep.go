package router

import (
	"time"

	"github.com/systemx-switch/systemx/internal/registry"
	"github.com/systemx-switch/systemx/internal/transport"
)

// armIdleTimer (re)starts the idle timer for a wake-on-ring auto-sleep
// connection, cancelling whatever phase it was previously in (spec §4.6).
// A no-op once the connection has an active call: callers only invoke this
// from paths (HEARTBEAT, STATUS, rearmIdleTimer after a call ends) that
// already hold the dispatch lock.
func (r *Router) armIdleTimer(c *registry.Connection) {
	r.clearIdleTimers(c)
	if c.Ctx.Err() != nil || !c.AutoSleepWakeOnRing || len(c.ActiveCallIDs) > 0 {
		return
	}
	idle := time.Duration(c.AutoSleepIdleSeconds) * time.Second
	if idle <= 0 {
		return
	}
	c.IdleTimer = time.AfterFunc(idle, func() { r.onIdleTimeout(c) })
}

// clearIdleTimers cancels both phases of the auto-sleep sequence.
func (r *Router) clearIdleTimers(c *registry.Connection) {
	if c.IdleTimer != nil {
		c.IdleTimer.Stop()
		c.IdleTimer = nil
	}
	if c.WarningTimer != nil {
		c.WarningTimer.Stop()
		c.WarningTimer = nil
	}
}

// onIdleTimeout fires when a connection has been idle for its configured
// window: announce the pending sleep and arm the second, shorter timer.
func (r *Router) onIdleTimeout(c *registry.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.Ctx.Err() != nil || !c.AutoSleepWakeOnRing || len(c.ActiveCallIDs) > 0 {
		return
	}

	warning := proportionalWarning(c.AutoSleepIdleSeconds, r.cfg.AutoSleep.WarningMinMs, r.cfg.AutoSleep.WarningMaxMs)
	r.push(c, transport.Frame{
		Type: transport.FrameSleepPending, Reason: "idle_timeout",
		SecondsUntilSleep: int(warning / time.Second),
	})
	c.WarningTimer = time.AfterFunc(warning, func() { r.onSleepWarningElapsed(c) })
}

// onSleepWarningElapsed fires once the pre-sleep warning window elapses
// with no intervening activity: persist the wake profile and disconnect.
func (r *Router) onSleepWarningElapsed(c *registry.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.Ctx.Err() != nil || !c.AutoSleepWakeOnRing || len(c.ActiveCallIDs) > 0 {
		return
	}
	r.persistWakeProfile(c)
	r.disconnect(c, ReasonSleep)
}

// proportionalWarning scales the pre-sleep warning window with the
// configured idle timeout, clamped to [min, max] (spec §4.6: "200ms ...
// 5s, proportional to configured timeout").
func proportionalWarning(idleSeconds, minMs, maxMs int) time.Duration {
	if minMs <= 0 {
		minMs = 200
	}
	if maxMs <= 0 || maxMs < minMs {
		maxMs = 5000
	}
	// One tenth of the idle window, clamped into range.
	ms := idleSeconds * 100
	if ms < minMs {
		ms = minMs
	}
	if ms > maxMs {
		ms = maxMs
	}
	return time.Duration(ms) * time.Millisecond
}
