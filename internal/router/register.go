package router

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/systemx-switch/systemx/internal/address"
	"github.com/systemx-switch/systemx/internal/registry"
	"github.com/systemx-switch/systemx/internal/transport"
	"github.com/systemx-switch/systemx/internal/wake"
)

func (r *Router) handleRegister(c *registry.Connection, frame transport.Frame) error {
	if frame.Address == "" {
		r.push(c, transport.Frame{Type: transport.FrameRegisterFailed, Reason: "invalid_address"})
		return nil
	}
	if !address.Valid(frame.Address) {
		r.push(c, transport.Frame{Type: transport.FrameRegisterFailed, Reason: "invalid_address"})
		return nil
	}

	mode := transport.ConcurrencySingle
	maxListeners, maxSessions := 0, 0
	if frame.Concurrency != nil {
		if frame.Concurrency.Mode != "" {
			mode = frame.Concurrency.Mode
		}
		switch mode {
		case transport.ConcurrencySingle, transport.ConcurrencyBroadcast, transport.ConcurrencyParallel:
		default:
			return invalidPayload("REGISTER", "unknown concurrency mode")
		}
		if frame.Concurrency.MaxListeners != nil {
			if mode != transport.ConcurrencyBroadcast {
				return invalidPayload("REGISTER", "max_listeners only valid for broadcast concurrency")
			}
			if *frame.Concurrency.MaxListeners <= 0 {
				return invalidPayload("REGISTER", "max_listeners must be positive")
			}
			maxListeners = *frame.Concurrency.MaxListeners
		}
		sessionLimit := frame.Concurrency.MaxSessions
		if sessionLimit == nil {
			sessionLimit = frame.Concurrency.PoolSize
		}
		if sessionLimit != nil {
			if mode != transport.ConcurrencyParallel {
				return invalidPayload("REGISTER", "max_sessions only valid for parallel concurrency")
			}
			if *sessionLimit <= 0 {
				return invalidPayload("REGISTER", "max_sessions must be positive")
			}
			maxSessions = *sessionLimit
		}
	}

	wakeMode := registry.WakeModeNone
	var handler *transport.WakeHandler
	if frame.Mode == string(transport.ModeWakeOnRing) {
		wakeMode = registry.WakeModeWakeOnRing
		if frame.WakeHandler != nil {
			if err := validateWakeHandler(frame.WakeHandler); err != nil {
				return err
			}
			handler = frame.WakeHandler
		}
	} else if frame.Mode != "" && frame.Mode != string(transport.ModeNormal) {
		return invalidPayload("REGISTER", "unknown mode")
	}

	// If no handler was supplied but a stored profile exists for this
	// address, reinstate it in this same handler (spec §4.2, §8 invariant).
	if handler == nil {
		if profile, ok := r.wakeStore.Take(frame.Address); ok {
			h := profile.Handler
			handler = &h
			if wakeMode == registry.WakeModeNone {
				wakeMode = registry.WakeModeWakeOnRing
			}
		}
	}

	if err := r.reg.BindAddress(c, frame.Address); err != nil {
		r.push(c, transport.Frame{Type: transport.FrameRegisterFailed, Reason: "address_in_use"})
		return nil
	}

	if mode != transport.ConcurrencyBroadcast {
		if session := r.broadcasts.ForBroadcaster(c.Address); session != nil {
			r.teardownBroadcast(session, "re-register")
		}
	}

	if frame.Metadata != nil {
		c.Metadata = frame.Metadata
	}
	c.Concurrency = mode
	c.MaxListeners = maxListeners
	c.MaxSessions = maxSessions
	c.WakeMode = wakeMode
	c.WakeHandler = handler
	c.DialLimiter = rate.NewLimiter(rate.Limit(r.dialLimiterRate), r.dialLimiterBurst)

	r.push(c, transport.Frame{Type: transport.FrameRegistered, Address: c.Address, SessionID: c.SessionID})

	r.drainPendingWakes(c)
	return nil
}

func validateWakeHandler(h *transport.WakeHandler) error {
	if h.TimeoutSeconds <= 0 {
		return invalidPayload("REGISTER", "wake handler timeout_seconds must be positive")
	}
	switch h.Type {
	case "webhook":
		if h.URL == "" {
			return invalidPayload("REGISTER", "webhook wake handler requires a url")
		}
	case "spawn":
		if len(h.Command) == 0 {
			return invalidPayload("REGISTER", "spawn wake handler requires a non-empty command")
		}
	default:
		return invalidPayload("REGISTER", "unknown wake handler type")
	}
	return nil
}

// drainPendingWakes dequeues and starts as many PendingWakeCalls against c
// as it can accept, leaving whatever remains queued once c hits capacity (spec
// §4.2, §4.5).
func (r *Router) drainPendingWakes(c *registry.Connection) {
	for {
		if c.AtCapacity() {
			return
		}
		pending := r.wakeStore.Dequeue(c.Address)
		if pending == nil {
			return
		}
		if pending.Timer != nil {
			pending.Timer.Stop()
		}
		if pending.Caller.Ctx.Err() != nil {
			r.failPendingCall(pending, "caller_unavailable")
			continue
		}
		r.startCall(pending.Caller, c, pending.Metadata, pending.CallID)
	}
}

func (r *Router) handleUnregister(c *registry.Connection, frame transport.Frame) error {
	r.persistWakeProfile(c)
	r.disconnect(c, ReasonClientRequested)
	return nil
}

func (r *Router) handleStatus(c *registry.Connection, frame transport.Frame) error {
	switch registry.Status(frame.Status) {
	case registry.StatusAvailable, registry.StatusBusy, registry.StatusDND, registry.StatusAway:
	default:
		return invalidPayload("STATUS", "unknown status value")
	}
	c.SetExplicitStatus(registry.Status(frame.Status))

	if frame.AutoSleep != nil {
		if frame.AutoSleep.IdleTimeoutSeconds < 0 {
			return invalidPayload("STATUS", "idle_timeout_seconds must be >= 0")
		}
		c.AutoSleepIdleSeconds = frame.AutoSleep.IdleTimeoutSeconds
		c.AutoSleepWakeOnRing = frame.AutoSleep.WakeOnRing
		if c.AutoSleepWakeOnRing {
			r.armIdleTimer(c)
		} else {
			r.clearIdleTimers(c)
		}
	}
	return nil
}

func (r *Router) handleHeartbeat(c *registry.Connection, frame transport.Frame) error {
	c.LastHeartbeatAt = time.Now()
	if c.AutoSleepWakeOnRing {
		r.armIdleTimer(c)
	}
	r.push(c, transport.Frame{Type: transport.FrameHeartbeatAck, Timestamp: c.LastHeartbeatAt.Unix()})
	return nil
}

func (r *Router) handleSleepAck(c *registry.Connection, frame transport.Frame) error {
	if c.WakeMode != registry.WakeModeWakeOnRing {
		return invalidPayload("SLEEP_ACK", "wake_on_ring is not configured")
	}
	r.persistWakeProfile(c)
	r.disconnect(c, ReasonSleep)
	return nil
}

func (r *Router) persistWakeProfile(c *registry.Connection) {
	if c.WakeMode != registry.WakeModeWakeOnRing || c.WakeHandler == nil || c.Address == "" {
		return
	}
	r.wakeStore.Put(wake.Profile{Address: c.Address, Handler: *c.WakeHandler})
}
