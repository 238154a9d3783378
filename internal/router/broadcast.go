package router

import (
	"github.com/systemx-switch/systemx/internal/broadcast"
	"github.com/systemx-switch/systemx/internal/registry"
	"github.com/systemx-switch/systemx/internal/transport"
)

// joinBroadcast handles a DIAL targeting a broadcast-mode callee (spec §4.4).
// The session is created lazily on the first join and is capacity-checked
// against maxListeners; a repeat join by the same session id is idempotent.
func (r *Router) joinBroadcast(caller, broadcaster *registry.Connection, frame transport.Frame) error {
	session := r.broadcasts.ForBroadcaster(broadcaster.Address)
	if session == nil {
		session = r.broadcasts.Create(broadcaster)
		broadcaster.AddCall(session.CallID)
		r.clearIdleTimers(broadcaster)
		r.metrics.setActiveBroadcasts(r.broadcasts.Len())
	}

	if session.HasListener(caller.SessionID) {
		r.push(caller, transport.Frame{Type: transport.FrameConnected, CallID: session.CallID, To: broadcaster.Address})
		return nil
	}

	if broadcaster.MaxListeners > 0 && len(session.Listeners) >= broadcaster.MaxListeners {
		r.push(caller, transport.Frame{Type: transport.FrameBusy, To: frame.To, Reason: "max_listeners_reached"})
		return nil
	}

	r.broadcasts.AddListener(session, caller)
	caller.AddCall(session.CallID)
	r.clearIdleTimers(caller)

	r.push(caller, transport.Frame{Type: transport.FrameConnected, CallID: session.CallID, To: broadcaster.Address})
	r.push(broadcaster, transport.Frame{Type: transport.FrameRing, From: caller.Address, CallID: session.CallID, Metadata: frame.Metadata})
	return nil
}

// hangupBroadcast routes a HANGUP against a broadcast callId to the
// broadcaster-teardown or single-listener-removal path.
func (r *Router) hangupBroadcast(c *registry.Connection, session *broadcast.Session, reason string) error {
	if c == session.Broadcaster {
		r.teardownBroadcast(session, reason)
		return nil
	}
	if session.HasListener(c.SessionID) {
		r.removeBroadcastListener(session, c, reason)
	}
	return nil
}

// relayBroadcastMsg fans a broadcaster's MSG out to every listener, or
// relays a listener's MSG to the broadcaster only (spec §4.4).
func (r *Router) relayBroadcastMsg(c *registry.Connection, session *broadcast.Session, frame transport.Frame, contentType string) error {
	if c == session.Broadcaster {
		for _, listener := range session.Listeners {
			r.push(listener, transport.Frame{
				Type: transport.FrameMsg, CallID: session.CallID, From: c.Address,
				Data: frame.Data, ContentType: contentType,
			})
		}
		return nil
	}
	if !session.HasListener(c.SessionID) {
		return nil
	}
	r.push(session.Broadcaster, transport.Frame{
		Type: transport.FrameMsg, CallID: session.CallID, From: c.Address,
		Data: frame.Data, ContentType: contentType,
	})
	return nil
}

// teardownBroadcast ends session entirely: every listener is hung up,
// activeCallIds cleared on both sides, and the session destroyed.
func (r *Router) teardownBroadcast(session *broadcast.Session, reason string) {
	for _, listener := range session.Listeners {
		listener.RemoveCall(session.CallID)
		r.rearmIdleTimer(listener)
		r.push(listener, transport.Frame{Type: transport.FrameHangup, CallID: session.CallID, Reason: reason})
	}
	session.Broadcaster.RemoveCall(session.CallID)
	r.rearmIdleTimer(session.Broadcaster)
	r.broadcasts.Destroy(session)
	r.metrics.setActiveBroadcasts(r.broadcasts.Len())
}

// removeBroadcastListener drops one listener out of session, notifying both
// it and the broadcaster, and tearing the session down if it empties.
func (r *Router) removeBroadcastListener(session *broadcast.Session, listener *registry.Connection, reason string) {
	listener.RemoveCall(session.CallID)
	r.broadcasts.RemoveListener(session, listener)
	r.rearmIdleTimer(listener)

	r.push(listener, transport.Frame{Type: transport.FrameHangup, CallID: session.CallID, Reason: reason})
	r.push(session.Broadcaster, transport.Frame{
		Type: transport.FrameHangup, CallID: session.CallID, From: listener.Address, Reason: reason,
	})
	r.metrics.setActiveBroadcasts(r.broadcasts.Len())
}
