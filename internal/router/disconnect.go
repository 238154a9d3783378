package router

import (
	"github.com/systemx-switch/systemx/internal/calltable"
	"github.com/systemx-switch/systemx/internal/registry"
	"github.com/systemx-switch/systemx/internal/transport"
)

// disconnect tears c down following the ordered steps of spec §4.9.
// It is safe to call more than once; subsequent calls are no-ops.
func (r *Router) disconnect(c *registry.Connection, reason string) {
	if c.Ctx.Err() != nil {
		return
	}

	r.clearIdleTimers(c)
	for callID, timer := range c.RingTimers {
		timer.Stop()
		delete(c.RingTimers, callID)
	}

	if reason == ReasonTimeout && c.WakeMode == registry.WakeModeWakeOnRing {
		r.persistWakeProfile(c)
	}

	r.removePeerRoutes(c)
	r.reg.Remove(c)

	for id := range c.ActiveCallIDs {
		r.teardownCallID(c, id, reason)
	}

	for _, pending := range r.wakeStore.RemoveByCaller(c) {
		r.failPendingCall(pending, reason)
	}

	// Tearing down c's own calls above may have re-armed its idle timer
	// (endCall rearms both participants once active-call-free); c is being
	// removed regardless, so cancel it once more before closing up.
	r.clearIdleTimers(c)

	c.Cancel()
	close(c.SendCh)
	_ = c.Conn.Close(4000, reason)

	r.metrics.setActiveCalls(r.calls.Len())
	r.metrics.setActiveBroadcasts(r.broadcasts.Len())
}

// teardownCallID releases one of c's active calls or broadcast
// participations by id, per the dispatch described in spec §4.9 step 4.
func (r *Router) teardownCallID(c *registry.Connection, callID, reason string) {
	if call := r.calls.Get(callID); call != nil {
		other := call.Other(c)
		r.endCall(call, reason)
		if other != nil {
			r.push(other, transport.Frame{Type: transport.FrameHangup, CallID: callID, Reason: reason})
		}
		return
	}
	if session := r.broadcasts.Get(callID); session != nil {
		if session.Broadcaster == c {
			r.teardownBroadcast(session, reason)
		} else {
			r.removeBroadcastListener(session, c, reason)
		}
	}
}

// endCall ends call and clears activeCallIds on both sides.
func (r *Router) endCall(call *calltable.Call, reason string) {
	r.calls.End(call, reason)
	call.Caller.RemoveCall(call.ID)
	call.Callee.RemoveCall(call.ID)
	r.rearmIdleTimer(call.Caller)
	r.rearmIdleTimer(call.Callee)
	r.metrics.setActiveCalls(r.calls.Len())
}

// rearmIdleTimer re-starts c's idle timer once it has gone active-call-free
// again, per spec §4.6's "becomes active again ... cancel and re-arm"
// symmetry: ending a call is the inverse transition.
func (r *Router) rearmIdleTimer(c *registry.Connection) {
	if c.AutoSleepWakeOnRing && len(c.ActiveCallIDs) == 0 {
		r.armIdleTimer(c)
	}
}
