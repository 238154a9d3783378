package router

import (
	"time"

	"github.com/systemx-switch/systemx/internal/calltable"
	"github.com/systemx-switch/systemx/internal/registry"
	"github.com/systemx-switch/systemx/internal/transport"
)

func (r *Router) handleDial(caller *registry.Connection, frame transport.Frame) error {
	if !caller.Bound() && !caller.Federation {
		return notRegistered("DIAL")
	}
	if frame.To == "" {
		return invalidPayload("DIAL", "to is required")
	}
	if caller.DialLimiter != nil && !caller.DialLimiter.Allow() {
		r.push(caller, transport.Frame{Type: transport.FrameError, Reason: "rate_limited", Context: "DIAL"})
		return nil
	}

	// A DIAL arriving over a federation link carries the relaying hop's
	// call id in CallID; reusing it end-to-end is what lets a CONNECTED or
	// BUSY reply correlate back to the matching relay Call record without
	// a separate translation table (spec §4.11). An ordinary client's
	// CallID is never honoured this way, so it cannot collide with or
	// hijack another live call's id.
	reuseID := ""
	if caller.Federation {
		reuseID = frame.CallID
	}

	callee, ok := r.reg.ByAddress(frame.To)
	if !ok {
		return r.dialUnknownAddress(caller, frame, reuseID)
	}

	if callee == caller {
		r.push(caller, transport.Frame{Type: transport.FrameBusy, CallID: reuseID, To: frame.To, Reason: "already_in_call"})
		return nil
	}
	switch callee.Status {
	case registry.StatusDND:
		r.push(caller, transport.Frame{Type: transport.FrameBusy, CallID: reuseID, To: frame.To, Reason: "dnd"})
		return nil
	case registry.StatusAway:
		r.push(caller, transport.Frame{Type: transport.FrameBusy, CallID: reuseID, To: frame.To, Reason: "away"})
		return nil
	case registry.StatusBusy:
		if callee.ExplicitStatus == registry.StatusBusy && len(callee.ActiveCallIDs) == 0 {
			r.push(caller, transport.Frame{Type: transport.FrameBusy, CallID: reuseID, To: frame.To, Reason: "busy"})
			return nil
		}
	}

	switch callee.Concurrency {
	case transport.ConcurrencyBroadcast:
		return r.joinBroadcast(caller, callee, frame)
	case transport.ConcurrencyParallel:
		max := callee.MaxSessions
		if max <= 0 {
			max = 1
		}
		if len(callee.ActiveCallIDs) >= max {
			r.push(caller, transport.Frame{Type: transport.FrameBusy, CallID: reuseID, To: frame.To, Reason: "max_sessions_reached"})
			return nil
		}
		r.startCall(caller, callee, frame.Metadata, reuseID)
		return nil
	default: // single
		if len(callee.ActiveCallIDs) > 0 {
			r.push(caller, transport.Frame{Type: transport.FrameBusy, CallID: reuseID, To: frame.To, Reason: "already_in_call"})
			return nil
		}
		r.startCall(caller, callee, frame.Metadata, reuseID)
		return nil
	}
}

// dialUnknownAddress handles a DIAL whose target has no live local
// connection: first wake-on-ring (§4.5), then federation pass-through
// (§4.11), finally a plain BUSY{no_such_address}.
func (r *Router) dialUnknownAddress(caller *registry.Connection, frame transport.Frame, reuseID string) error {
	if profile, ok := r.wakeStore.Peek(frame.To); ok {
		r.startWakeAttempt(caller, frame.To, frame.Metadata, profile, reuseID)
		return nil
	}
	if remote, ok := r.resolveRemote(frame.To); ok {
		r.relayDial(caller, remote, frame, reuseID)
		return nil
	}
	r.push(caller, transport.Frame{Type: transport.FrameBusy, CallID: reuseID, To: frame.To, Reason: "no_such_address"})
	return nil
}

// relayDial opens a local Call record pairing caller with remote -- the
// synthetic connection standing in for the far side of a federation link --
// under callID (fresh, unless the DIAL is itself mid-relay and already
// carries one), then forwards the DIAL with that id attached. The record
// is what lets a later CONNECTED or BUSY arriving back over remote be
// routed to caller instead of falling through as an unrecognized frame
// (spec §4.11).
func (r *Router) relayDial(caller, remote *registry.Connection, frame transport.Frame, callID string) {
	call := r.calls.Start(caller, remote, frame.Metadata, callID)
	caller.AddCall(call.ID)
	remote.AddCall(call.ID)
	r.clearIdleTimers(caller)
	r.metrics.setActiveCalls(r.calls.Len())

	out := frame
	out.CallID = call.ID
	out.From = caller.Address
	r.push(remote, out)
}

// startCall creates a ringing Call, marks both sides busy, and arms the
// ring timeout on the callee (spec §4.3).
func (r *Router) startCall(caller, callee *registry.Connection, metadata map[string]any, reuseCallID string) *calltable.Call {
	call := r.calls.Start(caller, callee, metadata, reuseCallID)
	caller.AddCall(call.ID)
	callee.AddCall(call.ID)
	r.clearIdleTimers(caller)
	r.clearIdleTimers(callee)

	r.push(callee, transport.Frame{Type: transport.FrameRing, From: caller.Address, CallID: call.ID, Metadata: metadata})

	timeout := time.Duration(r.cfg.Call.RingingTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callee.RingTimers[call.ID] = time.AfterFunc(timeout, func() { r.onRingTimeout(call.ID) })

	r.metrics.setActiveCalls(r.calls.Len())
	return call
}

func (r *Router) onRingTimeout(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := r.calls.Get(callID)
	if call == nil || call.State != calltable.StateRinging {
		return
	}
	delete(call.Callee.RingTimers, callID)
	r.endCall(call, ReasonTimeout)
	r.metrics.recordRingTimeout()

	r.push(call.Caller, transport.Frame{Type: transport.FrameBusy, CallID: callID, To: call.Callee.Address, Reason: "timeout"})
	r.push(call.Callee, transport.Frame{Type: transport.FrameHangup, CallID: callID, Reason: "timeout"})
}

// handleFederationConnected processes a CONNECTED frame arriving inbound
// over a federation link: the far router's reply to a DIAL this hop
// relayed. It is never sent by an ordinary client, so dispatchLocked routes
// it here only when c.Federation is set (spec §4.11).
func (r *Router) handleFederationConnected(c *registry.Connection, frame transport.Frame) error {
	call := r.calls.Get(frame.CallID)
	if call == nil || call.Callee != c || call.State != calltable.StateRinging {
		return nil
	}
	r.calls.Connect(call)
	r.push(call.Caller, transport.Frame{Type: transport.FrameConnected, CallID: call.ID, To: frame.To})
	return nil
}

// handleFederationBusy processes a BUSY frame arriving inbound over a
// federation link -- the far router declining or failing a relayed DIAL --
// and forwards it to the real local caller, releasing the relay Call.
func (r *Router) handleFederationBusy(c *registry.Connection, frame transport.Frame) error {
	call := r.calls.Get(frame.CallID)
	if call == nil || call.Callee != c {
		return nil
	}
	r.endCall(call, frame.Reason)
	r.push(call.Caller, transport.Frame{Type: transport.FrameBusy, To: frame.To, Reason: frame.Reason})
	return nil
}

func (r *Router) handleAnswer(c *registry.Connection, frame transport.Frame) error {
	if frame.CallID == "" {
		return invalidPayload("ANSWER", "call_id is required")
	}
	call := r.calls.Get(frame.CallID)
	if call == nil || call.Callee != c || call.State != calltable.StateRinging {
		return nil // unknown callId or wrong sender: idempotent no-op (spec §4.3)
	}

	if timer, ok := c.RingTimers[frame.CallID]; ok {
		timer.Stop()
		delete(c.RingTimers, frame.CallID)
	}
	r.calls.Connect(call)
	r.push(call.Caller, transport.Frame{Type: transport.FrameConnected, CallID: call.ID, To: call.Callee.Address})
	return nil
}

func (r *Router) handleHangup(c *registry.Connection, frame transport.Frame) error {
	if frame.CallID == "" {
		return invalidPayload("HANGUP", "call_id is required")
	}
	reason := frame.Reason
	if reason == "" {
		reason = ReasonNormal
	}

	if session := r.broadcasts.Get(frame.CallID); session != nil {
		return r.hangupBroadcast(c, session, reason)
	}

	call := r.calls.Get(frame.CallID)
	if call == nil || !call.HasParticipant(c) {
		return nil // not a participant of an existing non-ended call: no-op
	}

	other := call.Other(c)
	if timer, ok := call.Callee.RingTimers[call.ID]; ok {
		timer.Stop()
		delete(call.Callee.RingTimers, call.ID)
	}
	r.endCall(call, reason)
	r.push(other, transport.Frame{Type: transport.FrameHangup, CallID: call.ID, Reason: reason})
	return nil
}

func (r *Router) handleMsg(c *registry.Connection, frame transport.Frame) error {
	if frame.CallID == "" || frame.Data == "" {
		return invalidPayload("MSG", "call_id and data are required")
	}
	contentType := frame.ContentType
	if contentType == "" {
		contentType = "text"
	}
	switch contentType {
	case "text", "json", "binary":
	default:
		return invalidPayload("MSG", "unknown content_type")
	}

	if session := r.broadcasts.Get(frame.CallID); session != nil {
		return r.relayBroadcastMsg(c, session, frame, contentType)
	}

	call := r.calls.Get(frame.CallID)
	if call == nil || !call.HasParticipant(c) || call.State != calltable.StateConnected {
		return nil
	}
	other := call.Other(c)
	r.push(other, transport.Frame{
		Type: transport.FrameMsg, CallID: call.ID, From: c.Address,
		Data: frame.Data, ContentType: contentType,
	})
	return nil
}
