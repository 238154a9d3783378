package router

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/systemx-switch/systemx/internal/registry"
	"github.com/systemx-switch/systemx/internal/transport"
	"github.com/systemx-switch/systemx/internal/wake"
)

// startWakeAttempt enqueues a PendingWakeCall against an address with no
// live connection but a stored WakeProfile, marks caller busy, and invokes
// the WakeExecutor asynchronously (spec §4.5). The caller sees no immediate
// reply; it is answered later by a RING (on success) or BUSY (on failure).
func (r *Router) startWakeAttempt(caller *registry.Connection, calleeAddress string, metadata map[string]any, profile wake.Profile, reuseID string) {
	timeout := time.Duration(profile.Handler.TimeoutSeconds) * time.Second
	if timeout < 100*time.Millisecond {
		timeout = 100 * time.Millisecond
	}

	callID := reuseID
	if callID == "" {
		callID = uuid.NewString()
	}
	pending := &wake.PendingCall{
		CallID:        callID,
		Caller:        caller,
		CalleeAddress: calleeAddress,
		Metadata:      metadata,
		Profile:       profile,
		Deadline:      time.Now().Add(timeout),
	}
	r.wakeStore.Enqueue(pending)
	caller.AddCall(callID)
	r.clearIdleTimers(caller)
	pending.Timer = time.AfterFunc(timeout, func() { r.onWakeTimeout(pending) })

	go r.invokeWakeExecutor(pending)
}

// invokeWakeExecutor runs the configured WakeExecutor off the dispatch
// path, since it may block on a webhook call or process spawn; only the
// failure branch re-enters the router, and it does so through Dispatch's
// lock like any other asynchronous event.
func (r *Router) invokeWakeExecutor(pending *wake.PendingCall) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Until(pending.Deadline))
	defer cancel()

	if err := r.wakeExec.Wake(ctx, pending.Profile); err != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.failWakeAttempt(pending, "wake_failed")
	}
}

// onWakeTimeout fires when a pending wake attempt's timer expires before
// the agent re-registered.
func (r *Router) onWakeTimeout(pending *wake.PendingCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWakeAttempt(pending, "timeout")
}

// failWakeAttempt removes pending from its queue (if still present) and
// fails it with reason. Safe to call even if drainPendingWakes already
// dequeued it concurrently -- the caller's ActiveCallIDs check, and the
// check for a real call already started under the same id, make the
// second failure a no-op.
func (r *Router) failWakeAttempt(pending *wake.PendingCall, reason string) {
	if _, stillActive := pending.Caller.ActiveCallIDs[pending.CallID]; !stillActive {
		return
	}
	if r.calls.Get(pending.CallID) != nil {
		return
	}
	r.wakeStore.RemoveCall(pending)
	r.failPendingCall(pending, reason)
}

// failPendingCall answers a PendingWakeCall's caller with BUSY{reason} and
// releases the call slot it was holding (spec §4.5 failure modes).
func (r *Router) failPendingCall(pending *wake.PendingCall, reason string) {
	if pending.Timer != nil {
		pending.Timer.Stop()
	}
	pending.Caller.RemoveCall(pending.CallID)
	r.rearmIdleTimer(pending.Caller)
	r.metrics.recordWakeAttempt(reason)
	r.push(pending.Caller, transport.Frame{Type: transport.FrameBusy, CallID: pending.CallID, To: pending.CalleeAddress, Reason: reason})
}
