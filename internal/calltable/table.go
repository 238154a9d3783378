package calltable

import (
	"time"

	"github.com/google/uuid"

	"github.com/systemx-switch/systemx/internal/registry"
)

// Table holds every in-flight point-to-point Call, keyed by call id.
// Like Registry, it is mutated exclusively from the router's dispatch path;
// the embedded map is not separately locked, matching the teacher's
// tieline map which lives inside AppRouterService and is guarded by that
// service's single mutex rather than its own.
type Table struct {
	calls map[string]*Call
}

// New builds an empty call table.
func New() *Table {
	return &Table{calls: make(map[string]*Call)}
}

// Start creates a new ringing Call between caller and callee, with a fresh
// id unless reuseID is non-empty (woken-call path, spec §4.5, reuses the
// PendingWakeCall's id so the caller's existing state tracking stays valid).
func (t *Table) Start(caller, callee *registry.Connection, metadata map[string]any, reuseID string) *Call {
	id := reuseID
	if id == "" {
		id = uuid.NewString()
	}
	call := &Call{
		ID:        id,
		Caller:    caller,
		Callee:    callee,
		State:     StateRinging,
		Metadata:  metadata,
		StartedAt: time.Now(),
	}
	t.calls[id] = call
	return call
}

// Get looks up a call by id, returning nil if it is absent or ended.
func (t *Table) Get(id string) *Call {
	c, ok := t.calls[id]
	if !ok || c.State == StateEnded {
		return nil
	}
	return c
}

// End transitions call to ended, recording reason, and releases it from
// the table (spec §4.3: "terminal state releases the record").
func (t *Table) End(call *Call, reason string) {
	call.State = StateEnded
	call.EndedAt = time.Now()
	call.EndReason = reason
	delete(t.calls, call.ID)
}

// Connect transitions call from ringing to connected. Callers must check
// call.State == StateRinging before calling this.
func (t *Table) Connect(call *Call) {
	call.State = StateConnected
}

// ByConnection returns every live call in which conn participates, used by
// disconnect handling to hang up all of a connection's calls.
func (t *Table) ByConnection(conn *registry.Connection) []*Call {
	var out []*Call
	for _, c := range t.calls {
		if c.HasParticipant(conn) {
			out = append(out, c)
		}
	}
	return out
}

// Len reports the number of live calls, for metrics.
func (t *Table) Len() int {
	return len(t.calls)
}
