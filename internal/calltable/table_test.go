package calltable

import (
	"testing"

	"github.com/systemx-switch/systemx/internal/registry"
	"github.com/systemx-switch/systemx/internal/transport"
)

func newConn() *registry.Connection {
	return registry.NewConnection(transport.NewFake(1))
}

func TestStartAndEnd(t *testing.T) {
	tbl := New()
	caller := newConn()
	callee := newConn()

	call := tbl.Start(caller, callee, nil, "")
	if call.State != StateRinging {
		t.Fatalf("new call state = %v, want ringing", call.State)
	}
	if tbl.Get(call.ID) != call {
		t.Fatalf("Get did not return the started call")
	}

	tbl.Connect(call)
	if call.State != StateConnected {
		t.Fatalf("state after Connect = %v, want connected", call.State)
	}

	tbl.End(call, "normal")
	if call.State != StateEnded {
		t.Fatalf("state after End = %v, want ended", call.State)
	}
	if tbl.Get(call.ID) != nil {
		t.Fatalf("Get should return nil once a call has ended and been released")
	}
}

func TestStartReusesGivenID(t *testing.T) {
	tbl := New()
	call := tbl.Start(newConn(), newConn(), nil, "pending-call-id")
	if call.ID != "pending-call-id" {
		t.Fatalf("call id = %q, want reused id", call.ID)
	}
}

func TestOtherAndHasParticipant(t *testing.T) {
	caller, callee, stranger := newConn(), newConn(), newConn()
	call := &Call{Caller: caller, Callee: callee}

	if call.Other(caller) != callee || call.Other(callee) != caller {
		t.Fatalf("Other() did not resolve the opposite participant")
	}
	if call.Other(stranger) != nil {
		t.Fatalf("Other() should be nil for a non-participant")
	}
	if !call.HasParticipant(caller) || call.HasParticipant(stranger) {
		t.Fatalf("HasParticipant() incorrect")
	}
}

func TestByConnection(t *testing.T) {
	tbl := New()
	a, b, c := newConn(), newConn(), newConn()
	call1 := tbl.Start(a, b, nil, "")
	tbl.Start(b, c, nil, "")

	calls := tbl.ByConnection(a)
	if len(calls) != 1 || calls[0] != call1 {
		t.Fatalf("ByConnection(a) = %v, want [call1]", calls)
	}

	calls = tbl.ByConnection(b)
	if len(calls) != 2 {
		t.Fatalf("ByConnection(b) len = %d, want 2", len(calls))
	}
}
