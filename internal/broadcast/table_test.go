package broadcast

import (
	"testing"

	"github.com/systemx-switch/systemx/internal/registry"
	"github.com/systemx-switch/systemx/internal/transport"
)

func newConn(address string) *registry.Connection {
	c := registry.NewConnection(transport.NewFake(1))
	c.Address = address
	return c
}

func TestCreateAndLookup(t *testing.T) {
	tbl := New()
	broadcaster := newConn("clock@t")

	s := tbl.Create(broadcaster)
	if tbl.Get(s.CallID) != s {
		t.Fatalf("Get(callID) did not return created session")
	}
	if tbl.ForBroadcaster("clock@t") != s {
		t.Fatalf("ForBroadcaster did not return created session")
	}
}

func TestAddRemoveListenerTearsDownWhenEmpty(t *testing.T) {
	tbl := New()
	broadcaster := newConn("clock@t")
	s := tbl.Create(broadcaster)

	l1 := newConn("l1@t")
	l2 := newConn("l2@t")
	tbl.AddListener(s, l1)
	tbl.AddListener(s, l2)

	if !s.HasListener(l1.SessionID) {
		t.Fatalf("expected l1 to have joined")
	}

	tbl.RemoveListener(s, l1)
	if tbl.Get(s.CallID) == nil {
		t.Fatalf("session should survive with one listener remaining")
	}

	tbl.RemoveListener(s, l2)
	if tbl.Get(s.CallID) != nil {
		t.Fatalf("session should be destroyed once the listener set empties")
	}
	if tbl.ForBroadcaster("clock@t") != nil {
		t.Fatalf("broadcaster index should be cleared on destroy")
	}
}

func TestDestroyClearsBothIndexes(t *testing.T) {
	tbl := New()
	broadcaster := newConn("clock@t")
	s := tbl.Create(broadcaster)

	tbl.Destroy(s)
	if tbl.Get(s.CallID) != nil || tbl.ForBroadcaster("clock@t") != nil {
		t.Fatalf("Destroy should remove both index entries")
	}
}
