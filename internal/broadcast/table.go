package broadcast

import (
	"time"

	"github.com/google/uuid"

	"github.com/systemx-switch/systemx/internal/registry"
)

// Table holds every live broadcast Session, keyed both by the
// broadcaster's address and by callId so HANGUP/MSG lookups (which only
// carry a callId) resolve in one step, per the teacher's tieline-by-id
// pattern generalized to broadcast's extra by-broadcaster lookup.
type Table struct {
	byCallID      map[string]*Session
	byBroadcaster map[string]*Session // keyed by broadcaster address
}

// New builds an empty broadcast table.
func New() *Table {
	return &Table{
		byCallID:      make(map[string]*Session),
		byBroadcaster: make(map[string]*Session),
	}
}

// Get looks up a session by callId.
func (t *Table) Get(callID string) *Session {
	return t.byCallID[callID]
}

// ForBroadcaster looks up the (at most one) session owned by broadcaster's
// address, per spec §4.4: "a broadcast-registered address has at most one
// BroadcastSession".
func (t *Table) ForBroadcaster(address string) *Session {
	return t.byBroadcaster[address]
}

// Create lazily allocates a session for broadcaster.
func (t *Table) Create(broadcaster *registry.Connection) *Session {
	s := &Session{
		CallID:      uuid.NewString(),
		Broadcaster: broadcaster,
		Listeners:   make(map[string]*registry.Connection),
		CreatedAt:   time.Now(),
	}
	t.byCallID[s.CallID] = s
	t.byBroadcaster[broadcaster.Address] = s
	return s
}

// AddListener inserts listener into s. Callers must have already checked
// capacity and idempotency.
func (t *Table) AddListener(s *Session, listener *registry.Connection) {
	s.Listeners[listener.SessionID] = listener
}

// RemoveListener removes listener from s, tearing the session down if the
// listener set becomes empty.
func (t *Table) RemoveListener(s *Session, listener *registry.Connection) {
	delete(s.Listeners, listener.SessionID)
	if len(s.Listeners) == 0 {
		t.Destroy(s)
	}
}

// Destroy removes s from both indexes.
func (t *Table) Destroy(s *Session) {
	delete(t.byCallID, s.CallID)
	if t.byBroadcaster[s.Broadcaster.Address] == s {
		delete(t.byBroadcaster, s.Broadcaster.Address)
	}
}

// Len reports the number of live sessions, for metrics.
func (t *Table) Len() int {
	return len(t.byCallID)
}
