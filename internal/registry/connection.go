// Package registry tracks live connections and the addresses bound to them.
package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/systemx-switch/systemx/internal/transport"
)

// sendBufferSize bounds the per-connection outbound queue, mirroring the
// teacher's sendCh buffering.
const sendBufferSize = 32

// Status is a connection's advertised availability.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
	StatusDND       Status = "dnd"
	StatusAway      Status = "away"
)

// WakeMode selects whether a sleeping connection can be resurrected by a
// future DIAL.
type WakeMode string

const (
	WakeModeNone       WakeMode = "none"
	WakeModeWakeOnRing WakeMode = "wake_on_ring"
)

// Connection is one transport session, bound or unbound to an address.
// All mutation happens under the owning Router's single dispatch lock;
// Connection itself holds no lock of its own, matching the teacher's
// tieline/chatParticipant shape of plain structs mutated under the
// router's mutex rather than self-synchronizing objects.
type Connection struct {
	SessionID string
	Conn      transport.Conn

	Address  string
	Status   Status
	Metadata map[string]any

	Concurrency  transport.ConcurrencyMode
	MaxListeners int
	MaxSessions  int

	ActiveCallIDs map[string]struct{}

	AutoSleepIdleSeconds int
	AutoSleepWakeOnRing  bool

	WakeMode    WakeMode
	WakeHandler *transport.WakeHandler

	LastHeartbeatAt time.Time

	// ExplicitStatus holds the last status a client set via an explicit
	// STATUS frame (dnd/away/busy/available), so recomputeStatus can
	// restore it once ActiveCallIDs drains back to empty rather than
	// getting stuck on whatever value happened to be live at the time.
	// NewConnection initialises it to StatusAvailable, matching a
	// connection that has never sent STATUS.
	ExplicitStatus Status

	// IdleTimer and WarningTimer back auto-sleep (§4.6); RingTimers map
	// callId to its ring-timeout timer for calls where this connection is
	// the callee. Owned and cancelled exclusively by the router dispatch
	// loop.
	IdleTimer    *time.Timer
	WarningTimer *time.Timer
	RingTimers   map[string]*time.Timer

	// DialLimiter backs the per-session dial rate limiter (§4.7): a token
	// bucket refilling at maxAttempts per window, burst maxAttempts.
	DialLimiter *rate.Limiter

	// Federation marks a synthetic connection created for a peer link
	// (§4.11); the router suppresses REGISTERED_PBX/ERROR frames outbound
	// on such connections to prevent feedback loops.
	Federation bool

	// SendCh is the outbound frame queue drained by a dedicated sender
	// goroutine, so dispatch never blocks on transport I/O and per-
	// destination emission order is preserved (spec §5).
	SendCh chan transport.Frame
	Ctx    context.Context
	Cancel context.CancelFunc
}

// NewConnection allocates a fresh, unbound connection wrapping conn.
func NewConnection(conn transport.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		SessionID:       uuid.NewString(),
		Conn:            conn,
		Status:          StatusAvailable,
		ExplicitStatus:  StatusAvailable,
		Concurrency:     transport.ConcurrencySingle,
		ActiveCallIDs:   make(map[string]struct{}),
		RingTimers:      make(map[string]*time.Timer),
		WakeMode:        WakeModeNone,
		LastHeartbeatAt: time.Now(),
		SendCh:          make(chan transport.Frame, sendBufferSize),
		Ctx:             ctx,
		Cancel:          cancel,
	}
}

// Bound reports whether the connection currently owns an address.
func (c *Connection) Bound() bool {
	return c.Address != ""
}

// AddCall records callID as active and recomputes derived status.
func (c *Connection) AddCall(callID string) {
	c.ActiveCallIDs[callID] = struct{}{}
	c.recomputeStatus()
}

// RemoveCall drops callID and recomputes derived status.
func (c *Connection) RemoveCall(callID string) {
	delete(c.ActiveCallIDs, callID)
	c.recomputeStatus()
}

// recomputeStatus applies the invariant: status=busy iff ActiveCallIDs is
// non-empty OR an explicit override is active; otherwise the last
// client-set status (available, dnd, or away).
func (c *Connection) recomputeStatus() {
	if len(c.ActiveCallIDs) > 0 {
		c.Status = StatusBusy
		return
	}
	c.Status = c.ExplicitStatus
}

// SetExplicitStatus applies a client-issued STATUS value.
func (c *Connection) SetExplicitStatus(s Status) {
	c.ExplicitStatus = s
	if len(c.ActiveCallIDs) > 0 {
		c.Status = StatusBusy
		return
	}
	c.Status = s
}

// AtCapacity reports whether this connection can accept one more dial given
// its concurrency mode and configured caps.
func (c *Connection) AtCapacity() bool {
	switch c.Concurrency {
	case transport.ConcurrencyParallel:
		max := c.MaxSessions
		if max <= 0 {
			max = 1
		}
		return len(c.ActiveCallIDs) >= max
	case transport.ConcurrencyBroadcast:
		return false // capacity enforced by BroadcastTable against maxListeners
	default: // single
		return len(c.ActiveCallIDs) > 0
	}
}
