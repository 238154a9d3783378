// Package calltable tracks point-to-point calls from ringing through to
// termination.
package calltable

import (
	"time"

	"github.com/systemx-switch/systemx/internal/registry"
)

// State is a Call's position in the ringing -> connected -> ended machine.
// There are no back-transitions (spec §4.3).
type State string

const (
	StateRinging   State = "ringing"
	StateConnected State = "connected"
	StateEnded     State = "ended"
)

// Call is one point-to-point session between a caller and callee.
type Call struct {
	ID     string
	Caller *registry.Connection
	Callee *registry.Connection
	State  State

	Metadata map[string]any

	StartedAt time.Time
	EndedAt   time.Time
	EndReason string
}

// Other returns the participant on the opposite side of conn, or nil if
// conn is not a participant.
func (c *Call) Other(conn *registry.Connection) *registry.Connection {
	switch conn {
	case c.Caller:
		return c.Callee
	case c.Callee:
		return c.Caller
	default:
		return nil
	}
}

// HasParticipant reports whether conn is the caller or callee.
func (c *Call) HasParticipant(conn *registry.Connection) bool {
	return conn == c.Caller || conn == c.Callee
}
