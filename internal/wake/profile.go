// Package wake implements the wake-on-ring subsystem: a process-wide
// WakeProfile store plus a per-address FIFO of PendingWakeCall entries
// (spec §4.5).
package wake

import (
	"time"

	"github.com/systemx-switch/systemx/internal/registry"
	"github.com/systemx-switch/systemx/internal/transport"
)

// Profile is a sleeping connection's resurrection contract: {address,
// handler}, persisted between an agent's sleep and its next registration.
type Profile struct {
	Address string
	Handler transport.WakeHandler
}

// PendingCall is a DIAL that arrived for an address with no live
// connection but a stored Profile, queued until the agent wakes and
// re-registers, or the wake attempt fails.
type PendingCall struct {
	CallID        string
	Caller        *registry.Connection
	CalleeAddress string
	Metadata      map[string]any
	Profile       Profile
	Deadline      time.Time
	Timer         *time.Timer
}
