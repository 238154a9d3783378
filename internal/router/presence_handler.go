package router

import (
	"github.com/systemx-switch/systemx/internal/presence"
	"github.com/systemx-switch/systemx/internal/registry"
	"github.com/systemx-switch/systemx/internal/transport"
)

// handlePresence answers a PRESENCE query against every other live
// registered connection (spec §4.10).
func (r *Router) handlePresence(c *registry.Connection, frame transport.Frame) error {
	if !c.Bound() {
		return notRegistered("PRESENCE")
	}
	if err := validatePresenceQuery(frame.Query); err != nil {
		return err
	}

	matches := presence.Collect(r.reg, c, frame.Query)
	results := make([]transport.PresenceResult, len(matches))
	for i, m := range matches {
		results[i] = transport.PresenceResult{Address: m.Address, Status: string(m.Status), Metadata: m.Metadata}
	}

	r.push(c, transport.Frame{Type: transport.FramePresenceResult, Addresses: results})
	return nil
}

func validatePresenceQuery(q *transport.PresenceQuery) error {
	if q == nil {
		return nil
	}
	if q.Near != nil && q.Near.RadiusKm < 0 {
		return invalidPayload("PRESENCE", "near.radius_km must be >= 0")
	}
	return nil
}
