// Package broadcast implements broadcast-mode dial sessions: one
// broadcaster, many listeners sharing a single callId (spec §4.4).
package broadcast

import (
	"time"

	"github.com/systemx-switch/systemx/internal/registry"
)

// Session is one broadcast connection's fan-out session, created lazily on
// the first DIAL and destroyed when it empties or the broadcaster leaves.
type Session struct {
	CallID      string
	Broadcaster *registry.Connection
	Listeners   map[string]*registry.Connection // keyed by listener session id
	Metadata    map[string]any
	CreatedAt   time.Time
}

// HasListener reports whether sessionID already joined this session,
// backing the idempotent-rejoin rule in spec §4.4.
func (s *Session) HasListener(sessionID string) bool {
	_, ok := s.Listeners[sessionID]
	return ok
}
