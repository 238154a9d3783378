package wake

import "context"

// Executor performs the single async operation a wake attempt needs:
// resurrect the sleeping agent behind profile. It is fire-and-forget from
// the router's perspective (spec §5) -- the PendingCall's own timer owns
// the timeout path, and a successful wake only matters once the agent's
// subsequent REGISTER arrives.
type Executor interface {
	Wake(ctx context.Context, profile Profile) error
}
