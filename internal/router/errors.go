package router

import "github.com/systemx-switch/systemx/internal/transport"

// routeError maps a validation failure to an outbound ERROR frame. Returning
// one from a handler never tears down the connection -- the dispatch loop
// turns it into a frame and continues (spec §7).
type routeError struct {
	reason  string
	context string
	detail  string
}

func (e *routeError) Error() string { return e.reason }

func invalidPayload(context, detail string) *routeError {
	return &routeError{reason: "invalid_payload", context: context, detail: detail}
}

func notRegistered(context string) *routeError {
	return &routeError{reason: "not_registered", context: context}
}

func (e *routeError) Frame() transport.Frame {
	return transport.Frame{
		Type:    transport.FrameError,
		Reason:  e.reason,
		Context: e.context,
		Detail:  e.detail,
	}
}
