package router

import (
	"go.uber.org/zap"

	"github.com/systemx-switch/systemx/internal/registry"
	"github.com/systemx-switch/systemx/internal/routematch"
	"github.com/systemx-switch/systemx/internal/transport"
)

// handleRegisterPBX accepts a downstream router's route announcement
// (spec §4.11). The announcing connection becomes a federation connection:
// its REGISTERED_PBX/ERROR outbound frames are suppressed, and its
// announced patterns are installed so unresolved local DIALs can be
// forwarded to it instead of rejected.
func (r *Router) handleRegisterPBX(c *registry.Connection, frame transport.Frame) error {
	if frame.Domain == "" {
		r.push(c, transport.Frame{Type: transport.FrameRegisterPBXFailed, Reason: "invalid_payload"})
		return nil
	}

	routes := frame.Routes
	if len(routes) == 0 {
		routes = []string{frame.Domain}
	}

	c.Federation = true
	for _, pattern := range routes {
		r.peerRoutes = append(r.peerRoutes, peerRoute{pattern: pattern, conn: c})
	}

	r.log.Info("installed peer routes",
		zap.String("domain", frame.Domain), zap.Strings("routes", routes), zap.String("session_id", c.SessionID))

	r.push(c, transport.Frame{Type: transport.FrameRegisteredPBX, Domain: frame.Domain})
	return nil
}

// removePeerRoutes drops every route pattern installed by conn, called on
// disconnect.
func (r *Router) removePeerRoutes(conn *registry.Connection) {
	if len(r.peerRoutes) == 0 {
		return
	}
	kept := r.peerRoutes[:0]
	for _, pr := range r.peerRoutes {
		if pr.conn != conn {
			kept = append(kept, pr)
		}
	}
	r.peerRoutes = kept
}

// resolveRemote looks up a connection to forward an unresolved address to:
// first a downstream peer whose announced routes match, then the upstream
// FederationRouter if one is attached (spec §4.11: "if a matching peer
// connection exists, forward rather than reject").
func (r *Router) resolveRemote(toAddress string) (*registry.Connection, bool) {
	for _, pr := range r.peerRoutes {
		if routematch.Match(pr.pattern, toAddress) {
			return pr.conn, true
		}
	}
	if r.federation != nil {
		return r.federation.ResolvePeer(toAddress)
	}
	return nil, false
}
