package router

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/systemx-switch/systemx/internal/registry"
	"github.com/systemx-switch/systemx/internal/transport"
)

// PeerHandshake carries the two-way REGISTER_PBX exchange a federation
// peer performs on connect (spec §4.11).
type PeerHandshake struct {
	// PeerDomain and PeerRoutes describe the synthetic inbound REGISTER_PBX
	// injected on connect, installing the peer as a downstream announcing
	// these routes so unresolved local DIAL traffic forwards to it.
	PeerDomain string
	PeerRoutes []string

	// LocalDomain, AnnounceRoutes and AuthToken describe the real outbound
	// REGISTER_PBX sent to the peer, announcing this router's own routes.
	LocalDomain    string
	AnnounceRoutes []string
	AuthToken      string
}

// OpenPeer runs one federation peer link to completion: it installs the
// peer's routes locally exactly as handleRegisterPBX would for a real
// downstream, announces this router's own routes back over the wire, then
// pumps inbound frames through Dispatch, filtering the handshake
// acknowledgement types a peer link must never forward into local
// handling (spec §4.11). It mirrors Open's create/sender/recv-loop/
// disconnect shape so the peer link reuses the exact same teardown path a
// real client connection gets.
func (r *Router) OpenPeer(ctx context.Context, conn transport.Conn, hs PeerHandshake, heartbeatInterval time.Duration) {
	c := r.reg.Create(conn)
	r.metrics.incConnection()
	go r.sender(c)

	defer func() {
		r.lockedDisconnect(c, ReasonPeerDisconnected)
		r.metrics.decConnection()
	}()

	if err := r.Dispatch(c, transport.Frame{
		Type:   transport.FrameRegisterPBX,
		Domain: hs.PeerDomain,
		Routes: hs.PeerRoutes,
	}); err != nil {
		r.log.Error("federation handshake install failed", zap.Error(err))
		return
	}

	r.Push(c, transport.Frame{
		Type:     transport.FrameRegisterPBX,
		Domain:   hs.LocalDomain,
		Routes:   hs.AnnounceRoutes,
		Endpoint: "internal",
		Auth:     hs.AuthToken,
	})

	if heartbeatInterval > 0 {
		stop := make(chan struct{})
		defer close(stop)
		go r.runPeerHeartbeat(c, heartbeatInterval, stop)
	}

	for {
		frame, err := conn.Recv(ctx)
		if err != nil {
			return
		}

		switch frame.Type {
		case transport.FrameRegisteredPBX, transport.FrameRegisterPBXFailed,
			transport.FrameRegisterFailed, transport.FrameHeartbeatAck:
			continue
		}

		if err := r.Dispatch(c, frame); err != nil {
			r.log.Debug("federation peer frame dispatch error", zap.Error(err), zap.String("session_id", c.SessionID))
		}
	}
}

// runPeerHeartbeat sends a HEARTBEAT frame over c at interval until stop
// is closed, keeping the upstream peer from evicting this link on its own
// heartbeat sweep (spec §4.11 step 3).
func (r *Router) runPeerHeartbeat(c *registry.Connection, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.Push(c, transport.Frame{Type: transport.FrameHeartbeat})
		}
	}
}

// lockedDisconnect acquires the dispatch mutex and tears c down. Open and
// OpenPeer both defer this rather than the unlocked disconnect, since
// their receive loops call Dispatch (which takes the lock itself and
// releases it between iterations) rather than holding it for the whole
// connection lifetime.
func (r *Router) lockedDisconnect(c *registry.Connection, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnect(c, reason)
}

// Push enqueues frame for delivery over c's transport without going
// through Dispatch, for collaborators (the federation heartbeat ticker)
// that emit frames outside the normal inbound-frame handling path.
func (r *Router) Push(c *registry.Connection, frame transport.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.push(c, frame)
}
