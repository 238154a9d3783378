// Package router implements SystemX's core frame dispatch and call state
// machine: the single component every inbound frame passes through.
package router

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/systemx-switch/systemx/internal/broadcast"
	"github.com/systemx-switch/systemx/internal/calltable"
	"github.com/systemx-switch/systemx/internal/config"
	"github.com/systemx-switch/systemx/internal/registry"
	"github.com/systemx-switch/systemx/internal/transport"
	"github.com/systemx-switch/systemx/internal/wake"
)

// Disconnect reasons (spec §7).
const (
	ReasonPeerDisconnected = "peer_disconnected"
	ReasonSleep            = "sleep"
	ReasonClientRequested  = "client_requested"
	ReasonShutdown         = "shutdown"
	ReasonReconfigured     = "reconfigured"
	ReasonTimeout          = "timeout"
	ReasonNormal           = "normal"
)

// FederationRouter resolves addresses this router does not own locally to
// a synthetic connection forwarding onto a federation peer (spec §4.11).
// No package in this module implements it: federation links install
// themselves as peer routes through REGISTER_PBX, which resolveRemote
// checks first. The interface lives here so router need not import
// federation.
type FederationRouter interface {
	ResolvePeer(address string) (*registry.Connection, bool)
}

// Router holds every shared table and dispatches inbound frames against
// them under a single mutex, per spec §5's "hold a mutex around the entire
// handler for one frame" option -- the same discipline the teacher applies
// to AppRouterService.mu around sessions/chats for the duration of one
// routeFrame call.
type Router struct {
	log *zap.Logger

	// mu serialises every frame handler and every timer callback, per
	// spec §5's single-dispatch-mutex option. calltable/broadcast/wake hold
	// no lock of their own and assume this one; the registry's own RWMutex
	// only covers reads made from outside dispatch.
	mu sync.Mutex

	cfg config.Config

	reg        *registry.Registry
	calls      *calltable.Table
	broadcasts *broadcast.Table
	wakeStore  *wake.Store
	wakeExec   wake.Executor

	metrics *Metrics

	federation FederationRouter

	// peerRoutes holds domain-suffix patterns installed by downstream
	// REGISTER_PBX frames (spec §4.11), mapping each pattern to the
	// synthetic connection that announced it.
	peerRoutes []peerRoute

	dialLimiterRate  float64
	dialLimiterBurst int
}

type peerRoute struct {
	pattern string
	conn    *registry.Connection
}

// Option configures optional Router collaborators at construction time.
type Option func(*Router)

// WithMetrics attaches a Metrics instance; omit to run without metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithWakeExecutor attaches the collaborator used for wake-on-ring attempts.
func WithWakeExecutor(e wake.Executor) Option {
	return func(r *Router) { r.wakeExec = e }
}

// WithFederationRouter attaches the collaborator consulted when a DIAL
// targets an address this router does not own locally.
func WithFederationRouter(f FederationRouter) Option {
	return func(r *Router) { r.federation = f }
}

// New builds a Router over empty tables.
func New(log *zap.Logger, cfg config.Config, opts ...Option) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{
		log:        log,
		cfg:        cfg,
		reg:        registry.New(),
		calls:      calltable.New(),
		broadcasts: broadcast.New(),
		wakeStore:  wake.NewStore(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.wakeExec == nil {
		r.wakeExec = wake.NoopExecutor{Log: log}
	}

	limit := cfg.DialRateLimit.MaxAttempts
	window := cfg.DialRateLimit.WindowMs
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = 60000
	}
	r.dialLimiterRate = float64(limit) / (float64(window) / 1000)
	r.dialLimiterBurst = limit

	return r
}

// Registry exposes the connection registry for tests.
func (r *Router) Registry() *registry.Registry { return r.reg }

// Calls exposes the call table for metrics and tests.
func (r *Router) Calls() *calltable.Table { return r.calls }

// Broadcasts exposes the broadcast table for metrics and tests. Every
// mutation to the table happens under r.mu from the dispatch loop, so
// callers outside that loop must not read it directly -- use
// BroadcastSessionFor instead.
func (r *Router) Broadcasts() *broadcast.Table { return r.broadcasts }

// BroadcastSessionFor returns the live callId for address's broadcast
// session, if one exists, taking r.mu the same way dispatch does. This is
// the safe way for a collaborator outside the dispatch loop (e.g. the
// log-broadcast sink, called synchronously from whatever goroutine emits a
// log line) to read broadcast-table state without racing the table's
// unsynchronized map underneath Open/Dispatch.
func (r *Router) BroadcastSessionFor(address string) (callID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session := r.broadcasts.ForBroadcaster(address)
	if session == nil {
		return "", false
	}
	return session.CallID, true
}

// WakeStore exposes the wake-on-ring store for federation and tests.
func (r *Router) WakeStore() *wake.Store { return r.wakeStore }

// Open runs one connection's lifecycle to completion: register it, drain
// its send queue through a dedicated sender goroutine, and pump inbound
// frames through Dispatch until the transport closes. It returns once the
// connection is fully torn down.
func (r *Router) Open(ctx context.Context, conn transport.Conn) {
	c := r.reg.Create(conn)
	r.metrics.incConnection()
	go r.sender(c)

	defer func() {
		r.lockedDisconnect(c, ReasonPeerDisconnected)
		r.metrics.decConnection()
	}()

	for {
		frame, err := conn.Recv(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return
			}
			r.log.Debug("recv failed, closing connection", zap.Error(err), zap.String("session_id", c.SessionID))
			return
		}

		start := time.Now()
		err = r.Dispatch(c, frame)
		r.metrics.observeLatency(string(frame.Type), time.Since(start))

		if err == nil {
			continue
		}
		var rerr *routeError
		if errors.As(err, &rerr) {
			r.metrics.recordFrameError(rerr.reason)
			r.push(c, rerr.Frame())
			continue
		}
		r.log.Error("unexpected dispatch error, tearing down connection",
			zap.Error(err), zap.String("session_id", c.SessionID))
		return
	}
}

// Dispatch routes one inbound frame to its handler. It is exported so
// FederationPeer can feed parsed peer frames through the same path a real
// transport would (spec §9: "avoids a second dispatch path"). Dispatch
// holds the router's single dispatch mutex for the duration of the call,
// so do not call it from within another locked path (e.g. from inside a
// timer callback already holding r.mu -- those call the unlocked
// handlers directly instead).
func (r *Router) Dispatch(c *registry.Connection, frame transport.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dispatchLocked(c, frame)
}

func (r *Router) dispatchLocked(c *registry.Connection, frame transport.Frame) error {
	switch frame.Type {
	case transport.FrameRegister:
		return r.handleRegister(c, frame)
	case transport.FrameUnregister:
		return r.handleUnregister(c, frame)
	case transport.FrameStatus:
		return r.handleStatus(c, frame)
	case transport.FrameHeartbeat:
		return r.handleHeartbeat(c, frame)
	case transport.FrameDial:
		return r.handleDial(c, frame)
	case transport.FrameAnswer:
		return r.handleAnswer(c, frame)
	case transport.FrameHangup:
		return r.handleHangup(c, frame)
	case transport.FrameMsg:
		return r.handleMsg(c, frame)
	case transport.FramePresence:
		return r.handlePresence(c, frame)
	case transport.FrameSleepAck:
		return r.handleSleepAck(c, frame)
	case transport.FrameRegisterPBX:
		return r.handleRegisterPBX(c, frame)
	case transport.FrameConnected:
		if c.Federation {
			return r.handleFederationConnected(c, frame)
		}
		return invalidPayload("UNKNOWN", "unrecognized frame type")
	case transport.FrameBusy:
		if c.Federation {
			return r.handleFederationBusy(c, frame)
		}
		return invalidPayload("UNKNOWN", "unrecognized frame type")
	default:
		return invalidPayload("UNKNOWN", "unrecognized frame type")
	}
}

// sender drains c's outbound queue in arrival order, serialised per
// connection (spec §5). It exits once c.Ctx is cancelled or the channel is
// closed by disconnect.
func (r *Router) sender(c *registry.Connection) {
	for {
		select {
		case <-c.Ctx.Done():
			return
		case frame, ok := <-c.SendCh:
			if !ok {
				return
			}
			sendCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := c.Conn.Send(sendCtx, frame)
			cancel()
			if err != nil {
				// Transport send failures are logged and otherwise ignored;
				// the heartbeat sweeper reconciles a dead peer (spec §7).
				r.log.Debug("transport send failed", zap.Error(err), zap.String("session_id", c.SessionID))
			}
		}
	}
}

// push enqueues frame for c without blocking dispatch. Federation
// connections never see REGISTERED_PBX or ERROR outbound, to prevent
// feedback loops across the peer link (spec §9).
func (r *Router) push(c *registry.Connection, frame transport.Frame) {
	if c.Federation && (frame.Type == transport.FrameRegisteredPBX || frame.Type == transport.FrameError) {
		return
	}
	select {
	case c.SendCh <- frame:
	default:
		r.log.Warn("send buffer full, dropping connection", zap.String("session_id", c.SessionID))
		c.Cancel()
	}
}
