// Package federation maintains SystemX's outbound link to a parent router
// (spec §4.11): an always-reconnecting WebSocket client that announces this
// router's routes upstream and installs the parent locally under the
// catch-all route "*" so unresolved DIAL traffic forwards rather than
// rejects. PRESENCE queries are answered from the local registry only.
package federation

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/systemx-switch/systemx/internal/config"
	"github.com/systemx-switch/systemx/internal/router"
	"github.com/systemx-switch/systemx/internal/transport/ws"
)

// Peer owns the reconnect loop for one configured upstream. It is
// grounded on the teacher's Dialer.startGossip goroutine: redial on
// failure, back off by a fixed interval between attempts, run until ctx
// is cancelled.
type Peer struct {
	log    *zap.Logger
	router *router.Router
	cfg    config.FederationConfig

	reconnectDelay    time.Duration
	heartbeatInterval time.Duration
	metrics           *Metrics

	// peerDomain is not independently configurable: a federation link has
	// exactly one upstream, so there is nothing to disambiguate it from,
	// and the router's own resolveRemote fallback only needs a catch-all
	// route pattern to decide "forward unresolved traffic upstream"
	// (DESIGN.md open question: FederationPeer handshake routes).
	peerDomain string
}

// Option configures optional Peer collaborators at construction time.
type Option func(*Peer)

// WithMetrics attaches a Metrics instance; omit to run without metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Peer) { p.metrics = m }
}

// New builds a Peer from cfg. It does nothing until Run is called.
func New(log *zap.Logger, r *router.Router, cfg config.FederationConfig, opts ...Option) *Peer {
	if log == nil {
		log = zap.NewNop()
	}

	reconnect := time.Duration(cfg.ReconnectDelayMs) * time.Millisecond
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}
	heartbeat := time.Duration(cfg.HeartbeatIntervalMs) * time.Millisecond
	if heartbeat <= 0 {
		heartbeat = 10 * time.Second
	}

	p := &Peer{
		log:               log,
		router:            r,
		cfg:               cfg,
		reconnectDelay:    reconnect,
		heartbeatInterval: heartbeat,
		peerDomain:        peerDomainFromURL(cfg.PeerURL),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run dials cfg.PeerURL, runs the link to completion, and redials after
// reconnectDelay until ctx is cancelled. It blocks; callers start it in
// its own goroutine.
func (p *Peer) Run(ctx context.Context) {
	if !p.cfg.Enabled || p.cfg.PeerURL == "" {
		return
	}

	first := true
	for ctx.Err() == nil {
		p.metrics.recordDialAttempt()
		conn, err := p.dial(ctx)
		if err != nil {
			p.metrics.recordDialFailure()
			p.log.Warn("federation dial failed", zap.String("peer_url", p.cfg.PeerURL), zap.Error(err))
			p.sleep(ctx)
			continue
		}

		if !first {
			p.metrics.recordReconnect()
		}
		first = false

		linkCtx, cancel := context.WithCancel(ctx)
		ws.WatchContext(linkCtx, conn)

		p.metrics.setConnected(true)
		p.router.OpenPeer(linkCtx, conn, router.PeerHandshake{
			PeerDomain:     p.peerDomain,
			PeerRoutes:     []string{"*"},
			LocalDomain:    p.cfg.LocalDomain,
			AnnounceRoutes: p.cfg.AnnounceRoutes,
			AuthToken:      p.cfg.AuthToken,
		}, p.heartbeatInterval)
		cancel()
		p.metrics.setConnected(false)

		if ctx.Err() != nil {
			return
		}
		p.log.Info("federation link closed, reconnecting", zap.String("peer_url", p.cfg.PeerURL), zap.Duration("delay", p.reconnectDelay))
		p.sleep(ctx)
	}
}

func (p *Peer) dial(ctx context.Context) (*ws.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.reconnectDelay)
	defer cancel()

	header := make(map[string][]string)
	if p.cfg.AuthToken != "" {
		header["Authorization"] = []string{"Bearer " + p.cfg.AuthToken}
	}

	raw, _, err := websocket.DefaultDialer.DialContext(dialCtx, p.cfg.PeerURL, header)
	if err != nil {
		return nil, err
	}
	return ws.New(raw), nil
}

func (p *Peer) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.reconnectDelay):
	}
}

// peerDomainFromURL derives a label for the synthetic REGISTER_PBX
// handshake from the peer's host, since the upstream itself is not asked
// to identify its domain before routes are installed.
func peerDomainFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "upstream"
	}
	return strings.ToLower(u.Hostname())
}
