package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/systemx-switch/systemx/internal/transport"
)

// Handler runs one connection's lifecycle to completion; it returns once
// the connection is torn down. The router package's Open method satisfies
// this signature.
type Handler func(ctx context.Context, conn transport.Conn)

// Server upgrades inbound HTTP connections on one path to WebSocket and
// hands each to handler, mirroring the teacher's single "/ws" mux route
// guarded by an Upgrader that accepts any origin (origin checks belong to
// a fronting proxy, not this layer).
type Server struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	handler  Handler
}

// NewServer builds a Server that dispatches every accepted connection to
// handler.
func NewServer(log *zap.Logger, handler Handler) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		handler: handler,
	}
}

// Mount registers the upgrade endpoint on router at path.
func (s *Server) Mount(router *mux.Router, path string) {
	router.HandleFunc(path, s.handleUpgrade)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err), zap.String("remote", r.RemoteAddr))
		return
	}

	conn := New(raw)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	WatchContext(ctx, conn)

	s.handler(ctx, conn)
}

// NewHTTPServer builds the *http.Server the caller runs ListenAndServe(TLS)
// on, with the same header-read timeout discipline the teacher applies to
// its admin/health listeners.
func NewHTTPServer(addr string, router *mux.Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}
}
