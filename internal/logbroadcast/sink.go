// Package logbroadcast turns the structured logger into one more client of
// the router: every log entry is republished as a MSG frame broadcast over
// a configured address, instead of a privileged hook into the logger
// itself (spec §9 design note).
package logbroadcast

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/systemx-switch/systemx/internal/logging"
	"github.com/systemx-switch/systemx/internal/router"
	"github.com/systemx-switch/systemx/internal/transport"
)

const (
	sendBuffer  = 256
	drainPeriod = 20 * time.Millisecond
)

// Sink implements logging.Sink by forwarding every entry onto an in-process
// connection registered as a broadcaster under address. It is registered
// with logging.NewLogger like any other sink; nothing downstream of the
// logger needs to know it exists.
type Sink struct {
	address string
	conn    *transport.Fake
	r       *router.Router
}

// New builds a Sink that will broadcast under address once Start runs.
func New(address string) *Sink {
	return &Sink{
		address: address,
		conn:    transport.NewFake(sendBuffer),
	}
}

// Start registers the sink's connection with r and drains every frame the
// router sends back until ctx is cancelled. Call once, before the first
// log entry that should reach listeners.
func (s *Sink) Start(ctx context.Context, r *router.Router, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	s.r = r

	go r.Open(ctx, s.conn)

	s.conn.Push(transport.Frame{
		Type:        transport.FrameRegister,
		Address:     s.address,
		Concurrency: &transport.Concurrency{Mode: transport.ConcurrencyBroadcast},
	})

	go s.drain(ctx, log)
}

// drain discards (or logs, for failures) everything the router pushes back
// to this connection -- REGISTERED on startup, BUSY if a listener count
// ever matters, HANGUP if the sweeper ever evicts it for missing
// heartbeats. A log sink has nothing useful to do with any of these beyond
// noticing the registration itself failed.
func (s *Sink) drain(ctx context.Context, log *zap.Logger) {
	ticker := time.NewTicker(drainPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				frame, ok := s.conn.TrySent()
				if !ok {
					break
				}
				if frame.Type == transport.FrameRegisterFailed || frame.Type == transport.FrameError {
					log.Warn("log broadcast sink frame rejected", zap.String("address", s.address), zap.String("reason", frame.Reason))
				}
			}
		}
	}
}

// Write implements logging.Sink. Entries logged before any listener has
// joined the broadcast are dropped: there is no session, hence no CallID,
// hence nothing for a MSG frame to attach to -- the same "zero listeners"
// case spec §4.4 already treats as a no-op for a live broadcaster.
func (s *Sink) Write(entry logging.Entry) {
	if s.r == nil {
		return
	}
	callID, ok := s.r.BroadcastSessionFor(s.address)
	if !ok {
		return
	}

	data, contentType := encode(entry)
	s.conn.Push(transport.Frame{
		Type:        transport.FrameMsg,
		CallID:      callID,
		Data:        data,
		ContentType: contentType,
	})
}
