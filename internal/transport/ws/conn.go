// Package ws adapts gorilla/websocket to the transport.Conn contract, for
// both the public listener and the outbound federation peer link.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/systemx-switch/systemx/internal/transport"
)

const writeTimeout = 10 * time.Second

// Conn wraps one *websocket.Conn. Gorilla forbids concurrent writers on a
// single connection, so Send serialises through writeMu the same way the
// teacher's wsClient.send does.
type Conn struct {
	ws *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// New wraps an already-established websocket connection, either from a
// server-side upgrade or a client-side dial.
func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Send implements transport.Conn.
func (c *Conn) Send(ctx context.Context, frame transport.Frame) error {
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteJSON(frame)
}

// Recv implements transport.Conn. ctx cancellation does not itself unblock
// a pending read (gorilla has no context-aware ReadJSON); callers that need
// ctx-driven teardown close the Conn from a separate goroutine watching
// ctx.Done, which is how the federation dialer unwinds a stuck peer link.
func (c *Conn) Recv(ctx context.Context) (transport.Frame, error) {
	var frame transport.Frame
	if err := c.ws.ReadJSON(&frame); err != nil {
		return transport.Frame{}, err
	}
	return frame, nil
}

// Close implements transport.Conn. Safe to call more than once.
func (c *Conn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// WatchContext closes c as soon as ctx is done, unblocking a pending Recv.
// Callers that pass a long-lived ctx to Recv in a loop should start this
// once per connection so cancellation actually tears down the socket.
func WatchContext(ctx context.Context, c *Conn) {
	go func() {
		<-ctx.Done()
		_ = c.Close(websocket.CloseGoingAway, "context canceled")
	}()
}
