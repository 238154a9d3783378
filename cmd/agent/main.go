// cmd/agent is an interactive demo client: it registers an address with a
// running router and lets a human drive DIAL/ANSWER/MSG/HANGUP from a
// readline prompt, the same role the teacher's cmd/mockapp played against
// its own gRPC wire protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/chzyer/readline"
	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/systemx-switch/systemx/internal/transport"
	"github.com/systemx-switch/systemx/internal/transport/ws"
)

func main() {
	routerURL := flag.String("router", "ws://127.0.0.1:8443/ws", "WebSocket URL of the router's listener")
	address := flag.String("address", "", "Address to register (e.g. agent@example.tld)")
	flag.Parse()

	if *address == "" {
		log.Fatal("-address is required")
	}

	raw, _, err := websocket.DefaultDialer.Dial(*routerURL, nil)
	if err != nil {
		log.Fatalf("dial router: %v", err)
	}
	conn := ws.New(raw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ws.WatchContext(ctx, conn)

	if err := conn.Send(ctx, transport.Frame{Type: transport.FrameRegister, Address: *address}); err != nil {
		log.Fatalf("send REGISTER: %v", err)
	}
	reply, err := conn.Recv(ctx)
	if err != nil {
		log.Fatalf("recv REGISTER reply: %v", err)
	}
	if reply.Type != transport.FrameRegistered {
		log.Fatalf("registration failed: %+v", reply)
	}

	rl, err := readline.New(*address + "> ")
	if err != nil {
		log.Fatalf("init console: %v", err)
	}
	defer rl.Close()

	agent := &agent{address: *address, conn: conn, rl: rl, activeCallID: ""}
	go agent.recvLoop(ctx, cancel)
	agent.runCommandLoop(ctx)
}

type agent struct {
	address      string
	conn         *ws.Conn
	rl           *readline.Instance
	activeCallID string
}

func (a *agent) println(format string, args ...any) {
	fmt.Fprintf(a.rl.Stdout(), "\r"+format+"\n", args...)
	a.rl.Refresh()
}

// recvLoop prints every frame the router pushes until the connection
// closes, tracking the most recently seen callId so command shorthand
// ("msg", "hangup" with no id) can default to the call in progress.
func (a *agent) recvLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		frame, err := a.conn.Recv(ctx)
		if err != nil {
			if err != io.EOF {
				a.println("connection closed: %v", err)
			}
			return
		}
		if frame.CallID != "" {
			a.activeCallID = frame.CallID
		}
		a.println("<- %s %s", frame.Type, summarize(frame))
	}
}

func summarize(f transport.Frame) string {
	var parts []string
	if f.From != "" {
		parts = append(parts, "from="+f.From)
	}
	if f.To != "" {
		parts = append(parts, "to="+f.To)
	}
	if f.CallID != "" {
		parts = append(parts, "call_id="+f.CallID)
	}
	if f.Reason != "" {
		parts = append(parts, "reason="+f.Reason)
	}
	if f.Data != "" {
		parts = append(parts, "data="+f.Data)
	}
	return strings.Join(parts, " ")
}

func (a *agent) runCommandLoop(ctx context.Context) {
	a.println("registered as %s. commands: dial <addr>, answer [call_id], msg <text>, hangup [call_id], status <status>, quit", a.address)
	for {
		line, err := a.rl.Readline()
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		cmd, args := fields[0], fields[1:]
		if err := a.dispatch(ctx, cmd, args); err != nil {
			if err == errQuit {
				return
			}
			a.println("error: %v", err)
		}
	}
}

var errQuit = fmt.Errorf("quit")

func (a *agent) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "quit", "exit":
		return errQuit
	case "dial":
		if len(args) != 1 {
			return fmt.Errorf("usage: dial <address>")
		}
		return a.conn.Send(ctx, transport.Frame{Type: transport.FrameDial, To: args[0], Metadata: map[string]any{"client_request_id": uuid.NewString()}})
	case "answer":
		return a.conn.Send(ctx, transport.Frame{Type: transport.FrameAnswer, CallID: a.callID(args)})
	case "hangup":
		return a.conn.Send(ctx, transport.Frame{Type: transport.FrameHangup, CallID: a.callID(args), Reason: "normal"})
	case "msg":
		if len(args) == 0 {
			return fmt.Errorf("usage: msg <text>")
		}
		return a.conn.Send(ctx, transport.Frame{Type: transport.FrameMsg, CallID: a.activeCallID, Data: strings.Join(args, " "), ContentType: "text"})
	case "status":
		if len(args) != 1 {
			return fmt.Errorf("usage: status <available|busy|dnd|away>")
		}
		return a.conn.Send(ctx, transport.Frame{Type: transport.FrameStatus, Status: args[0]})
	case "presence":
		if len(args) != 1 {
			return fmt.Errorf("usage: presence <domain>")
		}
		return a.conn.Send(ctx, transport.Frame{Type: transport.FramePresence, Query: &transport.PresenceQuery{Domain: args[0]}})
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *agent) callID(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return a.activeCallID
}
