package router

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/systemx-switch/systemx/internal/config"
	"github.com/systemx-switch/systemx/internal/registry"
	"github.com/systemx-switch/systemx/internal/transport"
)

func intPtr(v int) *int { return &v }

func newTestRouter(t *testing.T, mutate func(*config.Config)) *Router {
	t.Helper()
	cfg := config.Config{
		Call:          config.CallConfig{RingingTimeoutMs: 30000},
		DialRateLimit: config.DialRateLimitConfig{MaxAttempts: 100, WindowMs: 60000},
		AutoSleep:     config.AutoSleepConfig{WarningMinMs: 200, WarningMaxMs: 5000},
		Heartbeat:     config.HeartbeatConfig{IntervalMs: 15000, TimeoutMs: 45000},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(zap.NewNop(), cfg)
}

// connect wires a fake transport into r the same way Open does, without
// running Open's receive loop, so tests can drive Dispatch deterministically.
func connect(t *testing.T, r *Router) (*registry.Connection, *transport.Fake) {
	t.Helper()
	fake := transport.NewFake(8)
	c := r.Registry().Create(fake)
	go r.sender(c)
	t.Cleanup(func() {
		if c.Ctx.Err() == nil {
			c.Cancel()
		}
	})
	return c, fake
}

func register(t *testing.T, r *Router, c *registry.Connection, fake *transport.Fake, address string, extra transport.Frame) {
	t.Helper()
	frame := extra
	frame.Type = transport.FrameRegister
	frame.Address = address
	if err := r.Dispatch(c, frame); err != nil {
		t.Fatalf("register %s: %v", address, err)
	}
	reply := fake.Sent()
	if reply.Type != transport.FrameRegistered {
		t.Fatalf("register %s: expected REGISTERED, got %+v", address, reply)
	}
}

func TestPointToPointRoundTrip(t *testing.T) {
	r := newTestRouter(t, nil)
	a, aFake := connect(t, r)
	b, bFake := connect(t, r)
	register(t, r, a, aFake, "a@x.tld", transport.Frame{})
	register(t, r, b, bFake, "b@x.tld", transport.Frame{})

	if err := r.Dispatch(a, transport.Frame{Type: transport.FrameDial, To: "b@x.tld", Metadata: map[string]any{"subject": "hi"}}); err != nil {
		t.Fatalf("dial: %v", err)
	}
	ring := bFake.Sent()
	if ring.Type != transport.FrameRing || ring.From != "a@x.tld" || ring.Metadata["subject"] != "hi" {
		t.Fatalf("unexpected RING: %+v", ring)
	}
	callID := ring.CallID

	if err := r.Dispatch(b, transport.Frame{Type: transport.FrameAnswer, CallID: callID}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	connected := aFake.Sent()
	if connected.Type != transport.FrameConnected || connected.CallID != callID || connected.To != "b@x.tld" {
		t.Fatalf("unexpected CONNECTED: %+v", connected)
	}

	if err := r.Dispatch(a, transport.Frame{Type: transport.FrameMsg, CallID: callID, Data: "ping", ContentType: "text"}); err != nil {
		t.Fatalf("msg: %v", err)
	}
	msg := bFake.Sent()
	if msg.Type != transport.FrameMsg || msg.From != "a@x.tld" || msg.Data != "ping" {
		t.Fatalf("unexpected MSG: %+v", msg)
	}

	if err := r.Dispatch(a, transport.Frame{Type: transport.FrameHangup, CallID: callID}); err != nil {
		t.Fatalf("hangup: %v", err)
	}
	hangup := bFake.Sent()
	if hangup.Type != transport.FrameHangup || hangup.CallID != callID || hangup.Reason != "normal" {
		t.Fatalf("unexpected HANGUP: %+v", hangup)
	}
	if len(a.ActiveCallIDs) != 0 || len(b.ActiveCallIDs) != 0 {
		t.Fatalf("expected both sides clear of active calls")
	}
	if a.Status != registry.StatusAvailable || b.Status != registry.StatusAvailable {
		t.Fatalf("expected both sides available, got a=%s b=%s", a.Status, b.Status)
	}
}

func TestNoSuchAddress(t *testing.T) {
	r := newTestRouter(t, nil)
	a, aFake := connect(t, r)
	register(t, r, a, aFake, "a@x.tld", transport.Frame{})

	if err := r.Dispatch(a, transport.Frame{Type: transport.FrameDial, To: "b@x.tld"}); err != nil {
		t.Fatalf("dial: %v", err)
	}
	busy := aFake.Sent()
	if busy.Type != transport.FrameBusy || busy.To != "b@x.tld" || busy.Reason != "no_such_address" {
		t.Fatalf("unexpected reply: %+v", busy)
	}
}

func TestSingleConcurrencyBusy(t *testing.T) {
	r := newTestRouter(t, nil)
	a, aFake := connect(t, r)
	b, bFake := connect(t, r)
	c, cFake := connect(t, r)
	register(t, r, a, aFake, "a@x.tld", transport.Frame{})
	register(t, r, b, bFake, "b@x.tld", transport.Frame{})
	register(t, r, c, cFake, "c@x.tld", transport.Frame{})

	if err := r.Dispatch(a, transport.Frame{Type: transport.FrameDial, To: "b@x.tld"}); err != nil {
		t.Fatalf("dial a->b: %v", err)
	}
	ring := bFake.Sent()
	if err := r.Dispatch(b, transport.Frame{Type: transport.FrameAnswer, CallID: ring.CallID}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	aFake.Sent() // CONNECTED to a

	if err := r.Dispatch(c, transport.Frame{Type: transport.FrameDial, To: "b@x.tld"}); err != nil {
		t.Fatalf("dial c->b: %v", err)
	}
	busy := cFake.Sent()
	if busy.Type != transport.FrameBusy || busy.Reason != "already_in_call" {
		t.Fatalf("unexpected reply: %+v", busy)
	}
}

func TestBroadcastFanOutWithCap(t *testing.T) {
	r := newTestRouter(t, nil)
	clock, clockFake := connect(t, r)
	register(t, r, clock, clockFake, "clock@t.tld", transport.Frame{
		Concurrency: &transport.Concurrency{Mode: transport.ConcurrencyBroadcast, MaxListeners: intPtr(2)},
	})

	l1, l1Fake := connect(t, r)
	l2, l2Fake := connect(t, r)
	l3, l3Fake := connect(t, r)
	register(t, r, l1, l1Fake, "l1@t.tld", transport.Frame{})
	register(t, r, l2, l2Fake, "l2@t.tld", transport.Frame{})
	register(t, r, l3, l3Fake, "l3@t.tld", transport.Frame{})

	if err := r.Dispatch(l1, transport.Frame{Type: transport.FrameDial, To: "clock@t.tld"}); err != nil {
		t.Fatalf("dial l1: %v", err)
	}
	c1 := l1Fake.Sent()
	clockFake.Sent() // RING to broadcaster
	if c1.Type != transport.FrameConnected {
		t.Fatalf("expected CONNECTED for l1, got %+v", c1)
	}

	if err := r.Dispatch(l2, transport.Frame{Type: transport.FrameDial, To: "clock@t.tld"}); err != nil {
		t.Fatalf("dial l2: %v", err)
	}
	c2 := l2Fake.Sent()
	clockFake.Sent()
	if c2.Type != transport.FrameConnected || c2.CallID != c1.CallID {
		t.Fatalf("expected same call id for l2, got %+v", c2)
	}

	if err := r.Dispatch(l3, transport.Frame{Type: transport.FrameDial, To: "clock@t.tld"}); err != nil {
		t.Fatalf("dial l3: %v", err)
	}
	busy := l3Fake.Sent()
	if busy.Type != transport.FrameBusy || busy.Reason != "max_listeners_reached" {
		t.Fatalf("expected max_listeners_reached, got %+v", busy)
	}

	if err := r.Dispatch(clock, transport.Frame{Type: transport.FrameMsg, CallID: c1.CallID, Data: "tick"}); err != nil {
		t.Fatalf("broadcaster msg: %v", err)
	}
	m1 := l1Fake.Sent()
	m2 := l2Fake.Sent()
	if m1.Data != "tick" || m1.From != "clock@t.tld" || m2.Data != "tick" || m2.From != "clock@t.tld" {
		t.Fatalf("unexpected fan-out frames: %+v %+v", m1, m2)
	}
}

func TestWakeOnRingSuccess(t *testing.T) {
	r := newTestRouter(t, nil)
	bot, botFake := connect(t, r)
	register(t, r, bot, botFake, "bot@x.tld", transport.Frame{
		Mode: string(transport.ModeWakeOnRing),
		WakeHandler: &transport.WakeHandler{
			Type: "webhook", URL: "https://example.invalid/wake", TimeoutSeconds: 1,
		},
	})
	if err := r.Dispatch(bot, transport.Frame{Type: transport.FrameSleepAck}); err != nil {
		t.Fatalf("sleep_ack: %v", err)
	}

	caller, callerFake := connect(t, r)
	register(t, r, caller, callerFake, "caller@x.tld", transport.Frame{})

	if err := r.Dispatch(caller, transport.Frame{Type: transport.FrameDial, To: "bot@x.tld"}); err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, ok := callerFake.TrySent(); ok {
		t.Fatalf("expected no immediate reply to caller while woken")
	}

	newBot, newBotFake := connect(t, r)
	register(t, r, newBot, newBotFake, "bot@x.tld", transport.Frame{})

	ring := newBotFake.Sent()
	if ring.Type != transport.FrameRing || ring.From != "caller@x.tld" {
		t.Fatalf("expected RING to rewoken bot, got %+v", ring)
	}

	if err := r.Dispatch(newBot, transport.Frame{Type: transport.FrameAnswer, CallID: ring.CallID}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	connected := callerFake.Sent()
	if connected.Type != transport.FrameConnected || connected.To != "bot@x.tld" || connected.CallID != ring.CallID {
		t.Fatalf("unexpected CONNECTED: %+v", connected)
	}
}

func TestRingTimeout(t *testing.T) {
	r := newTestRouter(t, func(cfg *config.Config) { cfg.Call.RingingTimeoutMs = 50 })
	a, aFake := connect(t, r)
	b, bFake := connect(t, r)
	register(t, r, a, aFake, "a@x.tld", transport.Frame{})
	register(t, r, b, bFake, "b@x.tld", transport.Frame{})

	if err := r.Dispatch(a, transport.Frame{Type: transport.FrameDial, To: "b@x.tld"}); err != nil {
		t.Fatalf("dial: %v", err)
	}
	bFake.Sent() // RING

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	busyCh := make(chan transport.Frame, 1)
	go func() { busyCh <- aFake.Sent() }()
	hangupCh := make(chan transport.Frame, 1)
	go func() { hangupCh <- bFake.Sent() }()

	var busy, hangup transport.Frame
	for i := 0; i < 2; i++ {
		select {
		case busy = <-busyCh:
		case hangup = <-hangupCh:
		case <-ctx.Done():
			t.Fatal("timed out waiting for ring timeout frames")
		}
	}
	if busy.Type != transport.FrameBusy || busy.Reason != "timeout" {
		t.Fatalf("unexpected BUSY: %+v", busy)
	}
	if hangup.Type != transport.FrameHangup || hangup.Reason != "timeout" {
		t.Fatalf("unexpected HANGUP: %+v", hangup)
	}

	time.Sleep(10 * time.Millisecond)
	if len(a.ActiveCallIDs) != 0 || len(b.ActiveCallIDs) != 0 {
		t.Fatalf("expected both sides clear of active calls after timeout")
	}
}

func TestMaxSessionsEnforcedForParallel(t *testing.T) {
	r := newTestRouter(t, nil)
	callee, calleeFake := connect(t, r)
	register(t, r, callee, calleeFake, "pool@x.tld", transport.Frame{
		Concurrency: &transport.Concurrency{Mode: transport.ConcurrencyParallel, MaxSessions: intPtr(1)},
	})

	a, aFake := connect(t, r)
	register(t, r, a, aFake, "a@x.tld", transport.Frame{})
	if err := r.Dispatch(a, transport.Frame{Type: transport.FrameDial, To: "pool@x.tld"}); err != nil {
		t.Fatalf("dial a: %v", err)
	}
	calleeFake.Sent()

	b, bFake := connect(t, r)
	register(t, r, b, bFake, "b@x.tld", transport.Frame{})
	if err := r.Dispatch(b, transport.Frame{Type: transport.FrameDial, To: "pool@x.tld"}); err != nil {
		t.Fatalf("dial b: %v", err)
	}
	busy := bFake.Sent()
	if busy.Type != transport.FrameBusy || busy.Reason != "max_sessions_reached" {
		t.Fatalf("expected max_sessions_reached, got %+v", busy)
	}
}

func TestAddressUniquenessAcrossFrameSequences(t *testing.T) {
	r := newTestRouter(t, nil)
	a, aFake := connect(t, r)
	b, bFake := connect(t, r)
	register(t, r, a, aFake, "shared@x.tld", transport.Frame{})

	if err := r.Dispatch(b, transport.Frame{Type: transport.FrameRegister, Address: "shared@x.tld"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	failed := bFake.Sent()
	if failed.Type != transport.FrameRegisterFailed || failed.Reason != "address_in_use" {
		t.Fatalf("expected address_in_use, got %+v", failed)
	}
}

func TestUnknownFrameType(t *testing.T) {
	r := newTestRouter(t, nil)
	c, _ := connect(t, r)
	err := r.Dispatch(c, transport.Frame{Type: "NOT_A_REAL_FRAME"})
	if err == nil {
		t.Fatal("expected an error for an unrecognized frame type")
	}
}
