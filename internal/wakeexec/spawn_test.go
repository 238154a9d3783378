package wakeexec

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/systemx-switch/systemx/internal/transport"
	"github.com/systemx-switch/systemx/internal/wake"
)

func TestSpawnExecutorWakeSuccess(t *testing.T) {
	exec := NewSpawnExecutor(zaptest.NewLogger(t))
	profile := wake.Profile{
		Address: "agent@example.tld",
		Handler: transport.WakeHandler{Type: "spawn", Command: []string{"true"}},
	}

	if err := exec.Wake(context.Background(), profile); err != nil {
		t.Fatalf("Wake() error = %v", err)
	}
}

func TestSpawnExecutorWakeCommandFails(t *testing.T) {
	exec := NewSpawnExecutor(zaptest.NewLogger(t))
	profile := wake.Profile{
		Address: "agent@example.tld",
		Handler: transport.WakeHandler{Type: "spawn", Command: []string{"false"}},
	}

	if err := exec.Wake(context.Background(), profile); err == nil {
		t.Fatal("expected error when spawned command exits non-zero")
	}
}

func TestSpawnExecutorMissingCommand(t *testing.T) {
	exec := NewSpawnExecutor(zaptest.NewLogger(t))
	profile := wake.Profile{Address: "agent@example.tld", Handler: transport.WakeHandler{Type: "spawn"}}

	if err := exec.Wake(context.Background(), profile); err == nil {
		t.Fatal("expected error for missing spawn command")
	}
}
