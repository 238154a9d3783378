package wakeexec

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/systemx-switch/systemx/internal/wake"
)

// SpawnExecutor wakes a sleeping connection by running the command
// configured on that connection's WakeHandler as a local subprocess. The
// router only waits for the process to start and exit cleanly; it is the
// spawned program's job to reconnect and REGISTER on its own.
type SpawnExecutor struct {
	Log *zap.Logger
}

// NewSpawnExecutor builds a SpawnExecutor.
func NewSpawnExecutor(log *zap.Logger) *SpawnExecutor {
	if log == nil {
		log = zap.NewNop()
	}
	return &SpawnExecutor{Log: log}
}

// Wake implements wake.Executor.
func (s *SpawnExecutor) Wake(ctx context.Context, profile wake.Profile) error {
	if len(profile.Handler.Command) == 0 {
		return fmt.Errorf("wakeexec: spawn handler for %q has no command", profile.Address)
	}

	if d := timeout(profile); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	argv := profile.Handler.Command
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	start := time.Now()
	if err := cmd.Run(); err != nil {
		s.Log.Warn("wake spawn failed", zap.String("address", profile.Address), zap.Strings("command", argv), zap.Error(err))
		return fmt.Errorf("wakeexec: spawn %v: %w", argv, err)
	}

	s.Log.Info("wake spawn completed", zap.String("address", profile.Address), zap.Strings("command", argv), zap.Duration("elapsed", time.Since(start)))
	return nil
}
