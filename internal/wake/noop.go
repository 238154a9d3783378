package wake

import (
	"context"

	"go.uber.org/zap"
)

// NoopExecutor logs and reports success without attempting any wake I/O.
// Used as the router's default executor and in tests (spec §6).
type NoopExecutor struct {
	Log *zap.Logger
}

// Wake implements Executor.
func (n NoopExecutor) Wake(ctx context.Context, profile Profile) error {
	log := n.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("wake executor: no-op", zap.String("address", profile.Address))
	return nil
}
