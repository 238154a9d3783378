// Package logging builds the structured logger shared by every SystemX component.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a structured zap logger at the given level, optionally
// fanning every entry out to sinks (see Sink).
func NewLogger(level string, sinks ...Sink) (*zap.Logger, error) {
	lower := strings.ToLower(level)
	var zapLevel zapcore.Level
	if err := zapLevel.Set(lower); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.MessageKey = "msg"

	if len(sinks) == 0 {
		return cfg.Build()
	}

	return cfg.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return NewTeeCore(core, sinks...)
	}))
}
