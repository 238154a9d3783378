package logging

import "go.uber.org/zap/zapcore"

// Entry is one logged record, handed to every registered Sink.
type Entry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// Sink receives a copy of every log entry written through a logger built
// with NewLogger(level, sinks...). The log-broadcast service implements
// this to republish entries over a broadcast address, instead of patching
// the logger itself.
type Sink interface {
	Write(Entry)
}

// TeeCore forwards every Check/Write to an underlying zapcore.Core while
// also handing the entry to each Sink. It never replaces the underlying
// core's behavior (level gating, encoding) -- it only observes.
type TeeCore struct {
	zapcore.Core
	sinks []Sink
}

// NewTeeCore wraps core so every entry is additionally delivered to sinks.
func NewTeeCore(core zapcore.Core, sinks ...Sink) *TeeCore {
	return &TeeCore{Core: core, sinks: sinks}
}

// With adds structured fields to the wrapped core. Entries handed to sinks
// carry only the fields of the individual log call, not these.
func (t *TeeCore) With(fields []zapcore.Field) zapcore.Core {
	return &TeeCore{Core: t.Core.With(fields), sinks: t.sinks}
}

// Check decides whether this entry should be logged, same as the wrapped core.
func (t *TeeCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if t.Core.Enabled(entry.Level) {
		return checked.AddCore(entry, t)
	}
	return checked
}

// Write sends entry to the wrapped core and to every sink.
func (t *TeeCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if err := t.Core.Write(entry, fields); err != nil {
		return err
	}
	if len(t.sinks) == 0 {
		return nil
	}
	out := Entry{
		Level:   entry.Level.String(),
		Message: entry.Message,
		Fields:  make(map[string]any, len(fields)),
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	for k, v := range enc.Fields {
		out.Fields[k] = v
	}
	for _, s := range t.sinks {
		s.Write(out)
	}
	return nil
}
