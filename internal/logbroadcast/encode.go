package logbroadcast

import (
	"encoding/json"

	"github.com/systemx-switch/systemx/internal/logging"
)

// encode renders entry as the MSG frame body. Marshalling never fails for
// the concrete types zap hands a Sink (strings, numbers, errors already
// stringified by zapcore), so a marshal error falls back to the bare
// message rather than dropping the entry.
func encode(entry logging.Entry) (data string, contentType string) {
	encoded, err := json.Marshal(struct {
		Level   string         `json:"level"`
		Message string         `json:"message"`
		Fields  map[string]any `json:"fields,omitempty"`
	}{Level: entry.Level, Message: entry.Message, Fields: entry.Fields})
	if err != nil {
		return entry.Message, "text"
	}
	return string(encoded), "json"
}
