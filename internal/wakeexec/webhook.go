// Package wakeexec implements the two wake.Executor transports a real
// deployment configures alongside wake.NoopExecutor: an HTTP webhook POST
// and a local subprocess spawn (spec §4.5, §6).
package wakeexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/systemx-switch/systemx/internal/transport"
	"github.com/systemx-switch/systemx/internal/wake"
)

const defaultTimeout = 10 * time.Second

// webhookPayload is the JSON body posted to a WakeHandler's URL.
type webhookPayload struct {
	Address string               `json:"address"`
	Handler transport.WakeHandler `json:"handler"`
}

// WebhookExecutor wakes a sleeping connection by POSTing its address to the
// URL configured on that connection's WakeHandler. Any 2xx response counts
// as success; anything else is an error.
type WebhookExecutor struct {
	Client *http.Client
	Log    *zap.Logger
}

// NewWebhookExecutor builds a WebhookExecutor with a bounded default client.
// WakeHandler.TimeoutSeconds sets a per-call deadline, which takes effect
// only when it is shorter than the client's own timeout.
func NewWebhookExecutor(log *zap.Logger) *WebhookExecutor {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookExecutor{
		Client: &http.Client{Timeout: defaultTimeout},
		Log:    log,
	}
}

// Wake implements wake.Executor.
func (w *WebhookExecutor) Wake(ctx context.Context, profile wake.Profile) error {
	if profile.Handler.URL == "" {
		return fmt.Errorf("wakeexec: webhook handler for %q has no url", profile.Address)
	}

	if d := timeout(profile); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	encoded, err := json.Marshal(webhookPayload{Address: profile.Address, Handler: profile.Handler})
	if err != nil {
		return fmt.Errorf("wakeexec: encoding webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, profile.Handler.URL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("wakeexec: building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		w.Log.Warn("wake webhook request failed", zap.String("address", profile.Address), zap.String("url", profile.Handler.URL), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.Log.Warn("wake webhook returned non-2xx", zap.String("address", profile.Address), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("wakeexec: webhook %s returned status %d", profile.Handler.URL, resp.StatusCode)
	}

	w.Log.Info("wake webhook delivered", zap.String("address", profile.Address), zap.String("url", profile.Handler.URL))
	return nil
}

func timeout(profile wake.Profile) time.Duration {
	if profile.Handler.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(profile.Handler.TimeoutSeconds) * time.Second
}
