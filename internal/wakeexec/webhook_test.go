package wakeexec

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/systemx-switch/systemx/internal/transport"
	"github.com/systemx-switch/systemx/internal/wake"
)

func TestWebhookExecutorWakeSuccess(t *testing.T) {
	var gotAddress string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Address string `json:"address"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding webhook body: %v", err)
		}
		gotAddress = body.Address
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	exec := NewWebhookExecutor(zaptest.NewLogger(t))
	profile := wake.Profile{
		Address: "agent@example.tld",
		Handler: transport.WakeHandler{Type: "webhook", URL: srv.URL, TimeoutSeconds: 2},
	}

	if err := exec.Wake(context.Background(), profile); err != nil {
		t.Fatalf("Wake() error = %v", err)
	}
	if gotAddress != profile.Address {
		t.Fatalf("webhook received address %q, want %q", gotAddress, profile.Address)
	}
}

func TestWebhookExecutorWakeNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := NewWebhookExecutor(zaptest.NewLogger(t))
	profile := wake.Profile{
		Address: "agent@example.tld",
		Handler: transport.WakeHandler{Type: "webhook", URL: srv.URL},
	}

	if err := exec.Wake(context.Background(), profile); err == nil {
		t.Fatal("expected error for non-2xx webhook response")
	}
}

func TestWebhookExecutorMissingURL(t *testing.T) {
	exec := NewWebhookExecutor(zaptest.NewLogger(t))
	profile := wake.Profile{Address: "agent@example.tld", Handler: transport.WakeHandler{Type: "webhook"}}

	if err := exec.Wake(context.Background(), profile); err == nil {
		t.Fatal("expected error for missing webhook url")
	}
}
