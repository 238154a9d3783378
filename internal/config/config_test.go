package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ListenAddress != defaultListenAddress {
		t.Fatalf("expected default listen address %s, got %s", defaultListenAddress, cfg.ListenAddress)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Fatalf("expected default log level %s, got %s", defaultLogLevel, cfg.LogLevel)
	}
	if cfg.ShutdownGracePeriod != defaultShutdownGracePeriod {
		t.Fatalf("expected default grace %s, got %s", defaultShutdownGracePeriod, cfg.ShutdownGracePeriod)
	}
	if cfg.Heartbeat.IntervalMs != defaultHeartbeatIntervalMs {
		t.Fatalf("expected default heartbeat interval %d, got %d", defaultHeartbeatIntervalMs, cfg.Heartbeat.IntervalMs)
	}
	if cfg.Call.RingingTimeoutMs != defaultCallRingingTimeoutMs {
		t.Fatalf("expected default ringing timeout %d, got %d", defaultCallRingingTimeoutMs, cfg.Call.RingingTimeoutMs)
	}
	if cfg.DialRateLimit.MaxAttempts != defaultDialMaxAttempts {
		t.Fatalf("expected default dial max attempts %d, got %d", defaultDialMaxAttempts, cfg.DialRateLimit.MaxAttempts)
	}
}

func TestLoadWithFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(`
listen_address: "127.0.0.1:7001"
log_level: "debug"
shutdown_grace_period: "5s"
call:
  ringing_timeout_ms: 50
federation:
  enabled: true
  peer_url: "wss://parent.example/router"
  local_domain: "leaf.example"
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SYSTEMX_LISTEN_ADDRESS", ":6000")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ListenAddress != ":6000" {
		t.Fatalf("expected env override for listen address, got %s", cfg.ListenAddress)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.ShutdownGracePeriod != 5*time.Second {
		t.Fatalf("expected grace 5s, got %s", cfg.ShutdownGracePeriod)
	}
	if cfg.Call.RingingTimeoutMs != 50 {
		t.Fatalf("expected ringing timeout from file, got %d", cfg.Call.RingingTimeoutMs)
	}
	if !cfg.Federation.Enabled || cfg.Federation.LocalDomain != "leaf.example" {
		t.Fatalf("expected federation config from file, got %+v", cfg.Federation)
	}
}
