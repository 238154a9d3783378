// Package config loads SystemX's process-wide runtime configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the router's runtime parameters.
type Config struct {
	ListenAddress       string        `mapstructure:"listen_address"`
	TLSCertPath         string        `mapstructure:"tls_cert_path"`
	TLSKeyPath          string        `mapstructure:"tls_key_path"`
	AdminAddress        string        `mapstructure:"admin_address"`
	LogLevel            string        `mapstructure:"log_level"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`

	Heartbeat     HeartbeatConfig     `mapstructure:"heartbeat"`
	Call          CallConfig          `mapstructure:"call"`
	DialRateLimit DialRateLimitConfig `mapstructure:"dial_rate_limit"`
	AutoSleep     AutoSleepConfig     `mapstructure:"auto_sleep"`
	Federation    FederationConfig    `mapstructure:"federation"`
}

// HeartbeatConfig controls the liveness sweeper (spec.md §4.8).
type HeartbeatConfig struct {
	IntervalMs int `mapstructure:"interval_ms"`
	TimeoutMs  int `mapstructure:"timeout_ms"`
}

// CallConfig controls call state machine timers.
type CallConfig struct {
	RingingTimeoutMs int `mapstructure:"ringing_timeout_ms"`
}

// DialRateLimitConfig controls the per-session dial limiter (spec.md §4.7).
type DialRateLimitConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	WindowMs    int `mapstructure:"window_ms"`
}

// AutoSleepConfig controls the idle-sleep pre-warning window (spec.md §4.6).
type AutoSleepConfig struct {
	WarningMinMs int `mapstructure:"warning_min_ms"`
	WarningMaxMs int `mapstructure:"warning_max_ms"`
}

// FederationConfig controls the outbound peer link (spec.md §4.11).
type FederationConfig struct {
	Enabled              bool     `mapstructure:"enabled"`
	PeerURL              string   `mapstructure:"peer_url"`
	LocalDomain          string   `mapstructure:"local_domain"`
	AnnounceRoutes       []string `mapstructure:"announce_routes"`
	AuthToken            string   `mapstructure:"auth_token"`
	ReconnectDelayMs     int      `mapstructure:"reconnect_delay_ms"`
	HeartbeatIntervalMs  int      `mapstructure:"heartbeat_interval_ms"`
}

const (
	defaultListenAddress         = "0.0.0.0:8443"
	defaultAdminAddress          = "0.0.0.0:9090"
	defaultLogLevel              = "info"
	defaultShutdownGracePeriod   = 10 * time.Second
	defaultHeartbeatIntervalMs   = 15000
	defaultHeartbeatTimeoutMs    = 45000
	defaultCallRingingTimeoutMs  = 30000
	defaultDialMaxAttempts       = 100
	defaultDialWindowMs          = 60000
	defaultAutoSleepWarningMinMs = 200
	defaultAutoSleepWarningMaxMs = 5000
	defaultFederationReconnectMs = 5000
	defaultFederationHeartbeatMs = 10000
)

// Load reads configuration from the provided file path (if any) and the
// environment. Environment variables are prefixed with SYSTEMX_ and override
// file values, matching the teacher's viper wiring.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SYSTEMX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("listen_address", defaultListenAddress)
	v.SetDefault("admin_address", defaultAdminAddress)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("shutdown_grace_period", defaultShutdownGracePeriod.String())
	v.SetDefault("heartbeat.interval_ms", defaultHeartbeatIntervalMs)
	v.SetDefault("heartbeat.timeout_ms", defaultHeartbeatTimeoutMs)
	v.SetDefault("call.ringing_timeout_ms", defaultCallRingingTimeoutMs)
	v.SetDefault("dial_rate_limit.max_attempts", defaultDialMaxAttempts)
	v.SetDefault("dial_rate_limit.window_ms", defaultDialWindowMs)
	v.SetDefault("auto_sleep.warning_min_ms", defaultAutoSleepWarningMinMs)
	v.SetDefault("auto_sleep.warning_max_ms", defaultAutoSleepWarningMaxMs)
	v.SetDefault("federation.reconnect_delay_ms", defaultFederationReconnectMs)
	v.SetDefault("federation.heartbeat_interval_ms", defaultFederationHeartbeatMs)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Viper leaves durations as strings; normalize them here.
	if v.IsSet("shutdown_grace_period") {
		dur, err := time.ParseDuration(v.GetString("shutdown_grace_period"))
		if err != nil {
			return Config{}, fmt.Errorf("invalid shutdown_grace_period: %w", err)
		}
		cfg.ShutdownGracePeriod = dur
	} else {
		cfg.ShutdownGracePeriod = defaultShutdownGracePeriod
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.Heartbeat.IntervalMs <= 0 {
		cfg.Heartbeat.IntervalMs = defaultHeartbeatIntervalMs
	}
	if cfg.Heartbeat.TimeoutMs <= 0 {
		cfg.Heartbeat.TimeoutMs = defaultHeartbeatTimeoutMs
	}
	if cfg.Call.RingingTimeoutMs <= 0 {
		cfg.Call.RingingTimeoutMs = defaultCallRingingTimeoutMs
	}
	if cfg.DialRateLimit.MaxAttempts <= 0 {
		cfg.DialRateLimit.MaxAttempts = defaultDialMaxAttempts
	}
	if cfg.DialRateLimit.WindowMs <= 0 {
		cfg.DialRateLimit.WindowMs = defaultDialWindowMs
	}
	if cfg.AutoSleep.WarningMinMs <= 0 {
		cfg.AutoSleep.WarningMinMs = defaultAutoSleepWarningMinMs
	}
	if cfg.AutoSleep.WarningMaxMs <= 0 {
		cfg.AutoSleep.WarningMaxMs = defaultAutoSleepWarningMaxMs
	}
	if cfg.Federation.ReconnectDelayMs <= 0 {
		cfg.Federation.ReconnectDelayMs = defaultFederationReconnectMs
	}
	if cfg.Federation.HeartbeatIntervalMs <= 0 {
		cfg.Federation.HeartbeatIntervalMs = defaultFederationHeartbeatMs
	}

	return cfg, nil
}
