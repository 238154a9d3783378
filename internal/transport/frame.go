// Package transport defines the wire contract between SystemX connections
// and the router core, plus a fake implementation for tests.
package transport

// FrameType discriminates the fixed catalogue of inbound and outbound frames.
type FrameType string

const (
	// Inbound (client/peer -> router).
	FrameRegister    FrameType = "REGISTER"
	FrameUnregister  FrameType = "UNREGISTER"
	FrameStatus      FrameType = "STATUS"
	FrameHeartbeat   FrameType = "HEARTBEAT"
	FrameDial        FrameType = "DIAL"
	FrameAnswer      FrameType = "ANSWER"
	FrameHangup      FrameType = "HANGUP"
	FrameMsg         FrameType = "MSG"
	FramePresence    FrameType = "PRESENCE"
	FrameSleepAck    FrameType = "SLEEP_ACK"
	FrameRegisterPBX FrameType = "REGISTER_PBX"

	// Outbound (router -> client/peer).
	FrameRegistered        FrameType = "REGISTERED"
	FrameRegisterFailed    FrameType = "REGISTER_FAILED"
	FrameHeartbeatAck      FrameType = "HEARTBEAT_ACK"
	FrameRing              FrameType = "RING"
	FrameConnected         FrameType = "CONNECTED"
	FrameBusy              FrameType = "BUSY"
	FrameSleepPending      FrameType = "SLEEP_PENDING"
	FramePresenceResult    FrameType = "PRESENCE_RESULT"
	FrameError             FrameType = "ERROR"
	FrameRegisteredPBX     FrameType = "REGISTERED_PBX"
	FrameRegisterPBXFailed FrameType = "REGISTER_PBX_FAILED"
)

// ConcurrencyMode is the callee's dispatch strategy for inbound dials,
// represented as a tagged variant rather than a type hierarchy (spec §9).
type ConcurrencyMode string

const (
	ConcurrencySingle    ConcurrencyMode = "single"
	ConcurrencyParallel  ConcurrencyMode = "parallel"
	ConcurrencyBroadcast ConcurrencyMode = "broadcast"
)

// ConnectionMode selects how a connection handles inbound dials while its
// process is not actively serving one: normal, or wake-on-ring.
type ConnectionMode string

const (
	ModeNormal    ConnectionMode = "normal"
	ModeWakeOnRing ConnectionMode = "wake_on_ring"
)

// Concurrency carries the REGISTER-time limits for single/parallel/broadcast
// dispatch (spec §3, §4.1, §4.4). MaxSessions/MaxListeners/PoolSize are
// pointers so an explicit 0 (invalid -- limits must be positive) is
// distinguishable on the wire from the field being absent entirely.
type Concurrency struct {
	Mode         ConcurrencyMode `json:"mode,omitempty"`
	MaxSessions  *int            `json:"max_sessions,omitempty"`
	MaxListeners *int            `json:"max_listeners,omitempty"`
	PoolSize     *int            `json:"pool_size,omitempty"`
}

// WakeHandler describes how to resurrect a sleeping connection (spec §4.5, §6).
type WakeHandler struct {
	Type           string   `json:"type"` // "webhook" | "spawn"
	URL            string   `json:"url,omitempty"`
	Command        []string `json:"command,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
}

// AutoSleep carries the idle timeout and wake-on-ring flag a connection
// opts into for auto-sleep (spec §4.6).
type AutoSleep struct {
	IdleTimeoutSeconds int  `json:"idle_timeout_seconds,omitempty"`
	WakeOnRing         bool `json:"wake_on_ring,omitempty"`
}

// PresenceQuery filters PresenceEngine lookups (spec §4.10).
type PresenceQuery struct {
	Domain       string     `json:"domain,omitempty"`
	Capabilities []string   `json:"capabilities,omitempty"`
	Near         *NearQuery `json:"near,omitempty"`
}

// NearQuery is the great-circle radius filter of a PresenceQuery.
type NearQuery struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	RadiusKm float64 `json:"radius_km"`
}

// PresenceResult is one matched connection returned by a PRESENCE query.
type PresenceResult struct {
	Address  string         `json:"address"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Frame is the single JSON envelope exchanged over the duplex transport.
// SystemX's frame catalogue is small and fixed (eleven inbound, thirteen
// outbound types per spec §6, HANGUP and MSG travelling both ways), so one struct with a Type discriminator and
// per-type optional fields carries the whole protocol without a
// polymorphic payload indirection.
type Frame struct {
	Type FrameType `json:"type"`

	// REGISTER
	Address     string       `json:"address,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Concurrency *Concurrency `json:"concurrency,omitempty"`
	Mode        string       `json:"mode,omitempty"`
	WakeHandler *WakeHandler `json:"wake_handler,omitempty"`

	// STATUS / REGISTERED
	Status    string     `json:"status,omitempty"`
	AutoSleep *AutoSleep `json:"auto_sleep,omitempty"`
	SessionID string     `json:"session_id,omitempty"`

	// DIAL / ANSWER / HANGUP / MSG / RING / CONNECTED / BUSY
	To          string `json:"to,omitempty"`
	From        string `json:"from,omitempty"`
	CallID      string `json:"call_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Data        string `json:"data,omitempty"`
	ContentType string `json:"content_type,omitempty"`

	// HEARTBEAT_ACK
	Timestamp int64 `json:"timestamp,omitempty"`

	// SLEEP_PENDING
	SecondsUntilSleep int `json:"seconds_until_sleep,omitempty"`

	// PRESENCE / PRESENCE_RESULT
	Query     *PresenceQuery   `json:"query,omitempty"`
	Addresses []PresenceResult `json:"addresses,omitempty"`

	// ERROR
	Context string `json:"context,omitempty"`
	Detail  string `json:"detail,omitempty"`

	// REGISTER_PBX / REGISTERED_PBX / REGISTER_PBX_FAILED
	Domain   string   `json:"domain,omitempty"`
	Routes   []string `json:"routes,omitempty"`
	Endpoint string   `json:"endpoint,omitempty"`
	Auth     string   `json:"auth,omitempty"`
}
