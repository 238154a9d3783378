package router

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the router's Prometheus instruments. Every method has a
// nil-safe receiver so callers never need to guard calls to a router built
// without a registerer.
type Metrics struct {
	activeConnections  prometheus.Gauge
	activeCalls        prometheus.Gauge
	activeBroadcasts   prometheus.Gauge
	connectionsTotal   prometheus.Counter
	frameErrors        *prometheus.CounterVec
	frameLatency       *prometheus.HistogramVec
	ringTimeouts       prometheus.Counter
	wakeAttempts       *prometheus.CounterVec
	heartbeatEvictions prometheus.Counter
}

// NewMetrics registers the router's instruments against reg, falling back
// to the default Prometheus registerer if reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "systemx_connections_active",
			Help: "Current number of live connections.",
		}),
		activeCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "systemx_calls_active",
			Help: "Current number of point-to-point calls.",
		}),
		activeBroadcasts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "systemx_broadcast_sessions_active",
			Help: "Current number of broadcast sessions.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "systemx_connections_total",
			Help: "Total connections handled since start.",
		}),
		frameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "systemx_frame_errors_total",
			Help: "Frame validation or routing errors by reason.",
		}, []string{"reason"}),
		frameLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "systemx_frame_latency_seconds",
			Help:    "Latency handling one inbound frame, by frame type.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"op"}),
		ringTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "systemx_ring_timeouts_total",
			Help: "Calls that timed out while ringing.",
		}),
		wakeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "systemx_wake_attempts_total",
			Help: "Wake-on-ring attempts by result.",
		}, []string{"result"}),
		heartbeatEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "systemx_heartbeat_evictions_total",
			Help: "Connections disconnected by the heartbeat sweeper.",
		}),
	}

	reg.MustRegister(
		m.activeConnections,
		m.activeCalls,
		m.activeBroadcasts,
		m.connectionsTotal,
		m.frameErrors,
		m.frameLatency,
		m.ringTimeouts,
		m.wakeAttempts,
		m.heartbeatEvictions,
	)
	return m
}

func (m *Metrics) incConnection() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
	m.connectionsTotal.Inc()
}

func (m *Metrics) decConnection() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *Metrics) setActiveCalls(n int) {
	if m == nil {
		return
	}
	m.activeCalls.Set(float64(n))
}

func (m *Metrics) setActiveBroadcasts(n int) {
	if m == nil {
		return
	}
	m.activeBroadcasts.Set(float64(n))
}

func (m *Metrics) recordFrameError(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.frameErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeLatency(op string, dur time.Duration) {
	if m == nil {
		return
	}
	m.frameLatency.WithLabelValues(op).Observe(dur.Seconds())
}

func (m *Metrics) recordRingTimeout() {
	if m == nil {
		return
	}
	m.ringTimeouts.Inc()
}

func (m *Metrics) recordWakeAttempt(result string) {
	if m == nil {
		return
	}
	m.wakeAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) recordHeartbeatEviction() {
	if m == nil {
		return
	}
	m.heartbeatEvictions.Inc()
}
