package federation

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the federation link's Prometheus instruments. Every
// method has a nil-safe receiver, matching router.Metrics, so Peer works
// unmodified whether or not a registerer was supplied.
type Metrics struct {
	connected       prometheus.Gauge
	dialAttempts    prometheus.Counter
	dialFailures    prometheus.Counter
	reconnects      prometheus.Counter
}

// NewMetrics registers the federation link's instruments against reg,
// falling back to the default Prometheus registerer if reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "systemx_federation_connected",
			Help: "1 while the upstream federation link is established, 0 otherwise.",
		}),
		dialAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "systemx_federation_dial_attempts_total",
			Help: "Outbound federation dial attempts.",
		}),
		dialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "systemx_federation_dial_failures_total",
			Help: "Outbound federation dial attempts that failed.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "systemx_federation_reconnects_total",
			Help: "Times the federation link was re-established after a disconnect.",
		}),
	}

	reg.MustRegister(m.connected, m.dialAttempts, m.dialFailures, m.reconnects)
	return m
}

func (m *Metrics) recordDialAttempt() {
	if m == nil {
		return
	}
	m.dialAttempts.Inc()
}

func (m *Metrics) recordDialFailure() {
	if m == nil {
		return
	}
	m.dialFailures.Inc()
}

func (m *Metrics) setConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

func (m *Metrics) recordReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}
