package relay

import (
	"nonocoop/pkg/event"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	dropInactive       = "inactive"
	dropEcho           = "echo"
	dropForeignSession = "foreign_session"
	dropMalformed      = "malformed"
	dropNotApplicable  = "not_applicable"
	dropBusClosed      = "bus_closed"
	dropOutboxFull     = "outbox_full"
)

// Metrics counts relay traffic. A nil *Metrics records nothing.
// Labels stay low-cardinality: event kinds and drop reasons only.
type Metrics struct {
	Forwarded       *prometheus.CounterVec
	Applied         *prometheus.CounterVec
	Dropped         *prometheus.CounterVec
	OutOfOrder      prometheus.Counter
	PublishFailures prometheus.Counter
	ActiveBridges   prometheus.Gauge
}

// NewMetrics registers relay metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Forwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nonocoop_relay_forwarded_total",
			Help: "Local events published to the fabric, by kind.",
		}, []string{"kind"}),
		Applied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nonocoop_relay_applied_total",
			Help: "Remote events re-emitted on the local bus, by kind.",
		}, []string{"kind"}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nonocoop_relay_dropped_total",
			Help: "Messages or events dropped by the relay, by reason.",
		}, []string{"reason"}),
		OutOfOrder: factory.NewCounter(prometheus.CounterOpts{
			Name: "nonocoop_relay_out_of_order_total",
			Help: "Remote messages whose sequence number did not advance.",
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "nonocoop_relay_publish_failures_total",
			Help: "Fabric publish attempts that failed.",
		}),
		ActiveBridges: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nonocoop_relay_active_bridges",
			Help: "Bridges currently attached to a session.",
		}),
	}
}

func (m *Metrics) forwarded(kind event.Kind) {
	if m != nil {
		m.Forwarded.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) applied(kind event.Kind) {
	if m != nil {
		m.Applied.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) dropped(reason string) {
	if m != nil {
		m.Dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) outOfOrder() {
	if m != nil {
		m.OutOfOrder.Inc()
	}
}

func (m *Metrics) publishFailed() {
	if m != nil {
		m.PublishFailures.Inc()
	}
}

func (m *Metrics) bridgeActive(delta float64) {
	if m != nil {
		m.ActiveBridges.Add(delta)
	}
}
