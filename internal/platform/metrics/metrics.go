package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. Every method is
// safe on a nil receiver so components can run without metrics in tests.
type Metrics struct {
	EventsHandled        *prometheus.CounterVec
	EventDuration        prometheus.Histogram
	RequestsFinalized    *prometheus.CounterVec
	Acknowledgments      *prometheus.CounterVec
	DeliveryFailures     *prometheus.CounterVec
	LedgerAppendFailures prometheus.Counter
	LedgerLastID         prometheus.Gauge
	ResidentsRegistered  prometheus.Counter
	SessionsExpired      prometheus.Counter
	AccessDenied         prometheus.Counter
	RelayCircuitOpen     prometheus.Gauge
}

// New creates and registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsHandled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_events_handled_total",
			Help: "Inbound conversation events by kind and outcome",
		}, []string{"kind", "outcome"}),
		EventDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatepass_event_duration_seconds",
			Help:    "Time spent handling one inbound event, sends excluded",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		RequestsFinalized: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_requests_finalized_total",
			Help: "Pass requests finalized by pass type",
		}, []string{"pass_type"}),
		Acknowledgments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_acknowledgments_total",
			Help: "Security acknowledgments by outcome",
		}, []string{"outcome"}),
		DeliveryFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_delivery_failures_total",
			Help: "Outbound messages that could not be delivered, by recipient",
		}, []string{"recipient"}),
		LedgerAppendFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "gatepass_ledger_append_failures_total",
			Help: "Finalized requests whose durable record could not be written",
		}),
		LedgerLastID: f.NewGauge(prometheus.GaugeOpts{
			Name: "gatepass_ledger_last_id",
			Help: "Highest allocated request sequence id",
		}),
		ResidentsRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "gatepass_residents_registered_total",
			Help: "Residents created or re-registered through the intake flow",
		}),
		SessionsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "gatepass_sessions_expired_total",
			Help: "Idle sessions reclaimed by the sweeper",
		}),
		AccessDenied: f.NewCounter(prometheus.CounterOpts{
			Name: "gatepass_access_denied_total",
			Help: "Conversation entries refused by the access gate",
		}),
		RelayCircuitOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "gatepass_relay_circuit_open",
			Help: "1 while the outbound relay circuit breaker is open",
		}),
	}
}

func (m *Metrics) IncEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.EventsHandled.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveEvent(start time.Time) {
	if m == nil {
		return
	}
	m.EventDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncFinalized(passType string) {
	if m == nil {
		return
	}
	m.RequestsFinalized.WithLabelValues(passType).Inc()
}

func (m *Metrics) IncAcknowledgment(outcome string) {
	if m == nil {
		return
	}
	m.Acknowledgments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncDeliveryFailure(recipient string) {
	if m == nil {
		return
	}
	m.DeliveryFailures.WithLabelValues(recipient).Inc()
}

func (m *Metrics) IncLedgerAppendFailure() {
	if m == nil {
		return
	}
	m.LedgerAppendFailures.Inc()
}

func (m *Metrics) SetLedgerLastID(id uint64) {
	if m == nil {
		return
	}
	m.LedgerLastID.Set(float64(id))
}

func (m *Metrics) IncResidentRegistered() {
	if m == nil {
		return
	}
	m.ResidentsRegistered.Inc()
}

func (m *Metrics) AddSessionsExpired(n int) {
	if m == nil || n == 0 {
		return
	}
	m.SessionsExpired.Add(float64(n))
}

func (m *Metrics) IncAccessDenied() {
	if m == nil {
		return
	}
	m.AccessDenied.Inc()
}

func (m *Metrics) SetRelayCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.RelayCircuitOpen.Set(1)
		return
	}
	m.RelayCircuitOpen.Set(0)
}
