package api

import (
	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors the core loop updates on every
// tick and lifecycle event (SPEC_FULL.md §D.4). Each Metrics owns a private
// Registry rather than registering against prometheus.DefaultRegisterer, so
// constructing more than one Server in a process — every test in this
// package does — doesn't panic on a duplicate collector name.
type Metrics struct {
	Registry *prometheus.Registry

	GuardianMode     *prometheus.GaugeVec
	MarginUsageRatio prometheus.Gauge
	OrdersSubmitted  prometheus.Counter
	OrdersRejected   *prometheus.CounterVec
	TradesFilled     prometheus.Counter
	GuardianHalts    *prometheus.CounterVec
	AuditEventsTotal prometheus.Counter
}

// NewMetrics constructs every collector and registers it against a private
// registry, exposed through promhttp in Server.setupRoutes.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		GuardianMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "futures_core_guardian_mode",
			Help: "1 for the currently active Guardian mode, 0 otherwise, labeled by mode.",
		}, []string{"mode"}),
		MarginUsageRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "futures_core_margin_usage_ratio",
			Help: "Current margin_used / equity ratio.",
		}),
		OrdersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "futures_core_orders_submitted_total",
			Help: "Total orders submitted to the gateway.",
		}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "futures_core_orders_rejected_total",
			Help: "Total orders rejected by the protection pipeline or edge gate, labeled by gate.",
		}, []string{"gate"}),
		TradesFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "futures_core_trades_filled_total",
			Help: "Total fill events applied to the position tracker.",
		}),
		GuardianHalts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "futures_core_guardian_halts_total",
			Help: "Total transitions into HALTED, labeled by trigger.",
		}, []string{"trigger"}),
		AuditEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "futures_core_audit_events_total",
			Help: "Total events appended to the audit log.",
		}),
	}

	m.Registry.MustRegister(
		m.GuardianMode, m.MarginUsageRatio, m.OrdersSubmitted,
		m.OrdersRejected, m.TradesFilled, m.GuardianHalts, m.AuditEventsTotal,
	)
	return m
}

// OrderSubmitted implements orchestrator.MetricsSink.
func (m *Metrics) OrderSubmitted() { m.OrdersSubmitted.Inc() }

// OrderRejected implements orchestrator.MetricsSink.
func (m *Metrics) OrderRejected(gate string) { m.OrdersRejected.WithLabelValues(gate).Inc() }

// TradeFilled implements orchestrator.MetricsSink.
func (m *Metrics) TradeFilled() { m.TradesFilled.Inc() }

// AuditEvent implements orchestrator.MetricsSink.
func (m *Metrics) AuditEvent() { m.AuditEventsTotal.Inc() }

// guardianModes lists every mode so SetGuardianMode can zero out the
// inactive ones on a GaugeVec (Prometheus has no "set exactly one" primitive).
var guardianModes = []types.GuardianMode{
	types.GuardianModeInit, types.GuardianModeRunning, types.GuardianModeReduceOnly,
	types.GuardianModeHalted, types.GuardianModeManual,
}

// SetGuardianMode marks mode active and every other mode inactive.
func (m *Metrics) SetGuardianMode(mode types.GuardianMode) {
	for _, candidate := range guardianModes {
		v := 0.0
		if candidate == mode {
			v = 1.0
		}
		m.GuardianMode.WithLabelValues(string(candidate)).Set(v)
	}
}
