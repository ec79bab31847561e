package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcomes recorded for lifecycle operations.
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeNoop     = "noop"
	OutcomeError    = "error"
)

// MarketMetrics counts order lifecycle transitions and live stream sessions.
type MarketMetrics struct {
	transitions *prometheus.CounterVec
	streams     prometheus.Gauge
}

// NewMarketMetrics registers the marketplace metrics on the provided registerer.
func NewMarketMetrics(reg prometheus.Registerer) *MarketMetrics {
	if reg == nil {
		return &MarketMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Order lifecycle operations by outcome.",
	}, []string{"operation", "outcome"})
	streams := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "market_stream_sessions",
		Help:      "Open market stream sessions.",
	})
	reg.MustRegister(transitions, streams)
	return &MarketMetrics{transitions: transitions, streams: streams}
}

// ObserveTransition counts one lifecycle operation.
func (m *MarketMetrics) ObserveTransition(operation, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(operation), outcome).Inc()
}

// StreamOpened tracks a new market stream session.
func (m *MarketMetrics) StreamOpened() {
	if m == nil || m.streams == nil {
		return
	}
	m.streams.Inc()
}

// StreamClosed tracks a closed market stream session.
func (m *MarketMetrics) StreamClosed() {
	if m == nil || m.streams == nil {
		return
	}
	m.streams.Dec()
}
