package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMarketMetricsCountsTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMarketMetrics(reg)
	m.ObserveTransition("claim_delivery", OutcomeOK)
	m.ObserveTransition("claim_delivery", OutcomeConflict)
	m.ObserveTransition("claim_delivery", OutcomeConflict)
	m.StreamOpened()
	m.StreamOpened()
	m.StreamClosed()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "locallink_order_transitions_total", "outcome", OutcomeConflict); err != nil {
		t.Fatalf("fetch conflicts: %v", err)
	} else if got != 2 {
		t.Fatalf("expected conflicts=2, got %f", got)
	}
	mf := findMetricFamily(mfs, "locallink_market_stream_sessions")
	if mf == nil || mf.GetMetric()[0].GetGauge().GetValue() != 1 {
		t.Fatalf("expected one open stream")
	}
}

func TestMarketMetricsNilSafe(t *testing.T) {
	var m *MarketMetrics
	m.ObserveTransition("x", OutcomeOK)
	m.StreamOpened()
	NewMarketMetrics(nil).StreamClosed()
}
