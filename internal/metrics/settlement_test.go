package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlementExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSettlement(reg)

	m.ObserveOutcome("cash", "Success", 20*time.Millisecond)
	m.ObserveOutcome("cash", "Success", 10*time.Millisecond)
	m.ObserveOutcome("credit", "", time.Millisecond)
	m.IncBookkeepingFailure("history_append")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := counterValue(mfs, "radix_settlement_outcomes_total", map[string]string{"method": "cash", "outcome": "Success"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	got, err = counterValue(mfs, "radix_settlement_outcomes_total", map[string]string{"method": "credit", "outcome": "unknown"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = counterValue(mfs, "radix_settlement_bookkeeping_failures_total", map[string]string{"op": "history_append"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	mf := findMetricFamily(mfs, "radix_settlement_duration_seconds")
	require.NotNil(t, mf)
	var samples uint64
	for _, metric := range mf.GetMetric() {
		samples += metric.GetHistogram().GetSampleCount()
	}
	assert.Equal(t, uint64(3), samples)
}

func TestNilSettlementIsSafe(t *testing.T) {
	var m *Settlement
	m.ObserveOutcome("cash", "Success", time.Second)
	m.IncBookkeepingFailure("partial_delete")

	NewSettlement(nil).ObserveOutcome("cash", "Success", time.Second)
}

func counterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
