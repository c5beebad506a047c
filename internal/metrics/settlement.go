package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Settlement records settlement outcomes and the advisory bookkeeping that
// follows them. A nil *Settlement is valid and records nothing.
type Settlement struct {
	outcomes    *prometheus.CounterVec
	bookkeeping *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

func NewSettlement(reg prometheus.Registerer) *Settlement {
	if reg == nil {
		return &Settlement{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "radix",
		Name:      "settlement_outcomes_total",
		Help:      "Settlement calls by payment method and outcome.",
	}, []string{"method", "outcome"})
	bookkeeping := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "radix",
		Name:      "settlement_bookkeeping_failures_total",
		Help:      "History or partial cleanup writes that failed after settlement.",
	}, []string{"op"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "radix",
		Name:      "settlement_duration_seconds",
		Help:      "Time spent settling a transaction.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
	reg.MustRegister(outcomes, bookkeeping, duration)
	return &Settlement{
		outcomes:    outcomes,
		bookkeeping: bookkeeping,
		duration:    duration,
	}
}

// ObserveOutcome counts one settlement call. outcome is an outcome status or
// "error".
func (s *Settlement) ObserveOutcome(method, outcome string, took time.Duration) {
	if s == nil || s.outcomes == nil {
		return
	}
	method = normalizeLabel(method)
	s.outcomes.WithLabelValues(method, normalizeLabel(outcome)).Inc()
	s.duration.WithLabelValues(method).Observe(took.Seconds())
}

func (s *Settlement) IncBookkeepingFailure(op string) {
	if s == nil || s.bookkeeping == nil {
		return
	}
	s.bookkeeping.WithLabelValues(normalizeLabel(op)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
