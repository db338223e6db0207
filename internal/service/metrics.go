package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts coordinator outcomes. A nil *Metrics records nothing.
type Metrics struct {
	operations         *prometheus.CounterVec
	bestEffortFailures *prometheus.CounterVec
}

// NewMetrics registers the coordinator collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropstack_operations_total",
				Help: "Document lifecycle operations by outcome.",
			},
			[]string{"operation", "outcome"},
		),
		bestEffortFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropstack_best_effort_failures_total",
				Help: "Failed side calls that were logged instead of returned.",
			},
			[]string{"call"},
		),
	}
	for _, c := range []prometheus.Collector{m.operations, m.bestEffortFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeOperation(op string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(KindOf(err))
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) observeBestEffortFailure(call string) {
	if m == nil {
		return
	}
	m.bestEffortFailures.WithLabelValues(call).Inc()
}
