package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink counts transitions in prometheus.
type MetricsSink struct {
	transitions *prometheus.CounterVec
	machines    *prometheus.GaugeVec
}

func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	s := &MetricsSink{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hfprovider",
			Name:      "request_transitions_total",
			Help:      "Request status transitions by request type and target status.",
		}, []string{"request_type", "status"}),
		machines: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hfprovider",
			Name:      "request_machines",
			Help:      "Machine counters of the last request that changed status.",
		}, []string{"request_type", "counter"}),
	}
	reg.MustRegister(s.transitions, s.machines)
	return s
}

func (s *MetricsSink) Publish(_ context.Context, e Event) error {
	t := string(e.RequestType)
	s.transitions.WithLabelValues(t, string(e.To)).Inc()
	s.machines.WithLabelValues(t, "running").Set(float64(e.NumRunning))
	s.machines.WithLabelValues(t, "failed").Set(float64(e.NumFailed))
	s.machines.WithLabelValues(t, "returned").Set(float64(e.NumReturned))
	return nil
}

func (s *MetricsSink) Close() error {
	return nil
}
