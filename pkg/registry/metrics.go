package registry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts registry traffic.
type Metrics struct {
	// Lookups is labelled by lookup kind (id, version, latest) and result
	// (hit, miss, error).
	Lookups *prometheus.CounterVec
	// Registrations is labelled by subject and result (ok, error).
	Registrations *prometheus.CounterVec
}

// NewMetrics creates the registry metrics and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertpacket_registry_lookups_total",
				Help: "Schema registry lookups by kind and result",
			},
			[]string{"kind", "result"},
		),
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertpacket_registry_registrations_total",
				Help: "Schema registrations by subject and result",
			},
			[]string{"subject", "result"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Lookups, m.Registrations)
	}
	return m
}

func (m *Metrics) lookup(kind, result string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) registration(subject string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Registrations.WithLabelValues(subject, result).Inc()
}
