package infra

import (
	"context"
	"strings"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PromStatsStore expõe as decisões dos gates como contadores Prometheus.
//
// Cuidado com cardinalidade: o label route usa método+path cru. Rotas com IDs
// embutidos no path devem normalizar o Path do StatsEvent antes, ou usar outro
// StatsStore.
type PromStatsStore struct {
	decisions *prometheus.CounterVec
	charges   *prometheus.CounterVec
}

// NewPromStatsStore registra os contadores em reg (prometheus.DefaultRegisterer
// quando nil).
func NewPromStatsStore(reg prometheus.Registerer) *PromStatsStore {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &PromStatsStore{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_decisions_total",
			Help: "Admission decisions by route and outcome.",
		}, []string{"route", "outcome"}),
		charges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_failure_charges_total",
			Help: "Tokens charged after responses classified as failures.",
		}, []string{"route"}),
	}
	reg.MustRegister(s.decisions, s.charges)
	return s
}

func (s *PromStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))

	outcome := "denied"
	if ev.Allowed {
		outcome = "allowed"
	}
	s.decisions.WithLabelValues(route, outcome).Inc()

	if ev.Charged {
		s.charges.WithLabelValues(route).Inc()
	}
	return nil
}
