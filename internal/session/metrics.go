package session

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/predeactor/captchad/internal/domain"
)

// Metrics counts challenge sessions. A nil *Metrics disables counting, which
// keeps tests free of registry collisions.
type Metrics struct {
	started  prometheus.Counter
	outcomes *prometheus.CounterVec
}

func NewMetrics(r prometheus.Registerer) *Metrics {
	m := &Metrics{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "captchad_sessions_started_total",
			Help: "Number of challenge sessions started.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "captchad_session_outcomes_total",
			Help: "Number of finished challenge sessions by terminal state.",
		}, []string{"outcome"}),
	}
	r.MustRegister(m.started, m.outcomes)
	return m
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.started.Inc()
}

func (m *Metrics) SessionFinished(state domain.State) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(state)).Inc()
}
