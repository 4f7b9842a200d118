package session

import "github.com/prometheus/client_golang/prometheus"

// Session events counted by Metrics.
const (
	eventLoginOK         = "login_ok"
	eventLoginFailed     = "login_failed"
	eventRegisterOK      = "register_ok"
	eventRegisterFailed  = "register_failed"
	eventLogout          = "logout"
	eventUnauthorized    = "unauthorized"
	eventRefreshOK       = "refresh_ok"
	eventRefreshFailed   = "refresh_failed"
	eventHydratedSession = "hydrated"
)

// Metrics counts session transitions. A nil *Metrics records nothing.
type Metrics struct {
	events *prometheus.CounterVec
}

// NewMetrics registers the session counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "firewatch_session_events_total",
			Help: "Session transitions by event.",
		}, []string{"event"}),
	}
	if reg != nil {
		reg.MustRegister(m.events)
	}
	return m
}

func (m *Metrics) observe(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event).Inc()
}
