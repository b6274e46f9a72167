package session

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/robalobadob/wolfsheep/internal/game"
)

// Metrics are the session server's prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	Sessions    prometheus.Gauge
	Connections prometheus.Gauge
	Moves       *prometheus.CounterVec
	Games       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hunt",
			Name:      "sessions",
			Help:      "Sessions currently held by the server.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hunt",
			Name:      "connections",
			Help:      "Open client connections.",
		}),
		Moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hunt",
			Name:      "actions_total",
			Help:      "Submitted moves and end-turns by result.",
		}, []string{"result"}),
		Games: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hunt",
			Name:      "games_finished_total",
			Help:      "Finished games by status and reason.",
		}, []string{"status", "reason"}),
	}
	reg.MustRegister(m.Sessions, m.Connections, m.Moves, m.Games)
	return m
}

func (m *Metrics) sessionOpened() {
	if m != nil {
		m.Sessions.Inc()
	}
}

func (m *Metrics) sessionClosed() {
	if m != nil {
		m.Sessions.Dec()
	}
}

func (m *Metrics) connOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) connClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) action(accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.Moves.WithLabelValues("accepted").Inc()
	} else {
		m.Moves.WithLabelValues("rejected").Inc()
	}
}

func (m *Metrics) gameOver(r game.Result) {
	if m != nil {
		m.Games.WithLabelValues(r.Status.String(), r.Reason).Inc()
	}
}
