package arena

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a Listener that exports engine activity to Prometheus.
//
// Usage:
//
//	metrics := arena.NewMetrics(prometheus.DefaultRegisterer)
//	engine := arena.NewBuilder().
//	    Listener(metrics).
//	    ...
type Metrics struct {
	NopListener

	loaded      prometheus.Gauge
	players     *prometheus.GaugeVec
	states      *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	joins       prometheus.Counter
	quits       *prometheus.CounterVec
	matches     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arena",
			Name:      "loaded",
			Help:      "Number of loaded arenas.",
		}),
		players: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "arena",
			Name:      "players",
			Help:      "Number of players inside each arena.",
		}, []string{"arena", "mode"}),
		states: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "arena",
			Name:      "state",
			Help:      "1 for the current state of each arena, 0 otherwise.",
		}, []string{"arena", "state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "state_transitions_total",
			Help:      "State transitions, by target state.",
		}, []string{"to"}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "joins_total",
			Help:      "Players admitted into arenas.",
		}),
		quits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "quits_total",
			Help:      "Players removed from arenas.",
		}, []string{"forced"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "matches_total",
			Help:      "Finished matches, by mode.",
		}, []string{"mode"}),
	}
	reg.MustRegister(m.loaded, m.players, m.states, m.transitions, m.joins, m.quits, m.matches)
	return m
}

func (m *Metrics) HandleLoad(a *Arena) {
	m.loaded.Inc()
	m.players.WithLabelValues(a.ID(), a.Mode().Name()).Set(0)
	m.setState(a, a.State())
}

func (m *Metrics) HandleUnload(a *Arena) {
	m.loaded.Dec()
	m.players.DeleteLabelValues(a.ID(), a.Mode().Name())
	for s := State(0); s < stateCount; s++ {
		m.states.DeleteLabelValues(a.ID(), s.String())
	}
}

func (m *Metrics) HandleStateChange(a *Arena, _, to State) {
	m.transitions.WithLabelValues(to.String()).Inc()
	m.setState(a, to)
}

func (m *Metrics) HandleJoin(a *Arena, _ *Snapshot) {
	m.joins.Inc()
	m.players.WithLabelValues(a.ID(), a.Mode().Name()).Set(float64(a.Mode().PlayerCount()))
}

func (m *Metrics) HandleQuit(a *Arena, _ *Snapshot, forced bool) {
	label := "false"
	if forced {
		label = "true"
	}
	m.quits.WithLabelValues(label).Inc()
	m.players.WithLabelValues(a.ID(), a.Mode().Name()).Set(float64(a.Mode().PlayerCount()))
}

func (m *Metrics) HandleMatchEnd(a *Arena, _ []*Snapshot) {
	m.matches.WithLabelValues(a.Mode().Name()).Inc()
}

func (m *Metrics) setState(a *Arena, current State) {
	for s := State(0); s < stateCount; s++ {
		v := 0.0
		if s == current {
			v = 1
		}
		m.states.WithLabelValues(a.ID(), s.String()).Set(v)
	}
}
