package bot

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bot's Prometheus collectors.
type Metrics struct {
	loopsActive   *prometheus.GaugeVec
	loopExits     *prometheus.CounterVec
	commandsTotal *prometheus.CounterVec
	actionsFailed *prometheus.CounterVec
	eventsTotal   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loopsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roombot_loops_active",
			Help: "Number of running loops by kind.",
		}, []string{"kind"}),
		loopExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roombot_loop_exits_total",
			Help: "Loops that ended, by kind and reason.",
		}, []string{"kind", "reason"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roombot_commands_total",
			Help: "Chat commands matched, by rule.",
		}, []string{"rule"}),
		actionsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roombot_actions_failed_total",
			Help: "Actions that failed against the platform, by op.",
		}, []string{"op"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roombot_events_total",
			Help: "Room events handled, by type.",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.loopsActive,
		m.loopExits,
		m.commandsTotal,
		m.actionsFailed,
		m.eventsTotal,
	)

	return m
}
