package valve

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for the controller and the
// sequence engine. A nil *Metrics is valid and records nothing.
type Metrics struct {
	commands *prometheus.HistogramVec
	lines    *prometheus.CounterVec
	events   *prometheus.CounterVec
	runs     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "valve",
				Name:      "command_duration_seconds",
				Help:      "Round-trip time of commands sent to the valve controller.",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"command", "outcome"},
		),
		lines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "valve",
				Name:      "lines_total",
				Help:      "Lines received from the valve controller by classification.",
			},
			[]string{"kind"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "valve",
				Name:      "hardware_events_total",
				Help:      "Unsolicited position changes reported by the hardware buttons.",
			},
			[]string{"position"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "valve",
				Name:      "sequence_runs_total",
				Help:      "Finished sequence runs by outcome.",
			},
			[]string{"outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.commands, m.lines, m.events, m.runs)
	}
	return m
}

func (m *Metrics) observeCommand(cmd byte, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(string(rune(cmd)), outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) countLine(kind string) {
	if m == nil {
		return
	}
	m.lines.WithLabelValues(kind).Inc()
}

func (m *Metrics) countEvent(p Position) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(p.String()).Inc()
}

// ObserveRun counts a finished sequence run.
func (m *Metrics) ObserveRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}
