// Package metrics defines the Prometheus collectors deckhand exports on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProbesTotal counts utilization probes by node and result ("ok" or a failure reason).
	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckhand_probe_total",
			Help: "Total number of utilization probes sent to daemons",
		},
		[]string{"node", "result"},
	)

	// ProbeDuration tracks how long each probe took in seconds.
	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deckhand_probe_duration_seconds",
			Help:    "Duration of utilization probes in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"node"},
	)

	// FleetNodes is the node count per health bucket from the latest aggregation.
	FleetNodes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deckhand_fleet_nodes",
			Help: "Nodes per health status from the most recent fleet aggregation",
		},
		[]string{"status"},
	)

	// SessionsActive tracks live daemon sessions by state.
	SessionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deckhand_sessions",
			Help: "Number of daemon sessions per connection state",
		},
		[]string{"state"},
	)

	// PowerActionsTotal counts power action resolutions.
	PowerActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckhand_power_actions_total",
			Help: "Total power actions by action and resolution",
		},
		[]string{"action", "resolution"},
	)

	// ReconnectsTotal counts reconnect attempts made by sessions.
	ReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deckhand_session_reconnects_total",
			Help: "Total reconnect attempts made by daemon sessions",
		},
	)
)

// RecordProbe records one probe outcome and its duration.
func RecordProbe(node, result string, seconds float64) {
	ProbesTotal.WithLabelValues(node, result).Inc()
	ProbeDuration.WithLabelValues(node).Observe(seconds)
}

// SetFleetNodes publishes the health bucket counts.
func SetFleetNodes(healthy, unhealthy int) {
	FleetNodes.WithLabelValues("healthy").Set(float64(healthy))
	FleetNodes.WithLabelValues("unhealthy").Set(float64(unhealthy))
}

// RecordSessionTransition moves one session from one state gauge to another.
// An empty from or to skips that side.
func RecordSessionTransition(from, to string) {
	if from != "" {
		SessionsActive.WithLabelValues(from).Dec()
	}
	if to != "" {
		SessionsActive.WithLabelValues(to).Inc()
	}
}

// RecordPowerAction counts a resolved power action.
func RecordPowerAction(action, resolution string) {
	PowerActionsTotal.WithLabelValues(action, resolution).Inc()
}

// RecordReconnect counts one reconnect attempt.
func RecordReconnect() {
	ReconnectsTotal.Inc()
}
