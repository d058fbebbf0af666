package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kage_build_info",
			Help: "Build information for the kage daemon",
		},
		[]string{"version", "go_version"},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kage_ws_connections",
			Help: "Number of open control WebSocket connections",
		},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kage_actions_total",
			Help: "Dispatched control actions by action and result code",
		},
		[]string{"action", "code"},
	)

	bridgeInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kage_bridge_calls_inflight",
			Help: "Bridge calls waiting for the presentation surface",
		},
	)

	bridgeCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kage_bridge_calls_total",
			Help: "Completed bridge calls by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	visibilityTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kage_visibility_transitions_total",
			Help: "Window show/hide transitions by cause",
		},
		[]string{"cause", "visible"},
	)
)

// Register registers all kage metrics with r.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, wsConnections, actionsTotal, bridgeInflight, bridgeCallsTotal, visibilityTransitions)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	buildInfo.WithLabelValues(version, goVersion).Set(1)
}

// ConnOpened and ConnClosed track open WebSocket connections.
func ConnOpened() { wsConnections.Inc() }
func ConnClosed() { wsConnections.Dec() }

// ActionDone records a dispatched action. code is "OK" for success or the
// wire error code.
func ActionDone(action, code string) {
	actionsTotal.WithLabelValues(action, code).Inc()
}

// BridgeCallStart increments the in-flight gauge.
func BridgeCallStart() { bridgeInflight.Inc() }

// BridgeCallEnd decrements the in-flight gauge and records the outcome.
func BridgeCallEnd(channel, outcome string) {
	bridgeInflight.Dec()
	bridgeCallsTotal.WithLabelValues(channel, outcome).Inc()
}

// VisibilityChanged records a show or hide caused by cause ("toggle",
// "fullscreen_enter", "fullscreen_exit").
func VisibilityChanged(cause string, visible bool) {
	v := "false"
	if visible {
		v = "true"
	}
	visibilityTransitions.WithLabelValues(cause, v).Inc()
}
