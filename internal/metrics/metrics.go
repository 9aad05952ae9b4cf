// Package metrics holds the Prometheus collectors for the booth. They are
// registered on the default registry and served from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Trigger results used as the "result" label.
const (
	ResultAccepted    = "accepted"
	ResultDropped     = "dropped"
	ResultMalformed   = "malformed"
	ResultRateLimited = "rate_limited"
)

var (
	// PhaseTransitions counts phase changes by origin and destination.
	PhaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photobooth_phase_transitions_total",
		Help: "Session phase transitions by from/to phase",
	}, []string{"from", "to"})

	// CurrentPhase is 1 for the active phase and 0 for the others.
	CurrentPhase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "photobooth_current_phase",
		Help: "Active session phase (1 = active)",
	}, []string{"phase"})

	// Triggers counts inbound control messages by name and result.
	Triggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photobooth_triggers_total",
		Help: "Inbound control triggers by name and result",
	}, []string{"name", "result"})

	// PixelsProcessed counts pixels pushed through the filter pipeline.
	PixelsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photobooth_pixels_processed_total",
		Help: "Pixels processed by the filter pipeline",
	})

	// CameraFailures counts frame captures that failed.
	CameraFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photobooth_camera_failures_total",
		Help: "Failed frame captures",
	})

	// TickDuration tracks how long one Advance plus publish takes.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "photobooth_tick_duration_seconds",
		Help:    "Duration of one engine tick",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12), // 50µs to ~100ms
	})

	// StatusSendErrors counts outbound OSC status messages that failed.
	StatusSendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photobooth_status_send_errors_total",
		Help: "Outbound OSC status messages that could not be sent",
	})

	// WSClients is the number of connected websocket clients.
	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "photobooth_ws_clients",
		Help: "Connected websocket clients",
	})
)
