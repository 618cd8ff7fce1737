package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the controller's counters and exports them to Prometheus.
type Metrics struct {
	// Capture loop
	FramesRead    atomic.Uint64
	FramesWithRed atomic.Uint64
	DetectErrors  atomic.Uint64
	EncodeErrors  atomic.Uint64

	// Notifier
	Transitions  atomic.Uint64
	MessagesSent atomic.Uint64
	SerialErrors atomic.Uint64
	AlertActive  atomic.Uint64 // 0 = quiet, 1 = alert

	// Stream fan-out
	FramesBroadcast atomic.Uint64
	FramesDropped   atomic.Uint64
	ActiveViewers   atomic.Int64
	TotalViewers    atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	gauges := []struct {
		name string
		help string
		fn   func() float64
	}{
		{"camcontrol_frames_read_total", "Frames read from the camera", func() float64 { return float64(m.FramesRead.Load()) }},
		{"camcontrol_frames_with_red_total", "Frames where the red target was present", func() float64 { return float64(m.FramesWithRed.Load()) }},
		{"camcontrol_detect_errors_total", "Frames the detector could not process", func() float64 { return float64(m.DetectErrors.Load()) }},
		{"camcontrol_encode_errors_total", "Frames that failed JPEG encoding", func() float64 { return float64(m.EncodeErrors.Load()) }},
		{"camcontrol_transitions_total", "Quiet/alert state transitions", func() float64 { return float64(m.Transitions.Load()) }},
		{"camcontrol_serial_messages_total", "Messages written to the microcontroller", func() float64 { return float64(m.MessagesSent.Load()) }},
		{"camcontrol_serial_errors_total", "Failed serial writes", func() float64 { return float64(m.SerialErrors.Load()) }},
		{"camcontrol_alert_active", "1 while the target is reported present", func() float64 { return float64(m.AlertActive.Load()) }},
		{"camcontrol_stream_frames_total", "Frames handed to the stream fan-out", func() float64 { return float64(m.FramesBroadcast.Load()) }},
		{"camcontrol_stream_frames_dropped_total", "Frames skipped for slow viewers", func() float64 { return float64(m.FramesDropped.Load()) }},
		{"camcontrol_stream_viewers", "Connected MJPEG viewers", func() float64 { return float64(m.ActiveViewers.Load()) }},
		{"camcontrol_stream_viewers_total", "MJPEG viewers since start", func() float64 { return float64(m.TotalViewers.Load()) }},
	}

	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			g.fn,
		))
	}
}

// SetAlert records the notifier's current state.
func (m *Metrics) SetAlert(active bool) {
	if active {
		m.AlertActive.Store(1)
		return
	}
	m.AlertActive.Store(0)
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
