package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the presenter.
type Metrics struct {
	registry      *prometheus.Registry
	requestsTotal prometheus.Counter
	commandsSent  *prometheus.CounterVec
	commandErrors *prometheus.CounterVec
	chordsFired   *prometheus.CounterVec
	clockTicks    prometheus.Counter
	playing       prometheus.Gauge
	hubConnected  prometheus.Gauge
	audience      prometheus.Gauge
}

// New creates and registers Prometheus metrics for the presenter.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "presenter_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		commandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presenter_commands_sent_total",
			Help: "Commands accepted by the hub transport",
		}, []string{"kind"}),
		commandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presenter_command_errors_total",
			Help: "Commands the hub transport failed to send",
		}, []string{"kind"}),
		chordsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presenter_chords_fired_total",
			Help: "Keyboard chords that triggered navigation",
		}, []string{"action"}),
		clockTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "presenter_clock_ticks_total",
			Help: "Playback clock periods counted",
		}),
		playing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "presenter_playing",
			Help: "1 while a segment is playing",
		}),
		hubConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "presenter_hub_connected",
			Help: "1 while the hub connection is open",
		}),
		audience: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "presenter_audience_count",
			Help: "Last audience count pushed by the hub",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.commandsSent,
		m.commandErrors,
		m.chordsFired,
		m.clockTicks,
		m.playing,
		m.hubConnected,
		m.audience,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// CommandSent records a command by kind, counting failures separately.
func (m *Metrics) CommandSent(kind string, err error) {
	if err != nil {
		m.commandErrors.WithLabelValues(kind).Inc()
		return
	}
	m.commandsSent.WithLabelValues(kind).Inc()
}

// ChordFired counts a chord action.
func (m *Metrics) ChordFired(action string) {
	m.chordsFired.WithLabelValues(action).Inc()
}

// IncClockTicks counts one clock period.
func (m *Metrics) IncClockTicks() {
	m.clockTicks.Inc()
}

// SetPlaying sets the playing gauge.
func (m *Metrics) SetPlaying(v bool) {
	m.playing.Set(boolValue(v))
}

// SetHubConnected sets the hub connection gauge.
func (m *Metrics) SetHubConnected(v bool) {
	m.hubConnected.Set(boolValue(v))
}

// SetAudience sets the audience gauge.
func (m *Metrics) SetAudience(n float64) {
	m.audience.Set(n)
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
