package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the live stream server.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	eventsEmitted   *prometheus.CounterVec
	publishFailures *prometheus.CounterVec
	loopsTotal      prometheus.Counter
	playbackTime    prometheus.Gauge
	votesTotal      *prometheus.CounterVec
	pollsClosed     *prometheus.CounterVec
	controlCommands *prometheus.CounterVec
	requestsTotal   prometheus.Counter
	requestErrors   prometheus.Counter
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livestream_events_emitted_total",
			Help: "Scripted events published by the timeline, by channel",
		}, []string{"channel"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livestream_publish_failures_total",
			Help: "Bus publish calls that returned an error, by channel",
		}, []string{"channel"}),
		loopsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livestream_loops_total",
			Help: "Timeline wrap-arounds",
		}),
		playbackTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livestream_playback_time_ms",
			Help: "Current playback time of the timeline in milliseconds",
		}),
		votesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livestream_votes_total",
			Help: "Votes recorded by the poll aggregator, by poll type",
		}, []string{"poll_type"}),
		pollsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livestream_polls_closed_total",
			Help: "Polls resolved with final results, by poll type",
		}, []string{"poll_type"}),
		controlCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livestream_control_commands_total",
			Help: "Control commands handled, by type",
		}, []string{"type"}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livestream_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		requestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livestream_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
	}

	registry.MustRegister(
		m.eventsEmitted,
		m.publishFailures,
		m.loopsTotal,
		m.playbackTime,
		m.votesTotal,
		m.pollsClosed,
		m.controlCommands,
		m.requestsTotal,
		m.requestErrors,
	)
	return m
}

func (m *Metrics) IncEventsEmitted(channel string) {
	if m == nil {
		return
	}
	m.eventsEmitted.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncPublishFailures(channel string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncLoops() {
	if m == nil {
		return
	}
	m.loopsTotal.Inc()
}

func (m *Metrics) SetPlaybackTime(ms int64) {
	if m == nil {
		return
	}
	m.playbackTime.Set(float64(ms))
}

func (m *Metrics) IncVotes(pollType string) {
	if m == nil {
		return
	}
	m.votesTotal.WithLabelValues(pollType).Inc()
}

func (m *Metrics) IncPollsClosed(pollType string) {
	if m == nil {
		return
	}
	m.pollsClosed.WithLabelValues(pollType).Inc()
}

func (m *Metrics) IncControlCommands(controlType string) {
	if m == nil {
		return
	}
	m.controlCommands.WithLabelValues(controlType).Inc()
}

// Handler returns an http.Handler that serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
