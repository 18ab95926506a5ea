package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values for load results and show outcomes.
const (
	LoadReady  = "ready"
	LoadFailed = "failed"

	ShowShown    = "shown"
	ShowNotReady = "not_ready"
)

// Metrics holds Prometheus counters and gauges for the ad waterfall service.
type Metrics struct {
	registry      *prometheus.Registry
	requestsTotal prometheus.Counter
	errorsTotal   prometheus.Counter
	loadRequests  *prometheus.CounterVec
	loadResults   *prometheus.CounterVec
	loadTimeouts  *prometheus.CounterVec
	shows         *prometheus.CounterVec
	displayEvents *prometheus.CounterVec
	readySources  prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adw_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adw_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		loadRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adw_load_requests_total",
			Help: "Load requests issued to the ad SDK, per source",
		}, []string{"source"}),
		loadResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adw_load_results_total",
			Help: "Load callbacks received from the ad SDK, per source and result",
		}, []string{"source", "result"}),
		loadTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adw_load_timeouts_total",
			Help: "Load waits abandoned after the load timeout, per source",
		}, []string{"source"}),
		shows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adw_show_total",
			Help: "Show requests, by outcome",
		}, []string{"result"}),
		displayEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adw_display_events_total",
			Help: "Display callbacks received from the ad SDK, per source and event",
		}, []string{"source", "event"}),
		readySources: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adw_ready_sources",
			Help: "Number of ad sources holding a displayable ad",
		}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.loadRequests,
		m.loadResults,
		m.loadTimeouts,
		m.shows,
		m.displayEvents,
		m.readySources,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncLoadRequests counts a load request issued to the SDK for source.
func (m *Metrics) IncLoadRequests(source string) {
	m.loadRequests.WithLabelValues(source).Inc()
}

// IncLoadResult counts a load callback; result is LoadReady or LoadFailed.
func (m *Metrics) IncLoadResult(source, result string) {
	m.loadResults.WithLabelValues(source, result).Inc()
}

// IncLoadTimeouts counts a load wait abandoned after the load timeout.
func (m *Metrics) IncLoadTimeouts(source string) {
	m.loadTimeouts.WithLabelValues(source).Inc()
}

// IncShow counts a show request; result is ShowShown or ShowNotReady.
func (m *Metrics) IncShow(result string) {
	m.shows.WithLabelValues(result).Inc()
}

// IncDisplayEvent counts a display callback (displayed, clicked, dismissed, display_failed).
func (m *Metrics) IncDisplayEvent(source, event string) {
	m.displayEvents.WithLabelValues(source, event).Inc()
}

// SetReadySources sets the ready sources gauge.
func (m *Metrics) SetReadySources(n int) {
	m.readySources.Set(float64(n))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. ready sources).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}
