package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the playout server.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         prometheus.Counter
	errorsTotal           prometheus.Counter
	transitionsTotal      *prometheus.CounterVec
	transitionErrorsTotal prometheus.Counter
	obsCallsTotal         prometheus.Counter
	obsCallErrorsTotal    prometheus.Counter
	wsMessagesSentTotal   prometheus.Counter
	wsObservers           prometheus.Gauge
	obsConnected          prometheus.Gauge
}

// New creates and registers Prometheus metrics for the playout server.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playout_http_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playout_http_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	transitionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playout_transitions_total",
		Help: "Total number of committed playout transitions, by media kind",
	}, []string{"kind"})
	transitionErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playout_transition_errors_total",
		Help: "Total number of playout transitions aborted by an error",
	})
	obsCallsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playout_obs_calls_total",
		Help: "Total number of requests issued to the OBS websocket",
	})
	obsCallErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playout_obs_call_errors_total",
		Help: "Total number of OBS websocket requests that failed",
	})
	wsMessagesSentTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playout_ws_messages_sent_total",
		Help: "Total number of messages pushed to realtime observers",
	})
	wsObservers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playout_ws_observers",
		Help: "Number of currently connected realtime observers",
	})
	obsConnected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playout_obs_connected",
		Help: "Whether the OBS websocket connection is up (1) or down (0)",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		transitionsTotal,
		transitionErrorsTotal,
		obsCallsTotal,
		obsCallErrorsTotal,
		wsMessagesSentTotal,
		wsObservers,
		obsConnected,
	)

	return &Metrics{
		registry:              registry,
		requestsTotal:         requestsTotal,
		errorsTotal:           errorsTotal,
		transitionsTotal:      transitionsTotal,
		transitionErrorsTotal: transitionErrorsTotal,
		obsCallsTotal:         obsCallsTotal,
		obsCallErrorsTotal:    obsCallErrorsTotal,
		wsMessagesSentTotal:   wsMessagesSentTotal,
		wsObservers:           wsObservers,
		obsConnected:          obsConnected,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the HTTP error counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncTransition increments the committed transition counter for a media kind.
func (m *Metrics) IncTransition(kind string) {
	m.transitionsTotal.WithLabelValues(kind).Inc()
}

// IncTransitionError increments the aborted transition counter.
func (m *Metrics) IncTransitionError() {
	m.transitionErrorsTotal.Inc()
}

// IncOBSCall increments the OBS request counter.
func (m *Metrics) IncOBSCall() {
	m.obsCallsTotal.Inc()
}

// IncOBSCallError increments the failed OBS request counter.
func (m *Metrics) IncOBSCallError() {
	m.obsCallErrorsTotal.Inc()
}

// IncWSMessages increments the observer push counter.
func (m *Metrics) IncWSMessages() {
	m.wsMessagesSentTotal.Inc()
}

// SetObservers sets the connected observer gauge.
func (m *Metrics) SetObservers(n int) {
	m.wsObservers.Set(float64(n))
}

// SetOBSConnected sets the OBS connection gauge.
func (m *Metrics) SetOBSConnected(up bool) {
	if up {
		m.obsConnected.Set(1)
		return
	}
	m.obsConnected.Set(0)
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. the observer count).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
