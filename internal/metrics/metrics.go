// Package metrics exposes Prometheus instrumentation for extractions and the
// shared browser session.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shehryarbajwa/reelgrab/pkg/models"
)

var sessionStates = []models.SessionState{
	models.StateLoggedOut,
	models.StateLoggingIn,
	models.StateLoggedIn,
	models.StateFailed,
}

// Metrics holds all collectors, registered on their own registry
type Metrics struct {
	registry *prometheus.Registry

	extractions        *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	loginAttempts      *prometheus.CounterVec
	sessionState       *prometheus.GaugeVec
	httpRequests       *prometheus.CounterVec
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		extractions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reelgrab_extractions_total",
				Help: "Content extractions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		extractionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reelgrab_extraction_duration_seconds",
				Help:    "Time spent extracting content",
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"kind"},
		),
		loginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reelgrab_login_attempts_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),
		sessionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reelgrab_session_state",
				Help: "1 for the current session state, 0 otherwise",
			},
			[]string{"state"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reelgrab_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}

	m.registry.MustRegister(
		m.extractions,
		m.extractionDuration,
		m.loginAttempts,
		m.sessionState,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.ObserveSessionState(models.StateLoggedOut)
	return m
}

// ObserveExtraction records one finished extraction
func (m *Metrics) ObserveExtraction(kind models.ContentKind, outcome string, elapsed time.Duration) {
	m.extractions.WithLabelValues(string(kind), outcome).Inc()
	m.extractionDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// ObserveSessionState tracks the session state gauge and counts login results
func (m *Metrics) ObserveSessionState(state models.SessionState) {
	for _, s := range sessionStates {
		value := 0.0
		if s == state {
			value = 1
		}
		m.sessionState.WithLabelValues(string(s)).Set(value)
	}

	switch state {
	case models.StateLoggedIn:
		m.loginAttempts.WithLabelValues("success").Inc()
	case models.StateFailed:
		m.loginAttempts.WithLabelValues("failure").Inc()
	}
}

// ObserveHTTP counts a served request
func (m *Metrics) ObserveHTTP(route string, code string) {
	m.httpRequests.WithLabelValues(route, code).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
