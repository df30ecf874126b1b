// Package metrics records conversation and HTTP telemetry in Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

const namespace = "ragchat"

// Metrics implements ports.TurnObserver on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	turns          *prometheus.CounterVec
	genErrors      *prometheus.CounterVec
	rejected       *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	retrievedDocs  prometheus.Histogram
	attempts       prometheus.Histogram
	corpusDocs     prometheus.Gauge
	corpusVersion  prometheus.Gauge
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

var _ ports.TurnObserver = (*Metrics)(nil)

// New creates and registers every collector, plus the Go and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by outcome.",
		}, []string{"outcome"}),
		genErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_errors_total",
			Help:      "Failed turns by generation error kind.",
		}, []string{"kind"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_rejected_total",
			Help:      "Rejected submissions by reason.",
		}, []string{"reason"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time from submission to the end of a turn.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),
		retrievedDocs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_documents",
			Help:      "Documents retrieved per turn.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
		}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_attempts",
			Help:      "Generation attempts per turn.",
			Buckets:   []float64{1, 2, 3, 5},
		}),
		corpusDocs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_documents",
			Help:      "Documents in the current corpus snapshot.",
		}),
		corpusVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_version",
			Help:      "Version of the current corpus snapshot.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.turns, m.genErrors, m.rejected, m.turnDuration, m.retrievedDocs,
		m.attempts, m.corpusDocs, m.corpusVersion, m.requests, m.requestLatency,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) TurnRejected(_ string, reason error) {
	m.rejected.WithLabelValues(rejectReason(reason)).Inc()
}

func (m *Metrics) TurnFinished(r ports.TurnReport) {
	outcome := string(r.Outcome)
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.WithLabelValues(outcome).Observe(r.Duration.Seconds())
	m.retrievedDocs.Observe(float64(r.Retrieved))
	if r.Attempts > 0 {
		m.attempts.Observe(float64(r.Attempts))
	}
	if r.Outcome == ports.TurnFailed {
		m.genErrors.WithLabelValues(r.ErrorKind.String()).Inc()
	}
}

// CorpusLoaded records the size and version of a new corpus snapshot.
func (m *Metrics) CorpusLoaded(documents, version int) {
	m.corpusDocs.Set(float64(documents))
	m.corpusVersion.Set(float64(version))
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.requestLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, entities.ErrBusy):
		return "busy"
	case errors.Is(err, entities.ErrEmptyQuery):
		return "empty_query"
	case errors.Is(err, entities.ErrClosed):
		return "closed"
	default:
		return "other"
	}
}
