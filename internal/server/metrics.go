package server

import (
	"net/http"

	"github.com/mfenderov/pagechat/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chat request outcomes.
const (
	chatOK      = "ok"
	chatInvalid = "invalid"
	chatError   = "error"
)

// Metrics holds the Prometheus collectors on a dedicated registry.
type Metrics struct {
	registry       *prometheus.Registry
	submissions    *prometheus.CounterVec
	ingestDuration prometheus.Histogram
	chatRequests   *prometheus.CounterVec
}

// NewMetrics creates and registers the pagechat collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagechat_submissions_total",
			Help: "URL submissions by outcome.",
		}, []string{"outcome"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pagechat_ingestion_duration_seconds",
			Help:    "Time spent ingesting a page, successful or not.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagechat_chat_requests_total",
			Help: "Chat requests by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.submissions,
		m.ingestDuration,
		m.chatRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveSubmission records a finished submission. It is meant to be passed
// to the orchestrator's OnEvent.
func (m *Metrics) ObserveSubmission(ev events.SubmissionEvent) {
	m.submissions.WithLabelValues(ev.Outcome).Inc()
	if ev.IngestDuration > 0 {
		m.ingestDuration.Observe(ev.IngestDuration.Seconds())
	}
}

func (m *Metrics) observeChat(outcome string) {
	m.chatRequests.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
