package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the extract, chunk and index pipeline run per
// uploaded report.
type WorkerMetrics struct {
	registry *prometheus.Registry

	documents       *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	fragments       prometheus.Counter
	fragmentsPerDoc prometheus.Histogram
	queueLag        prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	labels := prometheus.Labels{"service": service}
	m := &WorkerMetrics{
		registry: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "shiftlog",
			Subsystem:   "worker",
			Name:        "documents_total",
			Help:        "Processed reports by final document status.",
			ConstLabels: labels,
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "shiftlog",
			Subsystem:   "worker",
			Name:        "document_duration_seconds",
			Help:        "Time from picking a report up to ready or failed.",
			ConstLabels: labels,
			Buckets:     []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "shiftlog",
			Subsystem:   "worker",
			Name:        "documents_in_flight",
			Help:        "Reports currently being processed.",
			ConstLabels: labels,
		}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "shiftlog",
			Subsystem:   "worker",
			Name:        "fragments_indexed_total",
			Help:        "Fragments written to the vector store and corpus.",
			ConstLabels: labels,
		}),
		fragmentsPerDoc: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "shiftlog",
			Subsystem:   "worker",
			Name:        "fragments_per_document",
			Help:        "Fragment count of each indexed report.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 10),
		}),
		queueLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "shiftlog",
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between upload and processing start.",
			ConstLabels: labels,
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),
	}
	m.registry.MustRegister(m.documents, m.duration, m.inFlight, m.fragments, m.fragmentsPerDoc, m.queueLag)
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.inFlight.Inc()
}

// FinishDocument records one processed report. fragments is ignored for
// failed reports.
func (m *WorkerMetrics) FinishDocument(duration time.Duration, fragments int, err error) {
	m.inFlight.Dec()

	status := "ready"
	if err != nil {
		status = "failed"
	}
	m.documents.WithLabelValues(status).Inc()
	m.duration.WithLabelValues(status).Observe(duration.Seconds())
	if err == nil && fragments > 0 {
		m.fragments.Add(float64(fragments))
		m.fragmentsPerDoc.Observe(float64(fragments))
	}
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}
