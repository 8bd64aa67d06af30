package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
)

type HTTPServerMetrics struct {
	service  string
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalTotal      *prometheus.CounterVec
	retrievalDuration   *prometheus.HistogramVec
	retrievalCandidates *prometheus.HistogramVec
	retrievalDegraded   *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftlog",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shiftlog",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "shiftlog",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftlog",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total retrievals by strategy and outcome.",
		},
		[]string{"service", "strategy", "outcome"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shiftlog",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "strategy"},
	)
	retrievalCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shiftlog",
			Subsystem: "retrieval",
			Name:      "candidates",
			Help:      "Candidates per retrieval stage.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 50, 75, 100},
		},
		[]string{"service", "stage"},
	)
	retrievalDegraded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftlog",
			Subsystem: "retrieval",
			Name:      "degraded_total",
			Help:      "Retrievals answered without one search path.",
		},
		[]string{"service", "path"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalTotal,
		retrievalDuration,
		retrievalCandidates,
		retrievalDegraded,
	)

	return &HTTPServerMetrics{
		service:             service,
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		retrievalTotal:      retrievalTotal,
		retrievalDuration:   retrievalDuration,
		retrievalCandidates: retrievalCandidates,
		retrievalDegraded:   retrievalDegraded,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

// ObserveRetrieval records one finished retrieval.
func (m *HTTPServerMetrics) ObserveRetrieval(query domain.RetrievalQuery, result *domain.RetrievalResult, duration time.Duration, err error) {
	strategy := string(query.Strategy)
	if strategy == "" {
		strategy = "unknown"
	}
	m.retrievalDuration.WithLabelValues(m.service, strategy).Observe(duration.Seconds())

	switch {
	case err != nil || result == nil:
		m.retrievalTotal.WithLabelValues(m.service, strategy, "error").Inc()
		return
	case result.NoEvidence:
		m.retrievalTotal.WithLabelValues(m.service, strategy, "no_evidence").Inc()
	default:
		m.retrievalTotal.WithLabelValues(m.service, strategy, "ok").Inc()
	}

	m.retrievalCandidates.WithLabelValues(m.service, "dense").Observe(float64(result.Counts.Dense))
	m.retrievalCandidates.WithLabelValues(m.service, "sparse").Observe(float64(result.Counts.Sparse))
	m.retrievalCandidates.WithLabelValues(m.service, "union").Observe(float64(result.Counts.Union))
	m.retrievalCandidates.WithLabelValues(m.service, "filtered").Observe(float64(result.Counts.Filtered))
	m.retrievalCandidates.WithLabelValues(m.service, "returned").Observe(float64(result.Counts.Returned))
	for _, path := range result.Degraded {
		m.retrievalDegraded.WithLabelValues(m.service, path).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
