package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mbianchi/document-worker/internal/core/domain"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	documentsTotal     *prometheus.CounterVec
	processingDuration *prometheus.HistogramVec
	ocrConfidence      *prometheus.HistogramVec
	llmCallsTotal      *prometheus.CounterVec
	llmFallbacksTotal  *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docw",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docw",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docw",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docw",
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Total processed documents by detected format, assigned type and status.",
		},
		[]string{"service", "format", "type", "status"},
	)
	processingDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docw",
			Subsystem: "pipeline",
			Name:      "processing_duration_seconds",
			Help:      "End-to-end document processing duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"service", "format"},
	)
	ocrConfidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docw",
			Subsystem: "ocr",
			Name:      "confidence",
			Help:      "Distribution of mean OCR confidence per document (0-100).",
			Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"service"},
	)
	llmCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docw",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total remote model analyses by mode and outcome.",
		},
		[]string{"service", "mode", "status"},
	)
	llmFallbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docw",
			Subsystem: "llm",
			Name:      "fallbacks_total",
			Help:      "Total documents that fell back to the heuristic classification.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		documentsTotal,
		processingDuration,
		ocrConfidence,
		llmCallsTotal,
		llmFallbacksTotal,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		documentsTotal:     documentsTotal,
		processingDuration: processingDuration,
		ocrConfidence:      ocrConfidence,
		llmCallsTotal:      llmCallsTotal,
		llmFallbacksTotal:  llmFallbacksTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) RecordDocument(service string, format domain.DetectedFormat, docType domain.DocumentType, duration time.Duration) {
	status := "success"
	if docType == domain.TypeError {
		status = "error"
	}
	m.documentsTotal.WithLabelValues(service, string(format), string(docType), status).Inc()
	m.processingDuration.WithLabelValues(service, string(format)).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordOCRConfidence(service string, confidence float64) {
	m.ocrConfidence.WithLabelValues(service).Observe(confidence)
}

func (m *HTTPServerMetrics) RecordLLMCall(service, mode string, failed bool) {
	status := "success"
	if failed {
		status = "degraded"
	}
	m.llmCallsTotal.WithLabelValues(service, mode, status).Inc()
}

func (m *HTTPServerMetrics) RecordHeuristicFallback(service string) {
	m.llmFallbacksTotal.WithLabelValues(service).Inc()
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

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
