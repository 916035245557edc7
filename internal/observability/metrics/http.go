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
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	chatRequestsTotal *prometheus.CounterVec
	chatDuration      *prometheus.HistogramVec
	expandedQueries   *prometheus.HistogramVec
	fusedSources      *prometheus.HistogramVec
	noContextTotal    *prometheus.CounterVec
	streamEventsTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragblueprint",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragblueprint",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragblueprint",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	chatRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragblueprint",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total finished chat streams by terminal status.",
		},
		[]string{"service", "status"},
	)
	chatDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragblueprint",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "End-to-end chat stream duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	expandedQueries := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragblueprint",
			Subsystem: "chat",
			Name:      "search_queries",
			Help:      "Distribution of search queries issued per chat request.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8},
		},
		[]string{"service"},
	)
	fusedSources := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragblueprint",
			Subsystem: "chat",
			Name:      "fused_sources",
			Help:      "Distribution of fused source documents per chat request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	noContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragblueprint",
			Subsystem: "chat",
			Name:      "no_context_total",
			Help:      "Total chat requests answered without retrieved sources.",
		},
		[]string{"service"},
	)
	streamEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragblueprint",
			Subsystem: "chat",
			Name:      "stream_events_total",
			Help:      "Total stream events relayed to clients by type.",
		},
		[]string{"service", "type"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		chatRequestsTotal,
		chatDuration,
		expandedQueries,
		fusedSources,
		noContextTotal,
		streamEventsTotal,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		chatRequestsTotal: chatRequestsTotal,
		chatDuration:      chatDuration,
		expandedQueries:   expandedQueries,
		fusedSources:      fusedSources,
		noContextTotal:    noContextTotal,
		streamEventsTotal: streamEventsTotal,
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

// RecordChatStream captures one finished chat stream. Status is the
// terminal outcome: done, error or cancelled.
func (m *HTTPServerMetrics) RecordChatStream(service, status string, queryCount, sourceCount int, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.chatRequestsTotal.WithLabelValues(service, status).Inc()
	m.chatDuration.WithLabelValues(service).Observe(duration.Seconds())
	if queryCount > 0 {
		m.expandedQueries.WithLabelValues(service).Observe(float64(queryCount))
	}
	m.fusedSources.WithLabelValues(service).Observe(float64(sourceCount))
	if sourceCount == 0 {
		m.noContextTotal.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordStreamEvent(service, eventType string) {
	m.streamEventsTotal.WithLabelValues(service, eventType).Inc()
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
