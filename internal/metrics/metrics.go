package metrics

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/root4loot/thumbnailer"
)

// Metrics bundles prometheus collectors used by the thumbnailer server.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
	BatchesTotal       *prometheus.CounterVec
	BatchesRunning     prometheus.Gauge
	CapturesTotal      *prometheus.CounterVec
	CaptureDurationSec prometheus.Histogram
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbnailer_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "thumbnailer_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbnailer_batches_total",
			Help: "Total number of finished batches by outcome.",
		}, []string{"state"}),
		BatchesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thumbnailer_batches_running",
			Help: "Number of batches currently running.",
		}),
		CapturesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbnailer_captures_total",
			Help: "Total number of captured work items by result.",
		}, []string{"result"}),
		CaptureDurationSec: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "thumbnailer_capture_duration_seconds",
			Help:    "Time to load, capture and encode one work item.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
		}),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDurationSec,
		m.BatchesTotal,
		m.BatchesRunning,
		m.CapturesTotal,
		m.CaptureDurationSec,
	)

	return m
}

// BatchRunner matches session.BatchRunner.
type BatchRunner interface {
	Run(ctx context.Context, batch thumbnailer.Batch, reporter thumbnailer.Reporter) (*thumbnailer.Payload, error)
}

// Instrument wraps runner so that every batch and item it processes is counted.
func (m *Metrics) Instrument(runner BatchRunner) BatchRunner {
	return &instrumentedRunner{next: runner, metrics: m}
}

type instrumentedRunner struct {
	next    BatchRunner
	metrics *Metrics
}

func (r *instrumentedRunner) Run(ctx context.Context, batch thumbnailer.Batch, reporter thumbnailer.Reporter) (*thumbnailer.Payload, error) {
	r.metrics.BatchesRunning.Inc()
	defer r.metrics.BatchesRunning.Dec()

	payload, err := r.next.Run(ctx, batch, thumbnailer.MultiReporter(reporter, captureRecorder{r.metrics}))
	if err != nil {
		r.metrics.BatchesTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	r.metrics.BatchesTotal.WithLabelValues("completed").Inc()
	return payload, nil
}

type captureRecorder struct {
	metrics *Metrics
}

func (c captureRecorder) ItemStarted(index, total int, item thumbnailer.WorkItem) {}

func (c captureRecorder) ItemFinished(index, total int, result thumbnailer.CaptureResult) {
	outcome := "ok"
	if !result.OK() {
		outcome = "failed"
	}
	c.metrics.CapturesTotal.WithLabelValues(outcome).Inc()
	c.metrics.CaptureDurationSec.Observe(result.Duration.Seconds())
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := normalizeRoute(r.URL.Path)
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())
	})
}

var apiRoutes = map[string]bool{
	"/api/v1/preview":  true,
	"/api/v1/batches":  true,
	"/api/v1/session":  true,
	"/api/v1/archive":  true,
	"/api/v1/manifest": true,
	"/api/v1/reset":    true,
}

func normalizeRoute(path string) string {
	switch {
	case path == "/":
		return "/"
	case path == "/ws" || path == "/healthz" || path == "/metrics":
		return path
	case apiRoutes[path]:
		return path
	case strings.HasPrefix(path, "/api/"):
		return "/api/*"
	case strings.HasPrefix(path, "/static/"):
		return "/static/*"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack passes websocket upgrades through wrapped ResponseWriter.
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
