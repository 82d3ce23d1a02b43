package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics for the ledger service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	journalsPosted   *prometheus.CounterVec
	postingsRejected *prometheus.CounterVec
	fxIngestTotal    *prometheus.CounterVec
	reportBuilds     *prometheus.CounterVec
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	journalsPosted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_journals_posted_total",
		Help: "Journals posted by source module.",
	}, []string{"source"})
	postingsRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_postings_rejected_total",
		Help: "Posting attempts rejected by stable error code.",
	}, []string{"code"})
	fxIngest := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_fx_ingest_total",
		Help: "FX ingestion attempts by source and outcome.",
	}, []string{"source", "outcome"})
	reportBuilds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_report_builds_total",
		Help: "Financial statement builds by report type.",
	}, []string{"report"})

	registry.MustRegister(requests, duration, journalsPosted, postingsRejected, fxIngest, reportBuilds)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		journalsPosted:   journalsPosted,
		postingsRejected: postingsRejected,
		fxIngestTotal:    fxIngest,
		reportBuilds:     reportBuilds,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// JournalPosted counts a successful posting from the given source module.
func (m *Metrics) JournalPosted(source string) {
	if m == nil {
		return
	}
	if source == "" {
		source = "manual"
	}
	m.journalsPosted.WithLabelValues(source).Inc()
}

// PostingRejected counts a posting rejection by its stable error code.
func (m *Metrics) PostingRejected(code string) {
	if m == nil || code == "" {
		return
	}
	m.postingsRejected.WithLabelValues(code).Inc()
}

// FxIngest counts an FX ingestion attempt outcome ("ok" or "error").
func (m *Metrics) FxIngest(source, outcome string) {
	if m == nil {
		return
	}
	m.fxIngestTotal.WithLabelValues(source, outcome).Inc()
}

// ReportBuilt counts a statement build.
func (m *Metrics) ReportBuilt(report string) {
	if m == nil {
		return
	}
	m.reportBuilds.WithLabelValues(report).Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
