package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Tenancy metrics
	ContextSwitchesTotal    *prometheus.CounterVec
	ContextFailuresTotal    *prometheus.CounterVec
	PredicateDenialsTotal   *prometheus.CounterVec
	CrossTenantWritesTotal  prometheus.Counter
	BootstrapLookupsTotal   *prometheus.CounterVec
	AssignmentCacheHits     prometheus.Counter
	AssignmentCacheMisses   prometheus.Counter

	// Audit metrics
	AuditEventsTotal      *prometheus.CounterVec
	AuditEmitFailuresTotal prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camber_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "camber_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ContextSwitchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camber_tenant_context_switches_total",
				Help: "Total number of tenant context assertions, one per transaction",
			},
			[]string{"actor_type"},
		),
		ContextFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camber_tenant_context_failures_total",
				Help: "Total number of failed context resolutions, by failure class",
			},
			[]string{"reason"},
		),
		PredicateDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camber_predicate_denials_total",
				Help: "Total number of rows or statements denied by tenant predicates",
			},
			[]string{"table", "operation"},
		),
		CrossTenantWritesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "camber_cross_tenant_write_rejections_total",
				Help: "Total number of writes rejected for carrying a foreign association id",
			},
		),
		BootstrapLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camber_bootstrap_lookups_total",
				Help: "Total number of RLS-exempt ownership lookups",
			},
			[]string{"item_type"},
		),
		AssignmentCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "camber_assignment_cache_hits_total",
				Help: "Total number of assignment-bypass cache hits",
			},
		),
		AssignmentCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "camber_assignment_cache_misses_total",
				Help: "Total number of assignment-bypass cache misses",
			},
		),

		AuditEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camber_audit_events_total",
				Help: "Total number of audit events recorded, by family",
			},
			[]string{"family"},
		),
		AuditEmitFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "camber_audit_emit_failures_total",
				Help: "Total number of audit events that failed to persist",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "camber_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "camber_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ContextSwitchesTotal,
		m.ContextFailuresTotal,
		m.PredicateDenialsTotal,
		m.CrossTenantWritesTotal,
		m.BootstrapLookupsTotal,
		m.AssignmentCacheHits,
		m.AssignmentCacheMisses,
		m.AuditEventsTotal,
		m.AuditEmitFailuresTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// statusRecorder wraps http.ResponseWriter to capture the response status
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware records request count and duration for every request
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start).Seconds()
		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(recorder.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

// ObserveDBStats copies connection pool statistics into the gauges
func (m *Metrics) ObserveDBStats(open, idle int) {
	m.DBConnectionsActive.Set(float64(open))
	m.DBConnectionsIdle.Set(float64(idle))
}
