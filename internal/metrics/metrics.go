package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registration outcomes
const (
	RegistrationPersisted = "persisted"
	RegistrationFailed    = "failed"
	RegistrationBadCode   = "invalid_code"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	MembersCreated  prometheus.Counter
	MembersDeleted  prometheus.Counter
	Registrations   *prometheus.CounterVec
	CodesGenerated  prometheus.Counter
	CodesUsed       prometheus.Counter
	UploadRollbacks prometheus.Counter
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	SessionsExpired prometheus.Counter
}

// New creates a registry and registers all metrics on it
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg)
}

// NewWithRegistry registers all metrics on reg
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		MembersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "memberdir_members_created_total",
			Help: "Total number of members created by registration or admin add",
		}),
		MembersDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "memberdir_members_deleted_total",
			Help: "Total number of members deleted or rejected",
		}),
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memberdir_registrations_total",
			Help: "Public registration submissions by outcome",
		}, []string{"result"}),
		CodesGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "memberdir_codes_generated_total",
			Help: "Total number of registration codes generated",
		}),
		CodesUsed: factory.NewCounter(prometheus.CounterOpts{
			Name: "memberdir_codes_used_total",
			Help: "Total number of registration codes consumed",
		}),
		UploadRollbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "memberdir_upload_rollbacks_total",
			Help: "Number of upload batches rolled back after a failed operation",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memberdir_http_requests_total",
			Help: "HTTP requests by method and status code",
		}, []string{"method", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memberdir_http_request_duration_seconds",
			Help:    "HTTP request duration by method",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method"}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "memberdir_admin_sessions_expired_total",
			Help: "Expired admin sessions removed by the cleanup job",
		}),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementMembersCreated() {
	if m != nil {
		m.MembersCreated.Inc()
	}
}

func (m *Metrics) IncrementMembersDeleted() {
	if m != nil {
		m.MembersDeleted.Inc()
	}
}

// ObserveRegistration records the outcome of one registration submission
func (m *Metrics) ObserveRegistration(result string) {
	if m != nil {
		m.Registrations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncrementCodesGenerated() {
	if m != nil {
		m.CodesGenerated.Inc()
	}
}

func (m *Metrics) IncrementCodesUsed() {
	if m != nil {
		m.CodesUsed.Inc()
	}
}

func (m *Metrics) IncrementUploadRollbacks() {
	if m != nil {
		m.UploadRollbacks.Inc()
	}
}

func (m *Metrics) AddSessionsExpired(n int64) {
	if m != nil && n > 0 {
		m.SessionsExpired.Add(float64(n))
	}
}

// ObserveRequest records one served HTTP request.
// Call with time.Now() at the start of the request.
func (m *Metrics) ObserveRequest(method string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
