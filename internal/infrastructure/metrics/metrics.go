// Package metrics exposes Prometheus collectors for the lifecycle engine,
// audit delivery and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domainwf "github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
)

const namespace = "barangay"

// Metrics holds every collector on a private registry
type Metrics struct {
	registry *prometheus.Registry

	applyTotal   *prometheus.CounterVec
	applyLatency *prometheus.HistogramVec
	createTotal  *prometheus.CounterVec

	auditDelivered prometheus.Counter
	auditRetried   prometheus.Counter
	auditDropped   *prometheus.CounterVec
	auditQueue     prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// New registers all collectors plus the Go and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		applyTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "apply_total",
			Help:      "Transition attempts by request type, target status and result code.",
		}, []string{"type", "target", "result"}),
		applyLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "apply_duration_seconds",
			Help:      "Latency of Apply including storage retries.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"result"}),
		createTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "create_total",
			Help:      "Request submissions by type and result code.",
		}, []string{"type", "result"}),
		auditDelivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "delivered_total",
			Help:      "History entries published to the audit stream.",
		}),
		auditRetried: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "retried_total",
			Help:      "Failed audit publish attempts that were retried.",
		}),
		auditDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "dropped_total",
			Help:      "History entries abandoned by the audit queue.",
		}, []string{"reason"}),
		auditQueue: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "queue_depth",
			Help:      "History entries waiting for delivery.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveApply records one Apply outcome
func (m *Metrics) ObserveApply(requestType domainwf.RequestType, target domainwf.Status, result string, elapsed time.Duration) {
	rt := string(requestType)
	if rt == "" {
		rt = "unknown"
	}
	m.applyTotal.WithLabelValues(rt, string(target), result).Inc()
	m.applyLatency.WithLabelValues(result).Observe(elapsed.Seconds())
}

// ObserveCreate records one CreateRequest outcome
func (m *Metrics) ObserveCreate(requestType domainwf.RequestType, result string) {
	m.createTotal.WithLabelValues(string(requestType), result).Inc()
}

// Delivered implements audit.Observer
func (m *Metrics) Delivered() { m.auditDelivered.Inc() }

// Retried implements audit.Observer
func (m *Metrics) Retried() { m.auditRetried.Inc() }

// Dropped implements audit.Observer
func (m *Metrics) Dropped(reason string) { m.auditDropped.WithLabelValues(reason).Inc() }

// QueueDepth implements audit.Observer
func (m *Metrics) QueueDepth(n int) { m.auditQueue.Set(float64(n)) }

// GinMiddleware records request counts and latency per matched route
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpLatency.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
