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

// Metrics holds the Prometheus collectors for one server instance. Each
// instance owns its registry so several can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	RequestsCreatedTotal   *prometheus.CounterVec
	RequestsCompletedTotal prometheus.Counter
	RequestsCancelledTotal prometheus.Counter
	TransitionsRejected    *prometheus.CounterVec

	HubSubscribers  prometheus.Gauge
	HubDroppedTotal prometheus.Counter
	HubEventsTotal  *prometheus.CounterVec
	QRRenderedTotal *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsCreatedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapcall",
			Name:      "requests_created_total",
			Help:      "Total number of service requests created, by type",
		}, []string{"type"}),
		RequestsCompletedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tapcall",
			Name:      "requests_completed_total",
			Help:      "Total number of requests marked completed by staff",
		}),
		RequestsCancelledTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tapcall",
			Name:      "requests_cancelled_total",
			Help:      "Total number of requests cancelled by customers",
		}),
		TransitionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapcall",
			Name:      "transition_rejected_total",
			Help:      "Complete or cancel attempts on requests that were no longer pending",
		}, []string{"op"}),
		HubSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "tapcall",
			Subsystem: "hub",
			Name:      "subscribers",
			Help:      "Currently connected real-time subscribers",
		}),
		HubDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tapcall",
			Subsystem: "hub",
			Name:      "dropped_total",
			Help:      "Subscribers disconnected because they fell behind",
		}),
		HubEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapcall",
			Subsystem: "hub",
			Name:      "events_total",
			Help:      "Events published to the hub, by event name",
		}, []string{"event"}),
		QRRenderedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapcall",
			Subsystem: "qr",
			Name:      "rendered_total",
			Help:      "QR codes rendered, by result",
		}, []string{"result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapcall",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tapcall",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
