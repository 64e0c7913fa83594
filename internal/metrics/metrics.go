// Package metrics exposes Prometheus counters for the generation pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	LaunchesTotal      *prometheus.CounterVec
	UsageCharged       prometheus.Counter
	ReconcilesTotal    *prometheus.CounterVec
	EnhancementsTotal  *prometheus.CounterVec
	QueuePublishFailed prometheus.Counter

	// Worker metrics
	WorkerMessagesTotal *prometheus.CounterVec
}

// New registers all metrics with reg. Passing nil uses the default registry.
func New(reg *prometheus.Registry) *Metrics {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer = reg
		gatherer = reg
	}
	factory := promauto.With(registerer)

	return &Metrics{
		gatherer: gatherer,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		LaunchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prediction_launches_total",
				Help: "Predictions started at the provider, by result",
			},
			[]string{"result"},
		),
		UsageCharged: factory.NewCounter(prometheus.CounterOpts{
			Name: "usage_units_charged_total",
			Help: "Units added to user usage counters",
		}),
		ReconcilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prediction_reconciles_total",
				Help: "Status reconciliations, by observed status and whether the record advanced",
			},
			[]string{"status", "applied"},
		),
		EnhancementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prediction_enhancements_total",
				Help: "Enhancement stage runs, by result",
			},
			[]string{"result"},
		),
		QueuePublishFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "reconcile_publish_failures_total",
			Help: "Reconcile messages that could not be published",
		}),

		WorkerMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_messages_total",
				Help: "Reconcile messages settled by the worker, by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordLaunch counts one provider launch attempt
func (m *Metrics) RecordLaunch(err error) {
	if m == nil {
		return
	}
	m.LaunchesTotal.WithLabelValues(result(err)).Inc()
}

// RecordCharge counts units added to a usage counter
func (m *Metrics) RecordCharge(units int) {
	if m == nil || units <= 0 {
		return
	}
	m.UsageCharged.Add(float64(units))
}

// RecordReconcile counts one persisted status observation
func (m *Metrics) RecordReconcile(status string, applied bool) {
	if m == nil {
		return
	}
	m.ReconcilesTotal.WithLabelValues(status, strconv.FormatBool(applied)).Inc()
}

// RecordEnhancement counts one enhancement stage run
func (m *Metrics) RecordEnhancement(err error) {
	if m == nil {
		return
	}
	m.EnhancementsTotal.WithLabelValues(result(err)).Inc()
}

// RecordPublishFailure counts a reconcile message that was not enqueued
func (m *Metrics) RecordPublishFailure() {
	if m == nil {
		return
	}
	m.QueuePublishFailed.Inc()
}

// RecordWorkerOutcome counts one settled reconcile message
func (m *Metrics) RecordWorkerOutcome(outcome string) {
	if m == nil {
		return
	}
	m.WorkerMessagesTotal.WithLabelValues(outcome).Inc()
}

// Middleware records request count and latency per route
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
