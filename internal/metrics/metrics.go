package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "remindmail"

// Tick results
const (
	TickOK      = "ok"
	TickError   = "error"
	TickSkipped = "skipped"
)

// Delivery failure stages
const (
	StageSend = "send"
	StageMark = "mark"
)

// Metrics holds the application collectors
type Metrics struct {
	gatherer prometheus.Gatherer

	RemindersCreated  prometheus.Counter
	RemindersSent     prometheus.Counter
	DeliveryFailures  *prometheus.CounterVec
	PollerTicks       *prometheus.CounterVec
	PollerTickSeconds prometheus.Histogram
	HTTPRequests      *prometheus.CounterVec
	HTTPSeconds       *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		gatherer: reg,
		RemindersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_created_total",
			Help:      "Total number of reminders scheduled",
		}),
		RemindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_delivered_total",
			Help:      "Total number of reminders delivered and marked sent",
		}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Delivery failures by stage",
		}, []string{"stage"}),
		PollerTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poller_ticks_total",
			Help:      "Poller iterations by result",
		}, []string{"result"}),
		PollerTickSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poller_tick_duration_seconds",
			Help:      "Duration of poller iterations",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.RemindersCreated,
		m.RemindersSent,
		m.DeliveryFailures,
		m.PollerTicks,
		m.PollerTickSeconds,
		m.HTTPRequests,
		m.HTTPSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ReminderCreated counts a persisted reminder
func (m *Metrics) ReminderCreated() {
	m.RemindersCreated.Inc()
}

// ReminderDelivered counts a reminder that was sent and marked
func (m *Metrics) ReminderDelivered() {
	m.RemindersSent.Inc()
}

// DeliveryFailed counts a failure at the given stage
func (m *Metrics) DeliveryFailed(stage string) {
	m.DeliveryFailures.WithLabelValues(stage).Inc()
}

// TickFinished records one poller iteration
func (m *Metrics) TickFinished(result string, took time.Duration) {
	m.PollerTicks.WithLabelValues(result).Inc()
	if result != TickSkipped {
		m.PollerTickSeconds.Observe(took.Seconds())
	}
}

// RequestServed records one HTTP request
func (m *Metrics) RequestServed(method, route string, status int, took time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPSeconds.WithLabelValues(route).Observe(took.Seconds())
}
