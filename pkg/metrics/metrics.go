package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rentfolio/notification-service/internal/models"
)

// Metrics exposes the delivery counters, labeled by channel.
type Metrics struct {
	registry  *prometheus.Registry
	consumed  *prometheus.CounterVec
	delivered *prometheus.CounterVec
	failed    *prometheus.CounterVec
	retried   *prometheus.CounterVec
}

// New registers the counter set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_deliveries_consumed_total",
			Help: "Delivery requests picked up from the queue.",
		}, []string{"channel"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_deliveries_delivered_total",
			Help: "Deliveries that ended in success (including disabled-channel no-ops).",
		}, []string{"channel"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_deliveries_failed_total",
			Help: "Deliveries that exhausted their retry budget.",
		}, []string{"channel"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_delivery_retries_total",
			Help: "Attempts that failed and were scheduled for retry.",
		}, []string{"channel"}),
	}
	registry.MustRegister(m.consumed, m.delivered, m.failed, m.retried)
	return m
}

func (m *Metrics) Consumed(channel models.Channel)  { m.consumed.WithLabelValues(string(channel)).Inc() }
func (m *Metrics) Delivered(channel models.Channel) { m.delivered.WithLabelValues(string(channel)).Inc() }
func (m *Metrics) Failed(channel models.Channel)    { m.failed.WithLabelValues(string(channel)).Inc() }
func (m *Metrics) Retried(channel models.Channel)   { m.retried.WithLabelValues(string(channel)).Inc() }

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
