// ABOUTME: Prometheus collectors for the webhook gateway and conversation machine
// ABOUTME: Uses a private registry so tests and multiple gateways never collide

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/photoid-gateway/internal/conversation"
)

const namespace = "photoid"

// Metrics holds every collector the gateway exports.
type Metrics struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	eventDuration *prometheus.HistogramVec
	webhooks      *prometheus.CounterVec
	duplicates    prometheus.Counter
}

// New registers the collectors on a fresh registry. pending reports the
// number of conversations awaiting an identifier; nil leaves the gauge out.
func New(pending func() int) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Chat events handled, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time spent handling one chat event, including fetch, store and reply.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Webhook deliveries, by HTTP status returned.",
		}, []string{"status"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redeliveries_dropped_total",
			Help:      "Webhook events skipped because their id was already handled.",
		}),
	}

	reg.MustRegister(
		m.events,
		m.eventDuration,
		m.webhooks,
		m.duplicates,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if pending != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_images",
			Help:      "Conversations holding an image that still awaits its identifier.",
		}, func() float64 { return float64(pending()) }))
	}

	return m
}

// ObserveOutcome implements conversation.Observer.
func (m *Metrics) ObserveOutcome(kind conversation.EventKind, outcome conversation.Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind.String(), outcome.String()).Inc()
	m.eventDuration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
}

// ObserveWebhook counts one webhook delivery by its response status.
func (m *Metrics) ObserveWebhook(status int) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(strconv.Itoa(status)).Inc()
}

// ObserveDuplicate counts one dropped redelivery.
func (m *Metrics) ObserveDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ conversation.Observer = (*Metrics)(nil)
