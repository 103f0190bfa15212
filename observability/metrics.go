package observability

import (
	"chat-relay/contract"
	"net/http"
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_relay"

// Metrics holds the relay's Prometheus collectors on a private registry,
// so several relays can live in one test binary.
// Every method is a no-op on a nil *Metrics.
type Metrics struct {
	registry       *prometheus.Registry
	messagesPosted *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	evictions      prometheus.Counter
	indexDropped   prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_posted_total",
			Help:      "Messages accepted from senders, by persistence result.",
		}, []string{"result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Events pushed to connections, by result.",
		}, []string{"result"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Connections dropped after a failed delivery.",
		}),
		indexDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_dropped_total",
			Help:      "Persisted messages never handed to the search index.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messagesPosted,
		m.deliveries,
		m.evictions,
		m.indexDropped,
	)
	return m
}

// WatchRegistry exposes the registry occupancy as gauges read at scrape time.
func (m *Metrics) WatchRegistry(registry contract.IRegistry) {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Connections subscribed to at least one channel.",
		}, func() float64 { return float64(registry.Stats().Connections) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels",
			Help:      "Channels with at least one subscribed connection.",
		}, func() float64 { return float64(registry.Stats().Channels) }),
	)
}

// WatchQueue exposes the fill level of a buffered channel.
func (m *Metrics) WatchQueue(name string, queue any) {
	if m == nil {
		return
	}
	v := reflect.ValueOf(queue)
	if v.Kind() != reflect.Chan {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "queue_length",
		Help:        "Items waiting in an internal queue.",
		ConstLabels: prometheus.Labels{"queue": name},
	}, func() float64 { return float64(v.Len()) }))
}

func (m *Metrics) MessagePosted(stored bool) {
	if m == nil {
		return
	}
	m.messagesPosted.WithLabelValues(result(stored, "stored", "not_stored")).Inc()
}

func (m *Metrics) Delivered(ok bool) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result(ok, "ok", "failed")).Inc()
}

func (m *Metrics) Evicted() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

func (m *Metrics) IndexDropped() {
	if m == nil {
		return
	}
	m.indexDropped.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func result(ok bool, success, failure string) string {
	if ok {
		return success
	}
	return failure
}
