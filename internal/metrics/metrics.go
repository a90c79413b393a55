// Package metrics holds the Prometheus collectors of the web process.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"expense/internal/amqp"
	"expense/internal/cache"
)

const namespace = "expense"

// Metrics groups the collectors. Each instance owns its registry so tests
// can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	RateLimited        prometheus.Counter
	SuspiciousRequests prometheus.Counter
	ExpenseWrites      *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route pattern and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Write requests rejected by the rate limiter.",
		}),
		SuspiciousRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "suspicious_requests_total",
			Help:      "Requests matching known attack patterns.",
		}),
		ExpenseWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Successful expense writes by event type.",
		}, []string{"type"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WatchCache exports the size and hit counters of a named cache.
func (m *Metrics) WatchCache(name string, stats func() cache.Stats) {
	labels := prometheus.Labels{"cache": name}
	factory := promauto.With(m.registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "entries",
		Help:        "Current number of cache entries.",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Size) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "hits_total",
		Help:        "Cache hits.",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Hits) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "misses_total",
		Help:        "Cache misses.",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Misses) })
}

// Publisher is the expense event sink counted by CountWrites.
type Publisher interface {
	PublishExpenseEvent(ctx context.Context, ev amqp.ExpenseEvent) error
}

type countingPublisher struct {
	next    Publisher
	counter *prometheus.CounterVec
}

// CountWrites counts every expense event before handing it to next, which
// may be nil when no broker is configured.
func (m *Metrics) CountWrites(next Publisher) Publisher {
	return &countingPublisher{next: next, counter: m.ExpenseWrites}
}

func (p *countingPublisher) PublishExpenseEvent(ctx context.Context, ev amqp.ExpenseEvent) error {
	p.counter.WithLabelValues(string(ev.Type)).Inc()
	if p.next == nil {
		return nil
	}
	return p.next.PublishExpenseEvent(ctx, ev)
}
