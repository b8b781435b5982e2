// Package metrics exposes ledger activity to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/moderation-engine/moderation"
)

// Collector implements moderation.Observer and serves its own registry.
type Collector struct {
	registry *prometheus.Registry

	registered  *prometheus.CounterVec
	revoked     *prometheus.CounterVec
	released    prometheus.Counter
	flushes     *prometheus.CounterVec
	flushTime   prometheus.Histogram
	flushSize   prometheus.Gauge
	httpTotal   *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		registered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_actions_registered_total",
			Help: "Moderation actions registered, by type.",
		}, []string{"type"}),
		revoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_actions_revoked_total",
			Help: "Moderation actions revoked, by type and source.",
		}, []string{"type", "source"}),
		released: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moderation_identifiers_released_total",
			Help: "Identifiers released by expiration sweeps.",
		}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_flushes_total",
			Help: "Snapshot flushes, by result.",
		}, []string{"result"}),
		flushTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "moderation_flush_duration_seconds",
			Help:    "Snapshot flush latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		flushSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "moderation_snapshot_records",
			Help: "Records in the last flushed snapshot.",
		}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
	c.registry.MustRegister(
		c.registered, c.revoked, c.released,
		c.flushes, c.flushTime, c.flushSize,
		c.httpTotal, c.httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// =============================================================================
// moderation.Observer
// =============================================================================

func (c *Collector) ActionRegistered(t moderation.ActionType) {
	c.registered.WithLabelValues(string(t)).Inc()
}

func (c *Collector) ActionRevoked(t moderation.ActionType, bySystem bool) {
	source := "manual"
	if bySystem {
		source = "system"
	}
	c.revoked.WithLabelValues(string(t), source).Inc()
}

func (c *Collector) IdentifiersReleased(n int) {
	c.released.Add(float64(n))
}

func (c *Collector) FlushCompleted(d time.Duration, records int, err error) {
	c.flushTime.Observe(d.Seconds())
	if err != nil {
		c.flushes.WithLabelValues("error").Inc()
		return
	}
	c.flushes.WithLabelValues("ok").Inc()
	c.flushSize.Set(float64(records))
}

// =============================================================================
// HTTP
// =============================================================================

// Instrument records request counts and latencies. Paths are left out of
// the labels because action ids would explode cardinality.
func (c *Collector) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		c.httpLatency.WithLabelValues(r.Method, status).Observe(time.Since(start).Seconds())
		c.httpTotal.WithLabelValues(r.Method, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

var _ moderation.Observer = (*Collector)(nil)
