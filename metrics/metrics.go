// Package metrics exposes Prometheus collectors for the catalog cache and
// the HTTP layer. Everything registers on its own registry so tests and
// multiple App instances do not collide on the global one.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/eringen/gallery/catalog"
)

const namespace = "gallery"

// Metrics implements catalog.Recorder.
type Metrics struct {
	Registry *prometheus.Registry

	CacheRequests   *prometheus.CounterVec
	Fetches         *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	Entries         prometheus.Gauge
	Skipped         prometheus.Gauge
	PreviewFailures prometheus.Gauge
	LastPopulated   prometheus.Gauge
}

// New creates the collectors on a fresh registry, along with the standard
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		CacheRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "catalog",
				Name:      "cache_requests_total",
				Help:      "Catalog reads by outcome (hit or miss).",
			},
			[]string{"result"},
		),
		Fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "catalog",
				Name:      "fetches_total",
				Help:      "Remote catalog fetches by outcome.",
			},
			[]string{"result"},
		),
		FetchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "catalog",
				Name:      "fetch_duration_seconds",
				Help:      "Time to fetch and reduce the remote catalog.",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		Entries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "entries",
			Help:      "Entries in the current catalog.",
		}),
		Skipped: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "skipped_records",
			Help:      "Malformed records dropped from the current catalog.",
		}),
		PreviewFailures: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "preview_failures",
			Help:      "Entries in the current catalog without a blur placeholder.",
		}),
		LastPopulated: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "last_populated_timestamp_seconds",
			Help:      "Unix time the current catalog was fetched.",
		}),
	}
}

func (m *Metrics) CacheHit()  { m.CacheRequests.WithLabelValues("hit").Inc() }
func (m *Metrics) CacheMiss() { m.CacheRequests.WithLabelValues("miss").Inc() }

func (m *Metrics) FetchCompleted(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Fetches.WithLabelValues(result).Inc()
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) Populated(c *catalog.Catalog) {
	m.Entries.Set(float64(c.Len()))
	m.Skipped.Set(float64(c.Skipped))
	m.PreviewFailures.Set(float64(c.PreviewFailures))
	m.LastPopulated.Set(float64(c.FetchedAt.Unix()))
}

var _ catalog.Recorder = (*Metrics)(nil)
