package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wippyai/gcroot/heap"
)

// Metrics exports heap and root counters of one runtime to Prometheus.
type Metrics struct {
	allocations prometheus.Counter
	finalized   prometheus.Counter
	collections prometheus.Counter
	live        prometheus.Gauge
	roots       prometheus.Gauge
	pause       prometheus.Histogram
}

// NewMetrics registers the runtime metrics with r, labelled with the
// runtime name.
func NewMetrics(r prometheus.Registerer, runtime string) *Metrics {
	labels := prometheus.Labels{"runtime": runtime}
	f := promauto.With(r)
	return &Metrics{
		allocations: f.NewCounter(prometheus.CounterOpts{
			Name:        "gcroot_heap_allocations_total",
			Help:        "number of heap cells allocated",
			ConstLabels: labels,
		}),
		finalized: f.NewCounter(prometheus.CounterOpts{
			Name:        "gcroot_heap_finalized_total",
			Help:        "number of heap cells reclaimed",
			ConstLabels: labels,
		}),
		collections: f.NewCounter(prometheus.CounterOpts{
			Name:        "gcroot_heap_collections_total",
			Help:        "number of heap collections",
			ConstLabels: labels,
		}),
		live: f.NewGauge(prometheus.GaugeOpts{
			Name:        "gcroot_heap_live_cells",
			Help:        "number of live heap cells",
			ConstLabels: labels,
		}),
		roots: f.NewGauge(prometheus.GaugeOpts{
			Name:        "gcroot_roots",
			Help:        "number of registered roots",
			ConstLabels: labels,
		}),
		pause: f.NewHistogram(prometheus.HistogramOpts{
			Name:        "gcroot_heap_collection_seconds",
			Help:        "duration of heap collections",
			Buckets:     prometheus.ExponentialBuckets(0.00001, 4, 8),
			ConstLabels: labels,
		}),
	}
}

// OnHeapEvent implements heap.Observer.
func (m *Metrics) OnHeapEvent(e heap.Event) {
	switch e.Type {
	case heap.EventAlloc:
		m.allocations.Inc()
		m.live.Inc()
	case heap.EventFinalize:
		m.finalized.Inc()
	case heap.EventCollect:
		m.collections.Inc()
		m.live.Set(float64(e.Stats.Live))
		m.pause.Observe(e.Stats.LastPause.Seconds())
	}
}

func (m *Metrics) setRoots(n int) {
	m.roots.Set(float64(n))
}
