package tagstore

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the tag store's Prometheus instruments, grounded on the
// teacher's prometheus.NewGaugeFunc-style collectors registered alongside
// its in-memory store. A nil *Metrics (the zero value) is safe to use: all
// methods become no-ops, so tests that don't care about metrics can skip
// registration entirely.
type Metrics struct {
	tagCount    prometheus.GaugeFunc
	writesTotal prometheus.Counter
	queueDepth  *prometheus.GaugeVec
}

// NewMetrics builds and registers the tag store's metrics against reg.
func NewMetrics(reg prometheus.Registerer, store *Store) *Metrics {
	m := &Metrics{
		tagCount: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "opendax",
			Subsystem: "tagstore",
			Name:      "tags",
			Help:      "Number of live tags in the tag store.",
		}, func() float64 { return float64(store.Count()) }),
		writesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opendax",
			Subsystem: "tagstore",
			Name:      "writes_total",
			Help:      "Total number of successful tag writes.",
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "opendax",
			Subsystem: "tagstore",
			Name:      "queue_depth",
			Help:      "Live element count of queue tags, by tag name.",
		}, []string{"tag"}),
	}
	reg.MustRegister(m.tagCount, m.writesTotal, m.queueDepth)
	return m
}

func (m *Metrics) observeWrite(t *Tag) {
	if m == nil {
		return
	}
	m.writesTotal.Inc()
	if t.Queue != nil {
		m.queueDepth.WithLabelValues(t.Name).Set(float64(t.Queue.Len()))
	}
}
