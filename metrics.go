package ldbx

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the optional Prometheus wiring for an Env. Passing nil
// Options.Metrics disables instrumentation entirely; every call site in
// the engine that touches it already guards on nil.
type Metrics struct {
	commitsTotal       prometheus.Counter
	abortsTotal        prometheus.Counter
	commitDuration     prometheus.Histogram
	readersOpenedTotal prometheus.Counter
	readersLive        prometheus.Gauge
	pagesAllocated     prometheus.Counter
	pagesFreed         prometheus.Counter
	corruptionsTotal   prometheus.Counter
}

// NewMetrics builds and registers the engine's metrics against reg. Pass
// prometheus.DefaultRegisterer to use the global registry, or a fresh
// prometheus.NewRegistry() in tests to avoid collisions between cases.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ldbx",
			Name:      "commits_total",
			Help:      "Number of write transactions successfully committed.",
		}),
		abortsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ldbx",
			Name:      "commit_aborts_total",
			Help:      "Number of write transactions that failed partway through the commit protocol.",
		}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ldbx",
			Name:      "commit_duration_seconds",
			Help:      "Wall-clock time spent in the dual-meta commit protocol.",
			Buckets:   prometheus.DefBuckets,
		}),
		readersOpenedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ldbx",
			Name:      "reader_snapshots_opened_total",
			Help:      "Number of read transactions opened over the life of the process.",
		}),
		readersLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ldbx",
			Name:      "reader_snapshots_live",
			Help:      "Number of read transactions currently open.",
		}),
		pagesAllocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ldbx",
			Name:      "pages_allocated_total",
			Help:      "Number of pages handed out by a writer, whether reused from the freelist or freshly extended.",
		}),
		pagesFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ldbx",
			Name:      "pages_freed_total",
			Help:      "Number of pages enqueued for freelist reclamation.",
		}),
		corruptionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ldbx",
			Name:      "page_corruptions_total",
			Help:      "Number of pages that failed checksum or kind validation on read.",
		}),
	}
	reg.MustRegister(
		m.commitsTotal,
		m.abortsTotal,
		m.commitDuration,
		m.readersOpenedTotal,
		m.readersLive,
		m.pagesAllocated,
		m.pagesFreed,
		m.corruptionsTotal,
	)
	return m
}
