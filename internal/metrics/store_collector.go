package metrics

import "github.com/prometheus/client_golang/prometheus"

// StoreStats is a snapshot of registry counters, polled on scrape.
type StoreStats struct {
	Puts                uint64
	Gets                uint64
	Queries             uint64
	Updates             uint64
	ConditionalFailures uint64
	Deletes             uint64
	Scans               uint64
	CacheHits           uint64
	CacheMisses         uint64
	Backend             string
}

// ObserveStore registers a collector that exports the registry's counters
// on every scrape. Call once, after the store exists.
func (m *Metrics) ObserveStore(fn func() StoreStats) {
	if !m.enabled || fn == nil {
		return
	}
	m.registry.MustRegister(&storeCollector{fn: fn})
}

type storeCollector struct {
	fn func() StoreStats
}

var (
	storeOpsDesc = prometheus.NewDesc(
		namespace+"_store_operations_total",
		"Store gateway operations by kind",
		[]string{"op", "backend"}, nil,
	)
	storeCondFailDesc = prometheus.NewDesc(
		namespace+"_store_conditional_failures_total",
		"Conditional updates rejected by the (version, state) guard",
		[]string{"backend"}, nil,
	)
	storeCacheDesc = prometheus.NewDesc(
		namespace+"_store_cache_events_total",
		"Record cache lookups by result",
		[]string{"result", "backend"}, nil,
	)
)

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- storeOpsDesc
	ch <- storeCondFailDesc
	ch <- storeCacheDesc
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.fn()
	counter := func(desc *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}

	counter(storeOpsDesc, s.Puts, "put", s.Backend)
	counter(storeOpsDesc, s.Gets, "get", s.Backend)
	counter(storeOpsDesc, s.Queries, "query", s.Backend)
	counter(storeOpsDesc, s.Updates, "update", s.Backend)
	counter(storeOpsDesc, s.Deletes, "delete", s.Backend)
	counter(storeOpsDesc, s.Scans, "scan", s.Backend)
	counter(storeCondFailDesc, s.ConditionalFailures, s.Backend)
	counter(storeCacheDesc, s.CacheHits, "hit", s.Backend)
	counter(storeCacheDesc, s.CacheMisses, "miss", s.Backend)
}
