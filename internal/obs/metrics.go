package obs

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "livedata"

// Snapshot outcomes
const (
	SnapshotHit      = "hit"
	SnapshotNotFound = "not_found"
	SnapshotTimeout  = "timeout"
	SnapshotCanceled = "canceled"
)

// Cache outcomes
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Metrics collects counters for the ingest, store, distribution and resolver
// paths. A nil *Metrics is valid and records nothing.
type Metrics struct {
	connectorRuns      *prometheus.CounterVec
	recordsReceived    prometheus.Counter
	storeUpdates       prometheus.Counter
	storeKeys          prometheus.Gauge
	snapshots          *prometheus.CounterVec
	deliveries         prometheus.Counter
	coalesced          prometheus.Counter
	senderErrors       prometheus.Counter
	activeDistributors prometheus.Gauge
	cacheRequests      *prometheus.CounterVec

	deliveryLatency LatencyStats
}

// NewMetrics builds the collectors and registers them on reg when reg is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connectorRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_runs_total",
			Help:      "Connector job runs by result.",
		}, []string{"result"}),
		recordsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_records_total",
			Help:      "Records dispatched by connector jobs.",
		}),
		storeUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_updates_total",
			Help:      "Values written to the latest value store.",
		}),
		storeKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_keys",
			Help:      "Keys held by the latest value store.",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshot requests by outcome.",
		}, []string{"result"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Values delivered to senders.",
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coalesced_total",
			Help:      "Updates superseded before they could be delivered.",
		}),
		senderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sender_errors_total",
			Help:      "Failed sender deliveries.",
		}),
		activeDistributors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "distributors",
			Help:      "Active subscription distributors.",
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_cache_requests_total",
			Help:      "Resolver cache lookups by cache and outcome.",
		}, []string{"cache", "result"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.connectorRuns,
		m.recordsReceived,
		m.storeUpdates,
		m.storeKeys,
		m.snapshots,
		m.deliveries,
		m.coalesced,
		m.senderErrors,
		m.activeDistributors,
		m.cacheRequests,
	}
}

// ObserveConnectorRun records the end of a connector run.
func (m *Metrics) ObserveConnectorRun(err error) {
	if m == nil {
		return
	}
	result := "clean"
	if err != nil {
		result = "error"
	}
	m.connectorRuns.WithLabelValues(result).Inc()
}

// IncRecord records one dispatched record.
func (m *Metrics) IncRecord() {
	if m == nil {
		return
	}
	m.recordsReceived.Inc()
}

// ObserveStoreUpdate records a store write and the resulting key count.
func (m *Metrics) ObserveStoreUpdate(keys int) {
	if m == nil {
		return
	}
	m.storeUpdates.Inc()
	m.storeKeys.Set(float64(keys))
}

// ObserveSnapshot records a snapshot outcome.
func (m *Metrics) ObserveSnapshot(result string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(result).Inc()
}

// ObserveDelivery records one delivery cycle and its latency from notification.
func (m *Metrics) ObserveDelivery(d time.Duration) {
	if m == nil {
		return
	}
	m.deliveries.Inc()
	m.deliveryLatency.Observe(d)
}

// IncCoalesced records an update that was superseded before delivery.
func (m *Metrics) IncCoalesced() {
	if m == nil {
		return
	}
	m.coalesced.Inc()
}

// IncSenderError records a failed send.
func (m *Metrics) IncSenderError() {
	if m == nil {
		return
	}
	m.senderErrors.Inc()
}

// AddDistributors adjusts the active distributor gauge.
func (m *Metrics) AddDistributors(delta int) {
	if m == nil {
		return
	}
	m.activeDistributors.Add(float64(delta))
}

// ObserveCache records a cache lookup outcome.
func (m *Metrics) ObserveCache(cache string, hit bool) {
	if m == nil {
		return
	}
	result := CacheMiss
	if hit {
		result = CacheHit
	}
	m.cacheRequests.WithLabelValues(cache, result).Inc()
}

// DeliveryLatency returns the aggregated delivery latency.
func (m *Metrics) DeliveryLatency() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{}
	}
	return m.deliveryLatency.Snapshot()
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
	}
}
