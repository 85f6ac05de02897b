// Package metrics exports the engine, interceptor and backup coordinator's
// counters as Prometheus instruments, in the register-per-metric-with-error
// style of
// _examples/weaviate-weaviate/usecases/replica/metrics.go, adapted for the
// gauges/histograms this module actually needs (queue depth, block-state
// cardinalities, backup batch duration) rather than replica read/write
// counts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/taosdata/incbitmap/internal/backup"
	"github.com/taosdata/incbitmap/internal/engine"
	"github.com/taosdata/incbitmap/internal/interceptor"
)

var batchDurationBuckets = prometheus.ExponentialBuckets(0.001, 2, 16) // ~1ms to 32s

// Metrics holds every instrument this module exports. The *Metrics returned
// by NewMetrics with a nil Registerer has no instruments; its Sample*/
// Observe* calls leave no metrics behind, mirroring the "monitoring bool"
// guard pattern in the corpus. A nil *Metrics is not usable.
type Metrics struct {
	enabled bool

	blocksDirty   prometheus.Gauge
	blocksNew     prometheus.Gauge
	blocksDeleted prometheus.Gauge
	blocksTotal   prometheus.Gauge
	engineMemory  prometheus.Gauge

	eventsProcessed prometheus.Counter
	eventsDropped   prometheus.Counter
	eventsRejected  prometheus.Counter
	queueDepth      prometheus.Gauge

	backupBlocksTotal prometheus.Counter
	backupBytesTotal  prometheus.Counter
	backupErrors      prometheus.Counter
	backupRetries     prometheus.Counter
	batchDuration     prometheus.Histogram
}

// NewMetrics registers every instrument against reg. Passing a nil
// Registerer disables collection entirely (Sample becomes a no-op), useful
// for tests and for hosts that don't run a Prometheus exporter.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{}
	if reg == nil {
		return m, nil
	}
	m.enabled = true

	var err error
	if m.blocksDirty, err = newGauge(reg, "incbitmap_blocks_dirty", "Blocks currently in the DIRTY state"); err != nil {
		return nil, err
	}
	if m.blocksNew, err = newGauge(reg, "incbitmap_blocks_new", "Blocks currently in the NEW state"); err != nil {
		return nil, err
	}
	if m.blocksDeleted, err = newGauge(reg, "incbitmap_blocks_deleted", "Blocks currently in the DELETED state"); err != nil {
		return nil, err
	}
	if m.blocksTotal, err = newGauge(reg, "incbitmap_blocks_total", "Total blocks tracked by the bitmap engine"); err != nil {
		return nil, err
	}
	if m.engineMemory, err = newGauge(reg, "incbitmap_engine_memory_bytes", "Approximate memory used by the bitmap engine's state bitmaps and metadata map"); err != nil {
		return nil, err
	}
	if m.eventsProcessed, err = newCounter(reg, "incbitmap_events_processed_total", "Storage engine events dispatched to the bitmap engine"); err != nil {
		return nil, err
	}
	if m.eventsDropped, err = newCounter(reg, "incbitmap_events_dropped_total", "Events dropped because the intake queue was full"); err != nil {
		return nil, err
	}
	if m.eventsRejected, err = newCounter(reg, "incbitmap_events_rejected_total", "Events rejected by an illegal state transition"); err != nil {
		return nil, err
	}
	if m.queueDepth, err = newGauge(reg, "incbitmap_event_queue_depth", "Current depth of the event intake ring buffer"); err != nil {
		return nil, err
	}
	if m.backupBlocksTotal, err = newCounter(reg, "incbitmap_backup_blocks_total", "Blocks read by the backup coordinator"); err != nil {
		return nil, err
	}
	if m.backupBytesTotal, err = newCounter(reg, "incbitmap_backup_bytes_total", "Bytes read by the backup coordinator"); err != nil {
		return nil, err
	}
	if m.backupErrors, err = newCounter(reg, "incbitmap_backup_errors_total", "Backup block reads that failed after exhausting retries"); err != nil {
		return nil, err
	}
	if m.backupRetries, err = newCounter(reg, "incbitmap_backup_retries_total", "Backup block read attempts that were retried"); err != nil {
		return nil, err
	}
	if m.batchDuration, err = newHistogram(reg, "incbitmap_backup_batch_duration_seconds", "Duration of a single GetNextBatch call", batchDurationBuckets); err != nil {
		return nil, err
	}
	return m, nil
}

// SampleEngine copies the bitmap engine's current counters into the
// registered gauges. Call periodically (e.g. alongside the memory monitor's
// tick), not on every mutation, to keep this off the engine's hot path.
func (m *Metrics) SampleEngine(eng *engine.Engine) {
	if !m.enabled {
		return
	}
	stats := eng.GetStats()
	m.blocksDirty.Set(float64(stats.Dirty))
	m.blocksNew.Set(float64(stats.New))
	m.blocksDeleted.Set(float64(stats.Deleted))
	m.blocksTotal.Set(float64(stats.TotalBlocks))
	m.engineMemory.Set(float64(eng.MemoryBytes()))
}

// SampleInterceptor copies the event interceptor's counters into the
// registered instruments. Counters are exported as deltas since Prometheus
// counters are monotonic; the interceptor's own totals are cumulative, so
// this tracks the previous sample to compute the increment.
type interceptorSample struct {
	processed, dropped, rejected uint64
}

func (m *Metrics) SampleInterceptor(ic *interceptor.Interceptor, prev *interceptorSample) interceptorSample {
	stats := ic.GetStats()
	if m.enabled {
		m.eventsProcessed.Add(float64(stats.EventsProcessed - prev.processed))
		m.eventsDropped.Add(float64(stats.EventsDropped - prev.dropped))
		m.eventsRejected.Add(float64(stats.EventsRejected - prev.rejected))
		m.queueDepth.Set(float64(stats.QueueDepth))
	}
	return interceptorSample{processed: stats.EventsProcessed, dropped: stats.EventsDropped, rejected: stats.EventsRejected}
}

// ObserveBatch records one backup batch's outcome (spec §4.F get_next_batch).
func (m *Metrics) ObserveBatch(blocks int, bytes uint64, dur time.Duration) {
	if !m.enabled {
		return
	}
	m.backupBlocksTotal.Add(float64(blocks))
	m.backupBytesTotal.Add(float64(bytes))
	m.batchDuration.Observe(dur.Seconds())
}

// ObserveErrorStats records the coordinator's cumulative error/retry counts,
// computing the increment against prev the same way SampleInterceptor does.
func (m *Metrics) ObserveErrorStats(stats backup.ErrorStats, prev backup.ErrorStats) backup.ErrorStats {
	if m.enabled {
		m.backupErrors.Add(float64(stats.ErrorCount - prev.ErrorCount))
		m.backupRetries.Add(float64(stats.RetryCount - prev.RetryCount))
	}
	return stats
}

func newCounter(reg prometheus.Registerer, name, help string) (prometheus.Counter, error) {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

func newGauge(reg prometheus.Registerer, name, help string) (prometheus.Gauge, error) {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	if err := reg.Register(g); err != nil {
		return nil, err
	}
	return g, nil
}

func newHistogram(reg prometheus.Registerer, name, help string, buckets []float64) (prometheus.Histogram, error) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets})
	if err := reg.Register(h); err != nil {
		return nil, err
	}
	return h, nil
}
