package pmago

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordInsert is called after each insert operation.
	// duration is the total time taken, err is nil if successful.
	RecordInsert(duration time.Duration, err error)

	// RecordRemove is called after each delete operation.
	// found reports whether the key was present.
	RecordRemove(duration time.Duration, found bool)

	// RecordRebalance is called after each window spread of a point
	// insert or remove. Spreads done by BulkLoad or by a resize are not
	// reported. windowLength is the number of segments spread, rewired
	// reports whether the memory rewiring path ran.
	RecordRebalance(windowLength int, rewired bool, duration time.Duration)

	// RecordResize is called after a point insert or remove doubles or
	// halves the backing store. Resizes done by BulkLoad are not
	// reported. up is true for resize-up.
	RecordResize(up bool, segmentsAfter int, duration time.Duration)

	// RecordBulkLoad is called after each bulk load.
	RecordBulkLoad(batchSize int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(time.Duration, error)            {}
func (NoopMetricsCollector) RecordRemove(time.Duration, bool)             {}
func (NoopMetricsCollector) RecordRebalance(int, bool, time.Duration)     {}
func (NoopMetricsCollector) RecordResize(bool, int, time.Duration)        {}
func (NoopMetricsCollector) RecordBulkLoad(int, time.Duration, error)     {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	InsertCount        atomic.Int64
	InsertErrors       atomic.Int64
	InsertTotalNanos   atomic.Int64
	RemoveCount        atomic.Int64
	RemoveMisses       atomic.Int64
	RebalanceCount     atomic.Int64
	RebalanceRewired   atomic.Int64
	RebalanceTotalNano atomic.Int64
	ResizeUpCount      atomic.Int64
	ResizeDownCount    atomic.Int64
	BulkLoadCount      atomic.Int64
	BulkLoadErrors     atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(duration time.Duration, found bool) {
	b.RemoveCount.Add(1)
	if !found {
		b.RemoveMisses.Add(1)
	}
}

// RecordRebalance implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRebalance(windowLength int, rewired bool, duration time.Duration) {
	b.RebalanceCount.Add(1)
	b.RebalanceTotalNano.Add(duration.Nanoseconds())
	if rewired {
		b.RebalanceRewired.Add(1)
	}
}

// RecordResize implements MetricsCollector.
func (b *BasicMetricsCollector) RecordResize(up bool, segmentsAfter int, duration time.Duration) {
	if up {
		b.ResizeUpCount.Add(1)
	} else {
		b.ResizeDownCount.Add(1)
	}
}

// RecordBulkLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBulkLoad(batchSize int, duration time.Duration, err error) {
	b.BulkLoadCount.Add(1)
	if err != nil {
		b.BulkLoadErrors.Add(1)
	}
}
