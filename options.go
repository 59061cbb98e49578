package pmago

import (
	"github.com/hupe1980/pmago/internal/density"
)

type options struct {
	segmentCapacity int
	nodeCapacity    int
	pagesPerExtent  int
	bounds          density.Bounds
	memoryLimit     int64
	logger          *Logger
	metrics         MetricsCollector
}

// Option configures PMA construction.
type Option func(*options)

func defaultOptions() options {
	return options{
		segmentCapacity: 64,
		nodeCapacity:    64,
		pagesPerExtent:  16,
		bounds:          density.DefaultBounds,
		logger:          NoopLogger(),
		metrics:         NoopMetricsCollector{},
	}
}

// WithSegmentCapacity configures the number of elements per segment.
// The value is rounded up to the next power of two and must land in
// [32, 65535] while dividing the OS page size. Default: 64.
func WithSegmentCapacity(capacity int) Option {
	return func(o *options) {
		o.segmentCapacity = capacity
	}
}

// WithIndexNodeCapacity configures the block fan-out of the separator
// index. Default: 64.
func WithIndexNodeCapacity(capacity int) Option {
	return func(o *options) {
		o.nodeCapacity = capacity
	}
}

// WithPagesPerExtent configures the rewiring granularity: the number of
// OS pages per extent, a power of two. Windows whose footprint reaches
// one extent are rebalanced through page rewiring instead of the
// two-copy spread. Default: 16.
func WithPagesPerExtent(pages int) Option {
	return func(o *options) {
		o.pagesPerExtent = pages
	}
}

// WithDensityBounds overrides the calibrator-tree density thresholds.
// Misordered bounds fail construction with ErrInvalidDensityBounds.
func WithDensityBounds(bounds density.Bounds) Option {
	return func(o *options) {
		o.bounds = bounds
	}
}

// WithMemoryLimit sets a hard budget in bytes for all workspace memory.
// Allocations beyond the budget fail with ErrAllocationFailed while the
// index stays in its pre-call state. 0 means unlimited (the default).
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithLogger configures structured logging. Default: NoopLogger.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithMetricsCollector configures operational metrics.
// Default: NoopMetricsCollector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

func applyOptions(optFns []Option) options {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}
