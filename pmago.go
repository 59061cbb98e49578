package pmago

import (
	"os"

	"github.com/hupe1980/pmago/internal/density"
	"github.com/hupe1980/pmago/internal/mem"
	"github.com/hupe1980/pmago/internal/resource"
	"github.com/hupe1980/pmago/internal/staticindex"
)

// Element is a key/value pair of the index.
type Element struct {
	Key   int64
	Value int64
}

// PMA is an in-memory ordered index backed by a packed memory array.
//
// A PMA is single-writer: operations run to completion on the calling
// goroutine and must not overlap.
type PMA struct {
	st    *storage
	index *staticindex.Index
	cal   *density.Calibrator
	res   *resource.Controller

	logger  *Logger
	metrics MetricsCollector

	// two-copy spread scratch, sized once per instance
	chunkKeys   []int64
	chunkValues []int64

	stats    Stats
	lastLoad LoadReport
	closed   bool
}

// New creates an empty index with a single segment.
func New(optFns ...Option) (*PMA, error) {
	opts := applyOptions(optFns)

	segmentCapacity := hyperceil(opts.segmentCapacity)
	pageSize := os.Getpagesize()
	if segmentCapacity < 32 || segmentCapacity > 65535 || pageSize%(segmentCapacity*8) != 0 {
		return nil, ErrInvalidSegmentCapacity
	}
	if opts.pagesPerExtent < 1 || hyperceil(opts.pagesPerExtent) != opts.pagesPerExtent {
		return nil, ErrInvalidPagesPerExtent
	}
	if opts.nodeCapacity < 2 {
		return nil, ErrInvalidNodeCapacity
	}
	if err := opts.bounds.Validate(); err != nil {
		return nil, ErrInvalidDensityBounds
	}

	res := resource.NewController(opts.memoryLimit)

	st, err := newStorage(segmentCapacity, opts.pagesPerExtent, opts.pagesPerExtent*pageSize, res)
	if err != nil {
		return nil, err
	}

	index, err := staticindex.New(opts.nodeCapacity, 1)
	if err != nil {
		st.free(&st.workspace)
		return nil, err
	}

	scratch := 4*segmentCapacity + 1

	return &PMA{
		st:          st,
		index:       index,
		cal:         density.New(opts.bounds),
		res:         res,
		logger:      opts.logger,
		metrics:     opts.metrics,
		chunkKeys:   mem.AllocAlignedInt64(scratch),
		chunkValues: mem.AllocAlignedInt64(scratch),
	}, nil
}

// Size returns the number of elements in the index.
func (p *PMA) Size() int {
	return p.st.cardinality
}

// Empty reports whether the index holds no elements.
func (p *PMA) Empty() bool {
	return p.st.cardinality == 0
}

// Find returns the value stored for key.
func (p *PMA) Find(key int64) (int64, bool) {
	if p.Empty() {
		return 0, false
	}

	segmentID := p.index.Find(key)
	start, stop := p.st.segmentBounds(segmentID)

	for i := start; i < stop; i++ {
		if p.st.keys[i] == key {
			return p.st.values[i], true
		}
	}
	return 0, false
}

// MemoryFootprint returns the memory held by the index in bytes.
func (p *PMA) MemoryFootprint() int {
	return p.st.memoryFootprint() + p.index.MemoryFootprint()
}

// MemoryUsage returns the bytes currently reserved against the memory
// budget, scratch workspaces included.
func (p *PMA) MemoryUsage() int64 {
	return p.res.MemoryUsage()
}

// Close releases all backing memory. The index must not be used
// afterwards. It is idempotent.
func (p *PMA) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.st.free(&p.st.workspace)
	return nil
}

func (p *PMA) thresholds(windowHeight int) (lower, upper float64) {
	return p.cal.Thresholds(windowHeight, p.st.height)
}
