package pmago

import "github.com/RoaringBitmap/roaring/v2"

// Stats holds cumulative operation counters of one PMA instance.
type Stats struct {
	Spreads         int64
	RewiringSpreads int64
	ResizeUps       int64
	ResizeDowns     int64
	BulkLoads       int64
}

// Stats returns a snapshot of the operation counters.
func (p *PMA) Stats() Stats {
	return p.stats
}

// RunWindow describes where one bulk-load run was applied.
type RunWindow struct {
	// RunStart and RunLength delimit the batch slice of the run.
	RunStart  int
	RunLength int
	// WindowStart and WindowLength delimit the segment window the run
	// was merged into.
	WindowStart  int
	WindowLength int
	// Cardinality is the element count of the window after the merge.
	Cardinality int
}

// LoadReport describes the outcome of the most recent BulkLoad.
type LoadReport struct {
	// BatchSize is the number of loaded elements.
	BatchSize int
	// RunCount is the number of runs the batch was partitioned into.
	RunCount int
	// Fused marks the run indices that were fused into a neighbouring
	// run while ascending the calibrator tree.
	Fused *roaring.Bitmap
	// Windows lists the surviving runs and their target windows.
	Windows []RunWindow
	// Resized reports whether the load fell back to a whole-store
	// resize instead of local merges.
	Resized bool
}

// LastLoad returns the report of the most recent BulkLoad. The zero
// report is returned before the first load.
func (p *PMA) LastLoad() LoadReport {
	return p.lastLoad
}

// SegmentStats summarises the physical shape of the sparse array.
type SegmentStats struct {
	NumSegments int

	// byte distances between consecutive element runs
	DistanceAvg    int
	DistanceMin    int
	DistanceMax    int
	DistanceMedian int

	// per-segment cardinalities
	CardinalityAvg    int
	CardinalityMin    int
	CardinalityMax    int
	CardinalityMedian int
}
