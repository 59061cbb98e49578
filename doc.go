// Package pmago provides an in-memory ordered index for int64 keys and
// values, built on a Packed Memory Array (PMA).
//
// The index keeps its elements in a sparse sorted array divided into
// fixed-capacity segments. Intentional gaps between segments amortise
// the cost of keeping everything sorted: a point insert shifts at most
// one segment, and when a neighborhood overfills, an implicit calibrator
// tree of density thresholds decides how wide a window to spread the
// elements over. The result is ordered-map semantics with array scan
// speed, including:
//
//   - Point lookup, insert and delete
//   - Ordered range scans and full iteration
//   - Range aggregation (count, key sum, value sum, endpoints)
//   - Bulk merge of a pre-sorted batch with run fusing
//   - Memory rewiring: large rebalances remap physical pages onto the
//     target virtual range instead of copying through a second array
//
// # Quick Start
//
//	pma, err := pmago.New()
//	if err != nil {
//	    panic(err)
//	}
//	defer pma.Close()
//
//	_ = pma.Insert(42, 7)
//	v, ok := pma.Find(42) // 7, true
//
//	it := pma.Range(10, 99)
//	for it.HasNext() {
//	    k, v := it.Next()
//	    process(k, v)
//	}
//
//	res := pma.Sum(10, 99) // count, key/value sums, endpoints
//
// Bulk load a sorted batch instead of inserting point by point:
//
//	batch := []pmago.Element{{Key: 1, Value: 1}, {Key: 3, Value: 3}}
//	_ = pma.BulkLoad(batch)
//
// # Configuration
//
// Construction is tuned with functional options:
//
//	pma, err := pmago.New(
//	    pmago.WithSegmentCapacity(128),
//	    pmago.WithPagesPerExtent(16),
//	    pmago.WithLogger(pmago.NewTextLogger(slog.LevelDebug)),
//	)
//
// # Concurrency
//
// A PMA is single-writer and not self-synchronizing: operations run to
// completion on the calling goroutine, and iterators are invalidated by
// any subsequent mutation.
package pmago
