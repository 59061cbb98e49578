// Package rewire provides anonymous memory whose physical backing can
// be remapped without copying through user space.
//
// # Overview
//
// A Memory owns a contiguous virtual address range divided into
// extents (a power-of-two multiple of the OS page size). Each extent is
// backed by a physical frame set that can be exchanged with another
// extent's backing in O(1): the virtual addresses of a destination
// never change, only the physical frames behind them move. Large
// rebalances exploit this to redistribute elements extent by extent
// without doubling the working set.
//
// # Usage
//
//	m, err := rewire.NewBuffered(pagesPerExtent, numExtents)
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Int64s() // typed view of the backed range
//
//	buf, _ := m.AcquireBuffer()     // spare extent from the pool
//	fill(buf.Data)                  // write the destination pattern
//	m.SwapAndRelease(extentID, buf) // remap frames into place
//
// # Platform Support
//
//   - Linux: a PROT_NONE reservation over the whole growth range, with
//     extents of a memfd mapped MAP_FIXED|MAP_SHARED on top. Swapping
//     remaps the two file extents; Extend maps additional extents in
//     place, so the start address is stable for the life of the Memory.
//   - Other platforms: the primitive is emulated with heap buffers and
//     copies. Swap and pool semantics are identical; Extend may move
//     the range, so callers must refresh their views after it returns
//     (they must do so anyway, as the backed length changes).
//
// # Thread Safety
//
// Memory and Buffered are not safe for concurrent use. The index that
// owns them is single-writer by contract.
package rewire
