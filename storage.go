package pmago

import (
	"math/bits"

	"github.com/hupe1980/pmago/internal/mem"
	"github.com/hupe1980/pmago/internal/resource"
	"github.com/hupe1980/pmago/internal/rewire"
)

// workspace bundles the arrays of one allocation generation. Resizes
// allocate a fresh workspace, swap it in, stream the elements over and
// release the old one, so a failed allocation never touches live state.
type workspace struct {
	keys   []int64
	values []int64
	sizes  []uint16

	// rewired mode handles; nil when the allocation is direct
	memKeys   *rewire.Buffered
	memValues *rewire.Buffered
	memSizes  *rewire.Memory

	reserved int64 // bytes charged to the resource controller
}

func (ws *workspace) rewired() bool { return ws.memKeys != nil }

// storage is the sparse-array backing store: two parallel arrays of
// keys and values partitioned into segments of fixed capacity, plus one
// cardinality counter per segment.
//
// Segment packing alternates with the segment index parity: even
// segments pack to the right edge, odd segments to the left, so the
// pair 2k/2k+1 forms one contiguous run of elements flanked by gaps.
type storage struct {
	workspace

	segmentCapacity int
	pagesPerExtent  int
	extentSize      int

	numSegments int
	capacity    int
	height      int
	cardinality int

	res *resource.Controller
}

func newStorage(segmentCapacity, pagesPerExtent, extentSize int, res *resource.Controller) (*storage, error) {
	st := &storage{
		segmentCapacity: segmentCapacity,
		pagesPerExtent:  pagesPerExtent,
		extentSize:      extentSize,
		res:             res,
	}

	ws, err := st.alloc(1)
	if err != nil {
		return nil, err
	}
	st.workspace = ws
	st.numSegments = 1
	st.capacity = segmentCapacity
	st.height = 1
	return st, nil
}

// alloc returns a new workspace sized for numSegments segments; the
// caller attaches it. Allocation is direct (64-byte-aligned heap memory,
// not page-aligned) below one extent and rewired at or above. No live state is touched; partial failures release
// everything acquired so far.
func (st *storage) alloc(numSegments int) (workspace, error) {
	eltsBytes := int64(numSegments) * int64(st.segmentCapacity) * 8
	numSizes := max(2, numSegments)
	cardBytes := int64(numSizes) * 2

	var ws workspace
	ws.reserved = 2*eltsBytes + cardBytes
	if err := st.res.AcquireMemory(ws.reserved); err != nil {
		return workspace{}, allocationError(ws.reserved, err)
	}

	ok := false
	defer func() {
		if !ok {
			st.free(&ws)
		}
	}()

	if eltsBytes >= int64(st.extentSize) {
		eltsExtents := int(eltsBytes) / st.extentSize
		cardExtents := (int(cardBytes) + st.extentSize - 1) / st.extentSize

		var err error
		if ws.memKeys, err = rewire.NewBuffered(st.pagesPerExtent, eltsExtents); err != nil {
			return workspace{}, allocationError(eltsBytes, err)
		}
		if ws.memValues, err = rewire.NewBuffered(st.pagesPerExtent, eltsExtents); err != nil {
			return workspace{}, allocationError(eltsBytes, err)
		}
		if ws.memSizes, err = rewire.NewMemory(st.pagesPerExtent, cardExtents); err != nil {
			return workspace{}, allocationError(cardBytes, err)
		}
		ws.keys = ws.memKeys.Int64s()
		ws.values = ws.memValues.Int64s()
		ws.sizes = ws.memSizes.Uint16s()[:numSizes]
	} else {
		ws.keys = mem.AllocAlignedInt64(numSegments * st.segmentCapacity)
		ws.values = mem.AllocAlignedInt64(numSegments * st.segmentCapacity)
		ws.sizes = mem.AllocAlignedUint16(numSizes)
	}

	// the sentinel makes pairwise segment iteration safe when only one
	// segment exists
	ws.sizes[1] = 0

	ok = true
	return ws, nil
}

// free releases a workspace. Safe on partially constructed workspaces.
func (st *storage) free(ws *workspace) {
	if ws.memKeys != nil {
		_ = ws.memKeys.Close()
		ws.memKeys = nil
	}
	if ws.memValues != nil {
		_ = ws.memValues.Close()
		ws.memValues = nil
	}
	if ws.memSizes != nil {
		_ = ws.memSizes.Close()
		ws.memSizes = nil
	}
	ws.keys = nil
	ws.values = nil
	ws.sizes = nil
	st.res.ReleaseMemory(ws.reserved)
	ws.reserved = 0
}

// extend appends deltaSegments segments of virtual address space. Only
// valid in rewired mode; the new bytes are logically zero.
func (st *storage) extend(deltaSegments int) error {
	if !st.rewired() {
		panic("pmago: extend on a direct-mode storage")
	}

	bytesPerSegment := st.segmentCapacity * 8
	segsBefore := st.numSegments
	segsAfter := segsBefore + deltaSegments

	extra := int64(deltaSegments)*int64(bytesPerSegment)*2 + int64(deltaSegments)*2
	if err := st.res.AcquireMemory(extra); err != nil {
		return allocationError(extra, err)
	}
	st.reserved += extra

	eltsExtentsCurrent := ceilDiv(segsBefore*bytesPerSegment, st.extentSize)
	eltsExtentsTotal := ceilDiv(segsAfter*bytesPerSegment, st.extentSize)
	if delta := eltsExtentsTotal - eltsExtentsCurrent; delta > 0 {
		if err := st.memKeys.Extend(delta); err != nil {
			return allocationError(extra, err)
		}
		if err := st.memValues.Extend(delta); err != nil {
			return allocationError(extra, err)
		}
	}

	sizesExtentsCurrent := ceilDiv(segsBefore*2, st.extentSize)
	sizesExtentsTotal := ceilDiv(segsAfter*2, st.extentSize)
	if delta := sizesExtentsTotal - sizesExtentsCurrent; delta > 0 {
		if err := st.memSizes.Extend(delta); err != nil {
			return allocationError(extra, err)
		}
	}

	st.keys = st.memKeys.Int64s()
	st.values = st.memValues.Int64s()
	st.sizes = st.memSizes.Uint16s()[:segsAfter]

	st.numSegments = segsAfter
	st.capacity = segsAfter * st.segmentCapacity
	st.height = log2(segsAfter) + 1
	return nil
}

// insertUnsafe places the element into its sorted position within the
// segment by shifting along the packing direction. Preconditions: the
// segment is not full and the key is not present. Reports whether the
// segment minimum changed so the caller can refresh the separator key.
func (st *storage) insertUnsafe(segmentID int, key, value int64) bool {
	sz := int(st.sizes[segmentID])
	if sz >= st.segmentCapacity {
		panic("pmago: insert into a full segment")
	}

	base := segmentID * st.segmentCapacity
	keys := st.keys[base : base+st.segmentCapacity]
	values := st.values[base : base+st.segmentCapacity]
	minimum := false

	if segmentID%2 == 0 { // right-packed: grow toward the left edge
		stop := st.segmentCapacity - 1
		start := st.segmentCapacity - sz - 1
		i := start

		for i < stop && keys[i+1] < key {
			keys[i] = keys[i+1]
			i++
		}
		keys[i] = key

		for j := start; j < i; j++ {
			values[j] = values[j+1]
		}
		values[i] = value

		minimum = i == start
	} else { // left-packed: grow toward the right edge
		i := sz
		for i > 0 && keys[i-1] > key {
			keys[i] = keys[i-1]
			i--
		}
		keys[i] = key

		for j := sz; j > i; j-- {
			values[j] = values[j-1]
		}
		values[i] = value

		minimum = i == 0
	}

	st.sizes[segmentID]++
	st.cardinality++
	return minimum
}

// minimum returns the smallest key of a non-empty segment in O(1).
func (st *storage) minimum(segmentID int) int64 {
	if st.sizes[segmentID] == 0 {
		panic("pmago: minimum of an empty segment")
	}
	if segmentID%2 == 0 {
		return st.keys[(segmentID+1)*st.segmentCapacity-int(st.sizes[segmentID])]
	}
	return st.keys[segmentID*st.segmentCapacity]
}

// segmentBounds returns the [start, stop) element positions of the
// packed region of a segment.
func (st *storage) segmentBounds(segmentID int) (start, stop int) {
	sz := int(st.sizes[segmentID])
	if segmentID%2 == 0 {
		stop = (segmentID + 1) * st.segmentCapacity
		start = stop - sz
	} else {
		start = segmentID * st.segmentCapacity
		stop = start + sz
	}
	return start, stop
}

// memoryFootprint returns the bytes held by the backing arrays.
func (st *storage) memoryFootprint() int {
	return 2*st.numSegments*st.segmentCapacity*8 + max(2, st.numSegments)*2
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func log2(n int) int {
	return bits.Len(uint(n)) - 1
}

// hyperceil rounds n up to the next power of two.
func hyperceil(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
