package pmago

import (
	"fmt"

	"github.com/hupe1980/pmago/internal/rewire"
)

// rewiringSpread redistributes a large window extent by extent, from
// the highest extent down. While the read cursor still overlaps the
// extent being written, the destination pattern goes into a spare
// physical buffer; once the cursor has moved below an extent, the
// buffer's frames are swapped into the target virtual range, which
// releases the old frames back to the spare pool. Extents the cursor
// has already left are written in place.
//
// A pending insert is not part of the redistribution: it is placed by
// the index-update pass once the segments have their final shape.
//
// The engine borrows the index for the duration of a single rebalance
// and holds no state beyond it.
type rewiringSpread struct {
	p                 *PMA
	windowStart       int // first segment of the window
	windowLength      int // number of consecutive segments being spread
	cardinality       int // elements physically present in the window
	segmentsPerExtent int

	doInsert    bool
	insertKey   int64
	insertValue int64

	position int // read cursor, one past the last unconsumed element
	pending  []extentToRewire
}

type extentToRewire struct {
	extentID  int
	bufKeys   *rewire.Buffer
	bufValues *rewire.Buffer
}

func newRewiringSpread(p *PMA, windowStart, windowLength, cardinality int) *rewiringSpread {
	sp := &rewiringSpread{
		p:                 p,
		windowStart:       windowStart,
		windowLength:      windowLength,
		cardinality:       cardinality,
		segmentsPerExtent: p.st.extentSize / (p.st.segmentCapacity * 8),
	}
	windowEnd := windowStart + windowLength - 1
	sp.position = windowEnd*p.st.segmentCapacity + int(p.st.sizes[windowEnd])
	return sp
}

func (sp *rewiringSpread) setElementToInsert(key, value int64) {
	if sp.doInsert {
		panic(fmt.Sprintf("pmago: an element to insert has already been set: <%d, %d>", sp.insertKey, sp.insertValue))
	}
	sp.doInsert = true
	sp.insertKey = key
	sp.insertValue = value
}

// setStartPosition overrides the read cursor; used by the in-place
// resize, where the old content ends well below the extended window.
func (sp *rewiringSpread) setStartPosition(position int) {
	segmentID := floorDiv(position-1, sp.p.st.segmentCapacity)
	if segmentID < sp.windowStart || segmentID >= sp.windowStart+sp.windowLength {
		panic(fmt.Sprintf("pmago: start position %d (segment %d) outside the window [%d, %d)",
			position, segmentID, sp.windowStart, sp.windowStart+sp.windowLength))
	}
	sp.position = position
}

func (sp *rewiringSpread) execute() {
	// first, spread all the elements
	sp.spreadWindow()

	// second, the new cardinality of each segment
	sp.updateSegmentSizes()

	// third, refresh the index and place the pending insert
	sp.updateIndex()
}

// positionToExtent maps an absolute element position to an extent
// relative to the window.
func (sp *rewiringSpread) positionToExtent(position int) int {
	segment := floorDiv(position-sp.windowStart*sp.p.st.segmentCapacity, sp.p.st.segmentCapacity)
	return floorDiv(segment, sp.segmentsPerExtent)
}

func (sp *rewiringSpread) currentExtent() int {
	return sp.positionToExtent(sp.position - 1)
}

// extentOffset returns the absolute element position where a
// window-relative extent begins.
func (sp *rewiringSpread) extentOffset(extentID int) int {
	return sp.windowStart*sp.p.st.segmentCapacity + extentID*sp.segmentsPerExtent*sp.p.st.segmentCapacity
}

func (sp *rewiringSpread) spreadWindow() {
	if sp.windowLength%sp.segmentsPerExtent != 0 || sp.windowLength/sp.segmentsPerExtent == 0 {
		panic("pmago: rewiring window is not a whole number of extents")
	}

	numExtents := sp.windowLength / sp.segmentsPerExtent
	elementsPerExtent := sp.cardinality / numExtents
	oddExtents := sp.cardinality % numExtents

	sp.assertNoUsedBuffers()
	for i := numExtents - 1; i >= 0; i-- {
		extra := 0
		if i < oddExtents {
			extra = 1
		}
		sp.spreadExtent(i, elementsPerExtent+extra)
	}
	sp.assertNoUsedBuffers()
}

func (sp *rewiringSpread) spreadExtent(extentID, numElements int) {
	// while the read cursor overlaps or lies above this extent, write
	// into a spare buffer and rewire it into place later
	if sp.currentExtent() >= extentID {
		bufKeys, err := sp.p.st.memKeys.AcquireBuffer()
		if err != nil {
			panic(fmt.Sprintf("pmago: cannot acquire a rewiring buffer: %v", err))
		}
		bufValues, err := sp.p.st.memValues.AcquireBuffer()
		if err != nil {
			panic(fmt.Sprintf("pmago: cannot acquire a rewiring buffer: %v", err))
		}
		sp.pending = append(sp.pending, extentToRewire{extentID: extentID, bufKeys: bufKeys, bufValues: bufValues})
		sp.spreadElements(bufKeys.Data, bufValues.Data, numElements)
	} else {
		off := sp.extentOffset(extentID)
		end := off + sp.segmentsPerExtent*sp.p.st.segmentCapacity
		sp.spreadElements(sp.p.st.keys[off:end], sp.p.st.values[off:end], numElements)
	}

	sp.reclaimPastExtents()
}

// spreadElements writes numElements elements backwards into the
// destination extent, consuming the window content from the read
// cursor downwards, one double-segment run at a time.
func (sp *rewiringSpread) spreadElements(dstKeys, dstValues []int64, numElements int) {
	c := sp.p.st.segmentCapacity
	elementsPerSegment := numElements / sp.segmentsPerExtent
	oddSegments := numElements % sp.segmentsPerExtent
	sizes := sp.p.st.sizes

	inputSegmentID := floorDiv(sp.position-1, 2*c) * 2 // even segment
	inputDispl := inputSegmentID*c + c - int(sizes[inputSegmentID])
	inputRun := sp.position - inputDispl

	for outputSegmentID := sp.segmentsPerExtent - 2; outputSegmentID >= 0; outputSegmentID -= 2 {
		runLHS := elementsPerSegment
		if outputSegmentID < oddSegments {
			runLHS++
		}
		runRHS := elementsPerSegment
		if outputSegmentID+1 < oddSegments {
			runRHS++
		}
		outRun := runLHS + runRHS
		outIdx := outputSegmentID*c + (c - runLHS)

		for outRun > 0 {
			n := min(outRun, inputRun)
			copy(dstKeys[outIdx+outRun-n:outIdx+outRun], sp.p.st.keys[inputDispl+inputRun-n:inputDispl+inputRun])
			copy(dstValues[outIdx+outRun-n:outIdx+outRun], sp.p.st.values[inputDispl+inputRun-n:inputDispl+inputRun])
			inputRun -= n
			outRun -= n

			if inputRun == 0 {
				inputSegmentID -= 2 // previous even segment
				if inputSegmentID >= sp.windowStart {
					inputRun = int(sizes[inputSegmentID]) + int(sizes[inputSegmentID+1])
					inputDispl = inputSegmentID*c + c - int(sizes[inputSegmentID])
				} else { // the window is drained
					inputDispl = sp.windowStart * c
				}
			}
		}
	}

	sp.position = inputDispl + inputRun
}

// reclaimPastExtents swaps in every pending buffer whose target extent
// lies strictly above the read cursor; their old frames return to the
// spare pool.
func (sp *rewiringSpread) reclaimPastExtents() {
	current := sp.currentExtent()
	for len(sp.pending) > 0 && sp.pending[0].extentID > current {
		e := sp.pending[0]
		sp.pending = sp.pending[1:]

		if err := sp.p.st.memKeys.SwapAndRelease(sp.absoluteExtent(e.extentID), e.bufKeys); err != nil {
			panic(fmt.Sprintf("pmago: rewiring swap failed: %v", err))
		}
		if err := sp.p.st.memValues.SwapAndRelease(sp.absoluteExtent(e.extentID), e.bufValues); err != nil {
			panic(fmt.Sprintf("pmago: rewiring swap failed: %v", err))
		}
	}
}

// absoluteExtent converts a window-relative extent to the extent index
// of the backing memory.
func (sp *rewiringSpread) absoluteExtent(extentID int) int {
	return sp.extentOffset(extentID) * 8 / sp.p.st.extentSize
}

func (sp *rewiringSpread) updateSegmentSizes() {
	numExtents := sp.windowLength / sp.segmentsPerExtent
	elementsPerExtent := sp.cardinality / numExtents
	oddExtents := sp.cardinality % numExtents

	segmentID := sp.windowStart
	for i := 0; i < numExtents; i++ {
		extentCardinality := elementsPerExtent
		if i < oddExtents {
			extentCardinality++
		}

		elementsPerSegment := extentCardinality / sp.segmentsPerExtent
		oddSegments := extentCardinality % sp.segmentsPerExtent
		for j := 0; j < sp.segmentsPerExtent; j++ {
			sz := elementsPerSegment
			if j < oddSegments {
				sz++
			}
			sp.p.st.sizes[segmentID] = uint16(sz)
			segmentID++
		}
	}
}

func (sp *rewiringSpread) insert(segmentID int) {
	sp.p.st.insertUnsafe(segmentID, sp.insertKey, sp.insertValue)
	sp.doInsert = false
}

// updateIndex refreshes the separator of every window segment and, at
// the first separator greater than the pending key, inserts the element
// into the previous segment (or the first segment when the new key is
// the window minimum). A key above every separator goes to the final
// window segment.
func (sp *rewiringSpread) updateIndex() {
	segmentID := sp.windowStart
	for i := 0; i < sp.windowLength; i++ {
		minimum := sp.p.st.minimum(segmentID)

		if sp.doInsert && sp.insertKey < minimum {
			if i > 0 {
				sp.insert(segmentID - 1)
			} else {
				minimum = sp.insertKey
				sp.insert(segmentID)
			}
		}

		sp.p.index.SetSeparatorKey(segmentID, minimum)
		segmentID++
	}

	if sp.doInsert { // the window maximum
		sp.insert(sp.windowStart + sp.windowLength - 1)
	}
}

func (sp *rewiringSpread) assertNoUsedBuffers() {
	if sp.p.st.memKeys.UsedBuffers() != 0 || sp.p.st.memValues.UsedBuffers() != 0 {
		panic("pmago: rewiring buffers leaked across a spread")
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
