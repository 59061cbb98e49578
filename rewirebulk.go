package pmago

import "fmt"

// rewireBulkSpread generalises the rewiring spread to two input
// streams: at every output slot it takes the larger of the window read
// head and the batch read head, both walked backwards, so the window
// content and the batch merge as they are redistributed.
type rewireBulkSpread struct {
	p                 *PMA
	windowStart       int
	windowLength      int
	cardinality       int // window elements plus batch elements
	segmentsPerExtent int
	batch             []Element

	positionPMA   int // window read cursor, one past the last unconsumed element
	positionBatch int // index of the last unconsumed batch element
	pending       []extentToRewire
}

func newRewireBulkSpread(p *PMA, windowStart, windowLength, cardinality int, batch []Element) *rewireBulkSpread {
	sp := &rewireBulkSpread{
		p:                 p,
		windowStart:       windowStart,
		windowLength:      windowLength,
		cardinality:       cardinality,
		segmentsPerExtent: p.st.extentSize / (p.st.segmentCapacity * 8),
		batch:             batch,
	}
	windowEnd := windowStart + windowLength - 1
	sp.positionPMA = windowEnd*p.st.segmentCapacity + int(p.st.sizes[windowEnd])
	sp.positionBatch = len(batch) - 1
	return sp
}

func (sp *rewireBulkSpread) setStartPosition(position int) {
	segmentID := floorDiv(position-1, sp.p.st.segmentCapacity)
	if segmentID < sp.windowStart || segmentID >= sp.windowStart+sp.windowLength {
		panic(fmt.Sprintf("pmago: start position %d (segment %d) outside the window [%d, %d)",
			position, segmentID, sp.windowStart, sp.windowStart+sp.windowLength))
	}
	sp.positionPMA = position
}

func (sp *rewireBulkSpread) execute() {
	sp.spreadWindow()
	sp.updateSegmentSizes()
	sp.updateIndex()
}

func (sp *rewireBulkSpread) positionToExtent(position int) int {
	segment := floorDiv(position-sp.windowStart*sp.p.st.segmentCapacity, sp.p.st.segmentCapacity)
	return floorDiv(segment, sp.segmentsPerExtent)
}

func (sp *rewireBulkSpread) currentExtent() int {
	return sp.positionToExtent(sp.positionPMA - 1)
}

func (sp *rewireBulkSpread) extentOffset(extentID int) int {
	return sp.windowStart*sp.p.st.segmentCapacity + extentID*sp.segmentsPerExtent*sp.p.st.segmentCapacity
}

func (sp *rewireBulkSpread) absoluteExtent(extentID int) int {
	return sp.extentOffset(extentID) * 8 / sp.p.st.extentSize
}

func (sp *rewireBulkSpread) spreadWindow() {
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

func (sp *rewireBulkSpread) spreadExtent(extentID, numElements int) {
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

func (sp *rewireBulkSpread) spreadElements(dstKeys, dstValues []int64, numElements int) {
	c := sp.p.st.segmentCapacity
	elementsPerSegment := numElements / sp.segmentsPerExtent
	oddSegments := numElements % sp.segmentsPerExtent
	sizes := sp.p.st.sizes

	// input 1: the window content, walked backwards one run at a time
	input1SegmentID := floorDiv(sp.positionPMA-1, 2*c) * 2
	input1Displ := 0
	input1Index := -1
	if sp.positionPMA > sp.windowStart*c && input1SegmentID >= sp.windowStart {
		input1Displ = input1SegmentID*c + c - int(sizes[input1SegmentID])
		input1Index = sp.positionPMA - input1Displ - 1
	}

	// input 2: the batch, walked backwards
	input2Index := sp.positionBatch

	for outputSegmentID := sp.segmentsPerExtent - 2; outputSegmentID >= 0; outputSegmentID -= 2 {
		runLHS := elementsPerSegment
		if outputSegmentID < oddSegments {
			runLHS++
		}
		runRHS := elementsPerSegment
		if outputSegmentID+1 < oddSegments {
			runRHS++
		}
		outIdx := outputSegmentID*c + (c - runLHS)
		k := runLHS + runRHS - 1

		fetchPrevRun := func() {
			if input1Index < 0 && input1SegmentID > sp.windowStart {
				input1SegmentID -= 2
				run := int(sizes[input1SegmentID]) + int(sizes[input1SegmentID+1])
				input1Displ = input1SegmentID*c + c - int(sizes[input1SegmentID])
				input1Index = run - 1
			}
		}

		for k >= 0 && input1Index >= 0 && input2Index >= 0 {
			if sp.p.st.keys[input1Displ+input1Index] > sp.batch[input2Index].Key {
				dstKeys[outIdx+k] = sp.p.st.keys[input1Displ+input1Index]
				dstValues[outIdx+k] = sp.p.st.values[input1Displ+input1Index]
				input1Index--
				fetchPrevRun()
			} else {
				dstKeys[outIdx+k] = sp.batch[input2Index].Key
				dstValues[outIdx+k] = sp.batch[input2Index].Value
				input2Index--
			}
			k--
		}

		for k >= 0 && input1Index >= 0 {
			dstKeys[outIdx+k] = sp.p.st.keys[input1Displ+input1Index]
			dstValues[outIdx+k] = sp.p.st.values[input1Displ+input1Index]
			input1Index--
			fetchPrevRun()
			k--
		}

		for k >= 0 && input2Index >= 0 {
			dstKeys[outIdx+k] = sp.batch[input2Index].Key
			dstValues[outIdx+k] = sp.batch[input2Index].Value
			input2Index--
			k--
		}
	}

	if input1Index >= 0 {
		sp.positionPMA = input1Displ + input1Index + 1
	} else {
		sp.positionPMA = -1 // drained
	}
	sp.positionBatch = input2Index
}

func (sp *rewireBulkSpread) reclaimPastExtents() {
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

func (sp *rewireBulkSpread) updateSegmentSizes() {
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

func (sp *rewireBulkSpread) updateIndex() {
	for segmentID := sp.windowStart; segmentID < sp.windowStart+sp.windowLength; segmentID++ {
		sp.p.index.SetSeparatorKey(segmentID, sp.p.st.minimum(segmentID))
	}
}

func (sp *rewireBulkSpread) assertNoUsedBuffers() {
	if sp.p.st.memKeys.UsedBuffers() != 0 || sp.p.st.memValues.UsedBuffers() != 0 {
		panic("pmago: rewiring buffers leaked across a spread")
	}
}
