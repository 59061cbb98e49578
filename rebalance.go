package pmago

import "time"

// rebalance restores the density invariants around segmentID after an
// overflow (ins != nil: the element still waiting to be placed) or an
// underflow (ins == nil).
//
// The window starts at the segment and ascends the calibrator tree,
// doubling its length and aligning its start, until its density falls
// inside the thresholds for its height. A window found that way is
// spread; if even the root is outside its band, the backing store is
// resized instead.
func (p *PMA) rebalance(segmentID int, ins *Element) error {
	start := time.Now()
	isInsert := ins != nil

	// the incoming element does not fit, so it counts toward the density
	numElements := int(p.st.sizes[segmentID])
	if isInsert {
		numElements = p.st.segmentCapacity + 1
	}

	// these initial values only matter when the tree has height 1
	lower, upper := 0.0, 1.0
	dens := float64(numElements) / float64(p.st.segmentCapacity)
	height := 1

	windowLength := 1
	windowID := segmentID
	windowStart, windowEnd := segmentID, segmentID

	if p.st.height > 1 {
		indexLeft := segmentID - 1
		indexRight := segmentID + 1

		for {
			height++
			windowLength *= 2
			windowID /= 2
			windowStart = windowID * windowLength
			windowEnd = windowStart + windowLength
			lower, upper = p.thresholds(height)

			for indexLeft >= windowStart {
				numElements += int(p.st.sizes[indexLeft])
				indexLeft--
			}
			for indexRight < windowEnd {
				numElements += int(p.st.sizes[indexRight])
				indexRight++
			}

			dens = float64(numElements) / float64(windowLength*p.st.segmentCapacity)

			if !((isInsert && dens > upper) || (!isInsert && dens < lower)) || height >= p.st.height {
				break
			}
		}
	}

	if (isInsert && dens <= upper) || (!isInsert && dens >= lower) {
		rewired := p.useRewiring(windowLength)
		if err := p.spread(numElements, windowStart, windowLength, ins, segmentID); err != nil {
			return err
		}
		p.stats.Spreads++
		p.metrics.RecordRebalance(windowLength, rewired, time.Since(start))
		p.logger.LogRebalance(windowStart, windowLength, numElements, rewired)
		return nil
	}

	return p.resize(ins)
}

// useRewiring reports whether a window of the given length is spread
// through the rewiring facility.
func (p *PMA) useRewiring(windowLength int) bool {
	return p.st.rewired() && windowLength*p.st.segmentCapacity*8 >= p.st.extentSize
}

// spread redistributes numElements evenly across the window, inserting
// ins if present. cardinality counts the pending insert; the engines
// place it themselves.
func (p *PMA) spread(cardinality, windowStart, windowLength int, ins *Element, insSegmentID int) error {
	if p.useRewiring(windowLength) {
		// the rewiring engine distributes only the physical elements and
		// defers the insert to its index-update pass
		sp := newRewiringSpread(p, windowStart, windowLength, cardinality-insertCount(ins))
		if ins != nil {
			sp.setElementToInsert(ins.Key, ins.Value)
		}
		sp.execute()
		p.stats.RewiringSpreads++
		return nil
	}
	p.spreadTwoCopies(cardinality, windowStart, windowLength, ins, insSegmentID)
	return nil
}

func insertCount(ins *Element) int {
	if ins != nil {
		return 1
	}
	return 0
}

// resize doubles (insert) or halves (delete) the backing store. An
// insert-triggered resize-up of a rewired store extends the virtual
// range in place and redistributes through the rewiring engine; every
// other case streams into a freshly allocated workspace.
func (p *PMA) resize(ins *Element) error {
	start := time.Now()
	segsBefore := p.st.numSegments

	var err error
	if ins != nil && p.st.rewired() &&
		p.st.numSegments*p.st.segmentCapacity*8 >= p.st.extentSize {
		err = p.resizeRewire(ins)
	} else {
		err = p.resizeGeneral(ins)
	}

	p.logger.LogResize(segsBefore, p.st.numSegments, err)
	if err != nil {
		return err
	}
	up := p.st.numSegments > segsBefore
	if up {
		p.stats.ResizeUps++
	} else {
		p.stats.ResizeDowns++
	}
	p.metrics.RecordResize(up, p.st.numSegments, time.Since(start))
	return nil
}

// resizeRewire doubles the store in place: extend the rewired range,
// then run the rewiring spread over the whole array with the pending
// element as an extra input.
func (p *PMA) resizeRewire(ins *Element) error {
	segsBefore := p.st.numSegments
	segsAfter := segsBefore * 2

	if err := p.st.extend(segsBefore); err != nil {
		return err
	}
	if err := p.index.Rebuild(segsAfter); err != nil {
		return err
	}

	sp := newRewiringSpread(p, 0, segsAfter, p.st.cardinality)
	sp.setElementToInsert(ins.Key, ins.Value)
	sp.setStartPosition((segsBefore-1)*p.st.segmentCapacity + int(p.st.sizes[segsBefore-1]))
	sp.execute()
	p.stats.RewiringSpreads++
	return nil
}

// resizeGeneral allocates a workspace of the new geometry and
// merge-streams all elements into it, walking the old even/odd segment
// pairs in order and placing the pending element on the way.
func (p *PMA) resizeGeneral(ins *Element) error {
	isInsert := ins != nil
	capacity := p.st.capacity / 2
	if isInsert {
		capacity = p.st.capacity * 2
	}
	c := p.st.segmentCapacity
	numSegments := capacity / c
	elementsPerSegment := p.st.cardinality / numSegments
	oddSegments := p.st.cardinality % numSegments

	newWs, err := p.st.alloc(numSegments)
	if err != nil {
		return err
	}
	old := p.st.workspace
	p.st.workspace = newWs
	defer p.st.free(&old)

	if err := p.index.Rebuild(numSegments); err != nil {
		return err
	}

	outKeys := p.st.keys
	outValues := p.st.values
	outSizes := p.st.sizes

	// fetch the first non-empty input segment
	inputSegmentID := 0
	inputSize := int(old.sizes[0])
	inputIdx := c
	if inputSize == 0 { // the first segment emptied out on a delete
		inputSegmentID = 1
		inputSize = int(old.sizes[1])
	} else {
		inputIdx -= inputSize
	}

	for j := 0; j < numSegments; j++ {
		elementsToCopy := elementsPerSegment
		if j < oddSegments {
			elementsToCopy++
		}

		outputOffset := 0
		if j%2 == 0 {
			outputOffset = c - elementsToCopy
		}
		outIdx := j*c + outputOffset
		outSizes[j] = uint16(elementsToCopy)
		p.index.SetSeparatorKey(j, old.keys[inputIdx])

		for {
			cpy1 := min(elementsToCopy, inputSize)
			copy(outKeys[outIdx:outIdx+cpy1], old.keys[inputIdx:inputIdx+cpy1])
			copy(outValues[outIdx:outIdx+cpy1], old.values[inputIdx:inputIdx+cpy1])
			outIdx += cpy1
			inputIdx += cpy1
			inputSize -= cpy1

			if inputSize == 0 { // move to the next input segment
				inputSegmentID++
				if inputSegmentID < p.st.numSegments {
					inputSize = int(old.sizes[inputSegmentID])

					// a remove may have left an empty segment behind; skip it
					if inputSize == 0 {
						inputSegmentID++
						if inputSegmentID < p.st.numSegments {
							inputSize = int(old.sizes[inputSegmentID])
						}
					}

					offset := 0
					if inputSegmentID%2 == 0 {
						offset = c - inputSize
					}
					inputIdx = inputSegmentID*c + offset
				}
			}

			elementsToCopy -= cpy1
			if elementsToCopy == 0 {
				break
			}
		}

		if ins != nil && ins.Key < outKeys[outIdx-1] {
			if minimum := p.st.insertUnsafe(j, ins.Key, ins.Value); minimum {
				p.index.SetSeparatorKey(j, ins.Key)
			}
			ins = nil
		}
	}

	// not placed yet: the new element belongs to the last segment
	if ins != nil {
		if minimum := p.st.insertUnsafe(numSegments-1, ins.Key, ins.Value); minimum {
			p.index.SetSeparatorKey(numSegments-1, ins.Key)
		}
	}

	p.st.capacity = capacity
	p.st.numSegments = numSegments
	p.st.height = log2(numSegments) + 1
	return nil
}
