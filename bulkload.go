package pmago

import (
	"math"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/pmago/internal/mem"
)

// runInfo tracks one maximal slice of the batch targeting a single
// segment, together with the window it grew into while fusing.
type runInfo struct {
	runStart     int
	runLength    int
	windowStart  int
	windowLength int
	cardinality  int // window elements plus the run's batch elements
	valid        bool
}

// BulkLoad merges a batch of strictly ascending key/value pairs into
// the index. The result is observationally equivalent to inserting the
// batch element by element, but each affected neighbourhood is
// rebalanced at most once: the batch is partitioned into runs by target
// segment, overlapping windows are fused while ascending the calibrator
// tree, and a single whole-store resize replaces local merges when even
// the root overflows.
func (p *PMA) BulkLoad(batch []Element) error {
	start := time.Now()
	err := p.loadSorted(batch)
	p.metrics.RecordBulkLoad(len(batch), time.Since(start), err)
	p.logger.LogBulkLoad(len(batch), p.lastLoad.RunCount, int(p.lastLoad.Fused.GetCardinality()), p.lastLoad.Resized, err)
	if err == nil {
		p.stats.BulkLoads++
	}
	return err
}

func (p *PMA) loadSorted(batch []Element) error {
	p.lastLoad = LoadReport{BatchSize: len(batch), Fused: roaring.New()}
	if len(batch) == 0 {
		return nil
	}

	if p.Empty() {
		return p.loadEmpty(batch)
	}

	runs := p.loadGenerateRuns(batch)
	p.lastLoad.RunCount = len(runs)

	doResize := p.loadFuseRuns(runs)

	if doResize {
		p.lastLoad.Resized = true
		return p.loadResize(batch)
	}
	return p.loadSpread(batch, runs)
}

// loadGenerateRuns walks the batch in order and opens a new run
// whenever the key crosses into the next segment's key space.
func (p *PMA) loadGenerateRuns(batch []Element) []runInfo {
	var runs []runInfo

	i := 0
	for i < len(batch) {
		segmentID := p.index.FindFirst(batch[i].Key)
		maxKey := int64(math.MaxInt64)
		if segmentID+1 < p.st.numSegments {
			maxKey = p.st.minimum(segmentID + 1)
		}

		entry := runInfo{
			runStart:     i,
			runLength:    1,
			windowStart:  segmentID,
			windowLength: 1,
			valid:        true,
		}
		i++
		for i < len(batch) && batch[i].Key <= maxKey {
			entry.runLength++
			i++
		}

		entry.cardinality = int(p.st.sizes[segmentID]) + entry.runLength
		runs = append(runs, entry)
	}

	return runs
}

// loadFuseRuns ascends the calibrator tree for every run, fusing a
// neighbouring run into it as soon as the window reaches the
// neighbour's window. Returns true when a window covered the whole
// store and was still above threshold, requesting a resize.
func (p *PMA) loadFuseRuns(runs []runInfo) bool {
	sizes := p.st.sizes

	for i := range runs {
		if !runs[i].valid {
			continue // fused into a previous run
		}
		run := &runs[i]

		segmentID := run.windowStart
		numElements := run.cardinality
		theta := p.cal.LeafUpper()
		dens := float64(numElements) / float64(p.st.segmentCapacity)
		height := 1

		windowLength := 1
		windowID := segmentID
		windowStart, windowEnd := segmentID, segmentID

		if p.st.height > 1 && dens > theta {
			windexLeft := segmentID - 1
			windexRight := segmentID + 1

			// nearest valid runs on either side
			sindexLeft, srunLeft := i-1, -1
			for sindexLeft >= 0 && srunLeft < 0 {
				if runs[sindexLeft].valid {
					srunLeft = runs[sindexLeft].windowStart + runs[sindexLeft].windowLength - 1
				} else {
					sindexLeft--
				}
			}
			sindexRight, srunRight := i+1, -1
			for sindexRight < len(runs) && srunRight < 0 {
				if runs[sindexRight].valid {
					srunRight = runs[sindexRight].windowStart
				} else {
					sindexRight++
				}
			}

			for {
				height++
				windowLength *= 2
				windowID /= 2
				windowStart = windowID * windowLength
				windowEnd = windowStart + windowLength
				_, theta = p.thresholds(height)

				for windexLeft >= windowStart { // move backwards
					if windexLeft == srunLeft {
						// the neighbour's projected cardinality already
						// counts its batch elements
						numElements += runs[sindexLeft].cardinality
						run.runStart = runs[sindexLeft].runStart
						run.runLength += runs[sindexLeft].runLength
						runs[sindexLeft].valid = false
						p.lastLoad.Fused.Add(uint32(sindexLeft))
						windexLeft = runs[sindexLeft].windowStart - 1

						sindexLeft, srunLeft = sindexLeft-1, -1
						for sindexLeft >= 0 && srunLeft < 0 {
							if runs[sindexLeft].valid {
								srunLeft = runs[sindexLeft].windowStart + runs[sindexLeft].windowLength - 1
							} else {
								sindexLeft--
							}
						}
					} else {
						numElements += int(sizes[windexLeft])
						windexLeft--
					}
				}
				for windexRight < windowEnd { // move forwards
					if windexRight == srunRight {
						numElements += runs[sindexRight].cardinality
						run.runLength += runs[sindexRight].runLength
						runs[sindexRight].valid = false
						p.lastLoad.Fused.Add(uint32(sindexRight))
						windexRight = runs[sindexRight].windowStart + runs[sindexRight].windowLength

						sindexRight, srunRight = sindexRight+1, -1
						for sindexRight < len(runs) && srunRight < 0 {
							if runs[sindexRight].valid {
								srunRight = runs[sindexRight].windowStart
							} else {
								sindexRight++
							}
						}
					} else {
						numElements += int(sizes[windexRight])
						windexRight++
					}
				}

				dens = float64(numElements) / float64(windowLength*p.st.segmentCapacity)

				if dens <= theta || height >= p.st.height {
					break
				}
			}
		}

		run.windowStart = windowStart
		run.windowLength = windowLength
		run.cardinality = numElements

		// no point fusing further, the whole array resizes anyway
		if windowLength == p.st.numSegments && dens > theta {
			return true
		}
	}

	return false
}

// loadSpread applies every surviving run to its window.
func (p *PMA) loadSpread(batch []Element, runs []runInfo) error {
	for i := range runs {
		if !runs[i].valid {
			continue
		}
		entry := runs[i]
		p.lastLoad.Windows = append(p.lastLoad.Windows, RunWindow{
			RunStart:     entry.runStart,
			RunLength:    entry.runLength,
			WindowStart:  entry.windowStart,
			WindowLength: entry.windowLength,
			Cardinality:  entry.cardinality,
		})
		seq := batch[entry.runStart : entry.runStart+entry.runLength]

		switch {
		case entry.windowLength == 1 && entry.runLength == 1:
			if p.Empty() {
				p.insertEmpty(seq[0].Key, seq[0].Value)
			} else if err := p.insertCommon(entry.windowStart, seq[0].Key, seq[0].Value); err != nil {
				return err
			}
		case entry.windowLength == 1:
			p.loadMergeSingle(entry.windowStart, seq, entry.cardinality)
		default:
			if p.useRewiring(entry.windowLength) {
				sp := newRewireBulkSpread(p, entry.windowStart, entry.windowLength, entry.cardinality, seq)
				sp.execute()
				p.st.cardinality += entry.runLength
				p.stats.RewiringSpreads++
			} else {
				p.loadMergeMulti(entry.windowStart, entry.windowLength, seq, entry.cardinality)
			}
			p.stats.Spreads++
		}
	}
	return nil
}

// loadMergeSingle stream-merges a run with the current contents of its
// single target segment.
func (p *PMA) loadMergeSingle(segmentID int, seq []Element, cardinality int) {
	c := p.st.segmentCapacity
	base := segmentID * c
	outKeys := p.st.keys[base : base+c]
	outValues := p.st.values[base : base+c]

	inputSize := int(p.st.sizes[segmentID])
	inputKeys := mem.AllocAlignedInt64(inputSize)
	inputValues := mem.AllocAlignedInt64(inputSize)

	// move the current elements out of the way
	start := 0
	if segmentID%2 == 0 {
		start = c - inputSize
	}
	copy(inputKeys, outKeys[start:start+inputSize])
	copy(inputValues, outValues[start:start+inputSize])

	outputStart := 0
	outputEnd := cardinality
	if segmentID%2 == 0 {
		outputStart = c - cardinality
		outputEnd = c
	}
	outputCurrent := outputStart
	inputCurrent := 0
	seqCurrent := 0

	// merge from both the segment and the batch run
	for outputCurrent < outputEnd && inputCurrent < inputSize && seqCurrent < len(seq) {
		if seq[seqCurrent].Key < inputKeys[inputCurrent] {
			outKeys[outputCurrent] = seq[seqCurrent].Key
			outValues[outputCurrent] = seq[seqCurrent].Value
			seqCurrent++
		} else {
			outKeys[outputCurrent] = inputKeys[inputCurrent]
			outValues[outputCurrent] = inputValues[inputCurrent]
			inputCurrent++
		}
		outputCurrent++
	}
	// leftovers from the segment
	if outputCurrent < outputEnd && inputCurrent < inputSize {
		n := outputEnd - outputCurrent
		copy(outKeys[outputCurrent:outputEnd], inputKeys[inputCurrent:inputCurrent+n])
		copy(outValues[outputCurrent:outputEnd], inputValues[inputCurrent:inputCurrent+n])
		outputCurrent += n
		inputCurrent += n
	}
	// leftovers from the batch run
	for outputCurrent < outputEnd && seqCurrent < len(seq) {
		outKeys[outputCurrent] = seq[seqCurrent].Key
		outValues[outputCurrent] = seq[seqCurrent].Value
		seqCurrent++
		outputCurrent++
	}

	p.index.SetSeparatorKey(segmentID, outKeys[outputStart])
	p.st.sizes[segmentID] = uint16(cardinality)
	p.st.cardinality += len(seq)
}

// loadMergeMulti is the two-copy spread with two input streams: the
// compacted window content and the batch run are merged while the
// elements are redistributed pair by pair.
func (p *PMA) loadMergeMulti(windowStart, windowLength int, seq []Element, cardinality int) {
	c := p.st.segmentCapacity
	elementsPerSegment := cardinality / windowLength
	numOddSegments := cardinality % windowLength

	sizes := p.st.sizes[windowStart:]
	outKeys := p.st.keys[windowStart*c:]
	outValues := p.st.values[windowStart*c:]

	// input chunk 2 (extra space): room for the head of the window plus
	// one slack slot per segment filled before the overlap clears
	chunk2Capacity := (c + windowLength/(elementsPerSegment+1)) * 2
	chunk2Keys := mem.AllocAlignedInt64(chunk2Capacity)
	chunk2Values := mem.AllocAlignedInt64(chunk2Capacity)

	// 1) compact all elements towards the end
	outputSegmentID := windowLength - 2
	outputStart := (outputSegmentID+1)*c - int(sizes[outputSegmentID])
	outputEnd := outputStart + int(sizes[outputSegmentID]) + int(sizes[outputSegmentID+1])
	outputCurrent := outputEnd

	spaceLeft := chunk2Capacity
	for outputSegmentID >= 0 && spaceLeft > 0 {
		n := min(spaceLeft, outputCurrent-outputStart)
		copy(chunk2Keys[spaceLeft-n:spaceLeft], outKeys[outputCurrent-n:outputCurrent])
		copy(chunk2Values[spaceLeft-n:spaceLeft], outValues[outputCurrent-n:outputCurrent])

		outputCurrent -= n
		spaceLeft -= n

		if outputCurrent <= outputStart {
			outputSegmentID -= 2
			if outputSegmentID >= 0 {
				outputStart = (outputSegmentID+1)*c - int(sizes[outputSegmentID])
				outputEnd = outputStart + int(sizes[outputSegmentID]) + int(sizes[outputSegmentID+1])
				outputCurrent = outputEnd
			}
		}
	}

	chunk2Size := chunk2Capacity - spaceLeft
	chunk2Keys = chunk2Keys[spaceLeft:]
	chunk2Values = chunk2Values[spaceLeft:]

	// the rest moves to the end of the window in place
	chunk1Current := windowLength * c
	for outputSegmentID >= 0 {
		n := outputCurrent - outputStart
		copy(outKeys[chunk1Current-n:chunk1Current], outKeys[outputCurrent-n:outputCurrent])
		copy(outValues[chunk1Current-n:chunk1Current], outValues[outputCurrent-n:outputCurrent])

		chunk1Current -= n
		outputCurrent -= n

		if outputCurrent <= outputStart {
			outputSegmentID -= 2
			if outputSegmentID >= 0 {
				outputStart = (outputSegmentID+1)*c - int(sizes[outputSegmentID])
				outputEnd = outputStart + int(sizes[outputSegmentID]) + int(sizes[outputSegmentID+1])
				outputCurrent = outputEnd
			}
		}
	}

	chunk1Size := windowLength*c - chunk1Current
	chunk1Keys := outKeys[chunk1Current:]
	chunk1Values := outValues[chunk1Current:]

	// 2) the expected size of each segment
	for i := 0; i < windowLength; i++ {
		sz := elementsPerSegment
		if i < numOddSegments {
			sz++
		}
		sizes[i] = uint16(sz)
	}

	// 3) initialise the input chunk
	inputKeys := chunk1Keys
	inputValues := chunk1Values
	inputSize := chunk1Size
	onChunk1 := true
	if chunk1Size == 0 {
		inputKeys = chunk2Keys
		inputValues = chunk2Values
		inputSize = chunk2Size
		onChunk1 = false
	}
	inputCurrent := 0
	seqCurrent := 0

	// 4) merge the window content and the batch run
	for i := 0; i < windowLength; i += 2 {
		outputStart := (i+1)*c - int(sizes[i])
		outputEnd := outputStart + int(sizes[i]) + int(sizes[i+1])
		outputCurrent := outputStart

		for outputCurrent < outputEnd && inputCurrent < inputSize && seqCurrent < len(seq) {
			if inputKeys[inputCurrent] <= seq[seqCurrent].Key {
				outKeys[outputCurrent] = inputKeys[inputCurrent]
				outValues[outputCurrent] = inputValues[inputCurrent]
				inputCurrent++

				if inputCurrent == inputSize && onChunk1 {
					inputKeys = chunk2Keys
					inputValues = chunk2Values
					inputSize = chunk2Size
					inputCurrent = 0
					onChunk1 = false
				}
			} else {
				outKeys[outputCurrent] = seq[seqCurrent].Key
				outValues[outputCurrent] = seq[seqCurrent].Value
				seqCurrent++
			}
			outputCurrent++
		}
		// only from the window
		for outputCurrent < outputEnd && inputCurrent < inputSize {
			n := min(outputEnd-outputCurrent, inputSize-inputCurrent)
			copy(outKeys[outputCurrent:outputCurrent+n], inputKeys[inputCurrent:inputCurrent+n])
			copy(outValues[outputCurrent:outputCurrent+n], inputValues[inputCurrent:inputCurrent+n])
			outputCurrent += n
			inputCurrent += n
			if inputCurrent == inputSize && onChunk1 {
				inputKeys = chunk2Keys
				inputValues = chunk2Values
				inputSize = chunk2Size
				inputCurrent = 0
				onChunk1 = false
			}
		}
		// only from the batch run
		for outputCurrent < outputEnd && seqCurrent < len(seq) {
			outKeys[outputCurrent] = seq[seqCurrent].Key
			outValues[outputCurrent] = seq[seqCurrent].Value
			seqCurrent++
			outputCurrent++
		}

		p.index.SetSeparatorKey(windowStart+i, outKeys[outputStart])
		p.index.SetSeparatorKey(windowStart+i+1, outKeys[outputStart+int(sizes[i])])
	}

	p.st.cardinality += len(seq)
}

// loadResize rebuilds the whole store at the capacity the combined
// content asks for, merging the old elements and the batch in one pass.
func (p *PMA) loadResize(batch []Element) error {
	if p.st.rewired() &&
		p.st.numSegments*p.st.segmentCapacity*8 >= p.st.extentSize {
		return p.loadResizeRewire(batch)
	}
	return p.loadResizeGeneral(batch)
}

func (p *PMA) loadResizeRewire(batch []Element) error {
	segsBefore := p.st.numSegments
	targetDensity := (p.cal.RootUpper() + p.cal.LeafUpper()) / 2
	cardinality := p.st.cardinality + len(batch)
	capacity := hyperceil(int(math.Ceil(float64(cardinality) / targetDensity)))
	segsAfter := capacity / p.st.segmentCapacity

	if err := p.st.extend(segsAfter - segsBefore); err != nil {
		return err
	}
	if err := p.index.Rebuild(segsAfter); err != nil {
		return err
	}

	sp := newRewireBulkSpread(p, 0, segsAfter, cardinality, batch)
	sp.setStartPosition((segsBefore-1)*p.st.segmentCapacity + int(p.st.sizes[segsBefore-1]))
	sp.execute()
	p.stats.RewiringSpreads++

	p.st.cardinality = cardinality
	p.stats.ResizeUps++
	return nil
}

func (p *PMA) loadResizeGeneral(batch []Element) error {
	c := p.st.segmentCapacity
	targetDensity := (p.cal.RootUpper() + p.cal.LeafUpper()) / 2
	cardinality := p.st.cardinality + len(batch)
	capacity := hyperceil(int(math.Ceil(float64(cardinality) / targetDensity)))
	numSegments := capacity / c
	elementsPerSegment := cardinality / numSegments
	oddSegments := cardinality % numSegments

	newWs, err := p.st.alloc(numSegments)
	if err != nil {
		return err
	}
	up := numSegments >= p.st.numSegments
	old := p.st.workspace
	p.st.workspace = newWs
	defer p.st.free(&old)

	if err := p.index.Rebuild(numSegments); err != nil {
		return err
	}

	outKeys := p.st.keys
	outValues := p.st.values
	outSizes := p.st.sizes

	// input: the old even/odd segment pairs, in order
	inputSegmentID := 0
	inputCurrent := c - int(old.sizes[0])
	inputEnd := c + int(old.sizes[1])
	batchCurrent := 0

	for j := 0; j < numSegments; j += 2 {
		outSizes[j] = uint16(elementsPerSegment)
		if j < oddSegments {
			outSizes[j]++
		}
		outSizes[j+1] = uint16(elementsPerSegment)
		if j+1 < oddSegments {
			outSizes[j+1]++
		}

		outputStart := c*(j+1) - int(outSizes[j])
		outputCurrent := outputStart
		outputEnd := outputCurrent + int(outSizes[j]) + int(outSizes[j+1])

		// merge from both the old store and the batch
		for outputCurrent < outputEnd && batchCurrent < len(batch) && inputCurrent < inputEnd {
			if old.keys[inputCurrent] < batch[batchCurrent].Key {
				outKeys[outputCurrent] = old.keys[inputCurrent]
				outValues[outputCurrent] = old.values[inputCurrent]
				inputCurrent++

				if inputCurrent >= inputEnd {
					inputSegmentID += 2
					if inputSegmentID < p.st.numSegments {
						inputCurrent = c*(inputSegmentID+1) - int(old.sizes[inputSegmentID])
						inputEnd = inputCurrent + int(old.sizes[inputSegmentID]) + int(old.sizes[inputSegmentID+1])
					}
				}
			} else {
				outKeys[outputCurrent] = batch[batchCurrent].Key
				outValues[outputCurrent] = batch[batchCurrent].Value
				batchCurrent++
			}
			outputCurrent++
		}

		// only from the old store
		for outputCurrent < outputEnd && inputCurrent < inputEnd {
			n := min(outputEnd-outputCurrent, inputEnd-inputCurrent)
			copy(outKeys[outputCurrent:outputCurrent+n], old.keys[inputCurrent:inputCurrent+n])
			copy(outValues[outputCurrent:outputCurrent+n], old.values[inputCurrent:inputCurrent+n])
			inputCurrent += n
			outputCurrent += n

			if inputCurrent >= inputEnd {
				inputSegmentID += 2
				if inputSegmentID < p.st.numSegments {
					inputCurrent = c*(inputSegmentID+1) - int(old.sizes[inputSegmentID])
					inputEnd = inputCurrent + int(old.sizes[inputSegmentID]) + int(old.sizes[inputSegmentID+1])
				}
			}
		}

		// only from the batch
		for outputCurrent < outputEnd && batchCurrent < len(batch) {
			outKeys[outputCurrent] = batch[batchCurrent].Key
			outValues[outputCurrent] = batch[batchCurrent].Value
			outputCurrent++
			batchCurrent++
		}

		p.index.SetSeparatorKey(j, outKeys[outputStart])
		p.index.SetSeparatorKey(j+1, outKeys[outputStart+int(outSizes[j])])
	}

	p.st.cardinality = cardinality
	p.st.capacity = capacity
	p.st.numSegments = numSegments
	p.st.height = log2(numSegments) + 1
	if up {
		p.stats.ResizeUps++
	} else {
		p.stats.ResizeDowns++
	}
	return nil
}

// loadEmpty fills a fresh store from the batch.
func (p *PMA) loadEmpty(batch []Element) error {
	if float64(p.st.segmentCapacity)*p.cal.LeafUpper() >= float64(len(batch)) {
		p.loadEmptySingle(batch)
		return nil
	}
	return p.loadEmptyMulti(batch)
}

func (p *PMA) loadEmptySingle(batch []Element) {
	c := p.st.segmentCapacity
	outputStart := c - len(batch)

	for i, e := range batch {
		p.st.keys[outputStart+i] = e.Key
		p.st.values[outputStart+i] = e.Value
	}

	p.index.SetSeparatorKey(0, batch[0].Key)
	p.st.sizes[0] = uint16(len(batch))
	p.st.cardinality = len(batch)
}

// loadEmptyMulti sizes the store for the batch in one go. Loading at
// the maximum density would force a resize on the very next insert, so
// the target is the average of the root and leaf upper thresholds.
func (p *PMA) loadEmptyMulti(batch []Element) error {
	c := p.st.segmentCapacity
	targetDensity := (p.cal.RootUpper() + p.cal.LeafUpper()) / 2
	capacity := hyperceil(int(math.Ceil(float64(len(batch)) / targetDensity)))
	numSegments := capacity / c
	elementsPerSegment := len(batch) / numSegments
	oddSegments := len(batch) % numSegments

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

	outSizes := p.st.sizes
	for i := 0; i < numSegments; i++ {
		outSizes[i] = uint16(elementsPerSegment)
		if i < oddSegments {
			outSizes[i]++
		}
	}

	batchCurrent := 0
	for i := 0; i < numSegments; i += 2 {
		outputStart := (i+1)*c - int(outSizes[i])
		outputEnd := outputStart + int(outSizes[i]) + int(outSizes[i+1])

		for outputCurrent := outputStart; outputCurrent < outputEnd; outputCurrent++ {
			p.st.keys[outputCurrent] = batch[batchCurrent].Key
			p.st.values[outputCurrent] = batch[batchCurrent].Value
			batchCurrent++
		}

		p.index.SetSeparatorKey(i, p.st.keys[outputStart])
		p.index.SetSeparatorKey(i+1, p.st.keys[outputStart+int(outSizes[i])])
	}

	p.st.cardinality = len(batch)
	p.st.capacity = capacity
	p.st.numSegments = numSegments
	p.st.height = log2(numSegments) + 1
	return nil
}
