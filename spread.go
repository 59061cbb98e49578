package pmago

// spreadInsertUnsafe copies a sorted run of numElements elements into
// dst while merging the new element into its position. dst must have
// room for numElements+1. The regions may overlap by at most one slot,
// which the write order tolerates.
func (p *PMA) spreadInsertUnsafe(srcKeys, srcValues, dstKeys, dstValues []int64, numElements int, newKey, newValue int64) {
	i := 0
	for i < numElements && srcKeys[i] < newKey {
		dstKeys[i] = srcKeys[i]
		dstValues[i] = srcValues[i]
		i++
	}
	dstKeys[i] = newKey
	dstValues[i] = newValue

	copy(dstKeys[i+1:numElements+1], srcKeys[i:numElements])
	copy(dstValues[i+1:numElements+1], srcValues[i:numElements])

	p.st.cardinality++
}

// spreadTwoCopies redistributes cardinality elements evenly across the
// window using a scratch buffer of at most 4*C+1 elements. It first
// compacts every double-segment run toward the high end of the window
// (the four highest segments into the scratch buffer, since their slots
// are overwritten first), merging the pending element when its run
// passes by, then streams the compacted elements back pair by pair.
//
// cardinality counts the pending insert. The window starts at an even
// segment and spans an even number of segments.
func (p *PMA) spreadTwoCopies(cardinality, segmentStart, numSegments int, ins *Element, insSegmentID int) {
	c := p.st.segmentCapacity
	insertSegmentID := -1
	if ins != nil {
		insertSegmentID = insSegmentID - segmentStart
	}

	sizes := p.st.sizes[segmentStart:]
	outKeys := p.st.keys[segmentStart*c:]
	outValues := p.st.values[segmentStart*c:]

	// input chunk 2 (extra space)
	chunk2Capacity := 4*c + 1
	chunk2Keys := p.chunkKeys
	chunk2Values := p.chunkValues

	// 1) compact all elements towards the end
	outputSegmentID := numSegments - 2
	outputStart := (outputSegmentID+1)*c - int(sizes[outputSegmentID])
	outputEnd := outputStart + int(sizes[outputSegmentID]) + int(sizes[outputSegmentID+1])

	// the last four segments go into the scratch buffer
	segmentsCopied := 0
	spaceLeft := chunk2Capacity
	for outputSegmentID >= 0 && segmentsCopied < 4 {
		n := outputEnd - outputStart
		if insertSegmentID == outputSegmentID || insertSegmentID == outputSegmentID+1 {
			p.spreadInsertUnsafe(
				outKeys[outputStart:], outValues[outputStart:],
				chunk2Keys[spaceLeft-n-1:], chunk2Values[spaceLeft-n-1:],
				n, ins.Key, ins.Value)
			spaceLeft--
		} else {
			copy(chunk2Keys[spaceLeft-n:spaceLeft], outKeys[outputStart:outputStart+n])
			copy(chunk2Values[spaceLeft-n:spaceLeft], outValues[outputStart:outputStart+n])
		}
		spaceLeft -= n

		outputSegmentID -= 2
		if outputSegmentID >= 0 {
			outputStart = (outputSegmentID+1)*c - int(sizes[outputSegmentID])
			outputEnd = outputStart + int(sizes[outputSegmentID]) + int(sizes[outputSegmentID+1])
		}

		segmentsCopied += 2
	}

	chunk2Keys = chunk2Keys[spaceLeft:chunk2Capacity]
	chunk2Values = chunk2Values[spaceLeft:chunk2Capacity]
	chunk2Size := chunk2Capacity - spaceLeft

	// the remaining runs move to the end of the window in place
	chunk1Current := numSegments * c
	for outputSegmentID >= 0 {
		n := outputEnd - outputStart
		if insertSegmentID == outputSegmentID || insertSegmentID == outputSegmentID+1 {
			p.spreadInsertUnsafe(
				outKeys[outputStart:], outValues[outputStart:],
				outKeys[chunk1Current-n-1:], outValues[chunk1Current-n-1:],
				n, ins.Key, ins.Value)
			chunk1Current--
		} else {
			copy(outKeys[chunk1Current-n:chunk1Current], outKeys[outputStart:outputStart+n])
			copy(outValues[chunk1Current-n:chunk1Current], outValues[outputStart:outputStart+n])
		}
		chunk1Current -= n

		outputSegmentID -= 2
		if outputSegmentID >= 0 {
			outputStart = (outputSegmentID+1)*c - int(sizes[outputSegmentID])
			outputEnd = outputStart + int(sizes[outputSegmentID]) + int(sizes[outputSegmentID+1])
		}
	}

	chunk1Size := numSegments*c - chunk1Current
	chunk1Keys := outKeys[chunk1Current:]
	chunk1Values := outValues[chunk1Current:]

	// 2) the expected size of each segment
	elementsPerSegment := cardinality / numSegments
	numOddSegments := cardinality % numSegments
	for i := 0; i < numSegments; i++ {
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

	// 4) copy back from the input chunks
	for i := 0; i < numSegments; i += 2 {
		outputStart := (i+1)*c - int(sizes[i])
		outputEnd := outputStart + int(sizes[i]) + int(sizes[i+1])
		outputCurrent := outputStart

		for outputCurrent < outputEnd {
			n := min(outputEnd-outputCurrent, inputSize-inputCurrent)
			copy(outKeys[outputCurrent:outputCurrent+n], inputKeys[inputCurrent:inputCurrent+n])
			copy(outValues[outputCurrent:outputCurrent+n], inputValues[inputCurrent:inputCurrent+n])
			outputCurrent += n
			inputCurrent += n
			// switch to the second chunk
			if inputCurrent == inputSize && onChunk1 {
				inputKeys = chunk2Keys
				inputValues = chunk2Values
				inputSize = chunk2Size
				inputCurrent = 0
				onChunk1 = false
			}
		}

		p.index.SetSeparatorKey(segmentStart+i, outKeys[outputStart])
		p.index.SetSeparatorKey(segmentStart+i+1, outKeys[outputStart+int(sizes[i])])
	}
}
