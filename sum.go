package pmago

// SumResult aggregates a key range.
type SumResult struct {
	NumElements uint64
	SumKeys     int64
	SumValues   int64
	FirstKey    int64
	LastKey     int64
}

// Sum aggregates the elements with keys in [minKey, maxKey]: element
// count, key and value sums, and the first and last qualifying keys.
// An inverted or empty range returns the zero SumResult.
func (p *PMA) Sum(minKey, maxKey int64) SumResult {
	if minKey > maxKey || p.Empty() {
		return SumResult{}
	}
	segmentStart := p.index.FindFirst(minKey)
	segmentEnd := p.index.FindLast(maxKey)
	if segmentEnd < segmentStart {
		return SumResult{}
	}

	c := p.st.segmentCapacity
	keys := p.st.keys

	// first qualifying element
	notfound := true
	segmentID := segmentStart
	start, stop, offset := 0, 0, 0

	for notfound && segmentID < p.st.numSegments {
		if segmentID%2 == 0 {
			stop = (segmentID + 1) * c
			start = stop - int(p.st.sizes[segmentID])
		} else {
			start = segmentID * c
			stop = start + int(p.st.sizes[segmentID])
		}
		offset = start

		for offset < stop && keys[offset] < minKey {
			offset++
		}

		notfound = offset == stop
		if notfound {
			segmentID++
		}
	}

	// an even segment's run continues into its odd sibling
	if segmentID%2 == 0 && segmentID < p.st.numSegments-1 {
		stop = (segmentID+1)*c + int(p.st.sizes[segmentID+1])
	}

	if notfound || keys[offset] > maxKey {
		return SumResult{}
	}

	// last qualifying element
	var end int
	{
		intervalStartSegment := segmentID
		segmentID := segmentEnd
		notfound := true
		var offset, start, stop int

		for notfound && segmentID >= intervalStartSegment {
			if segmentID%2 == 0 {
				start = (segmentID+1)*c - 1
				stop = start - int(p.st.sizes[segmentID])
			} else {
				stop = segmentID * c
				start = stop + int(p.st.sizes[segmentID]) - 1
			}
			offset = start

			for offset >= stop && keys[offset] > maxKey {
				offset--
			}

			notfound = offset < stop
			if notfound {
				segmentID--
			}
		}

		end = offset + 1
	}

	if end <= offset {
		return SumResult{}
	}
	stop = min(stop, end)

	values := p.st.values
	var sum SumResult
	sum.FirstKey = keys[offset]

	for offset < end {
		sum.NumElements += uint64(stop - offset)
		for offset < stop {
			sum.SumKeys += keys[offset]
			sum.SumValues += values[offset]
			offset++
		}

		// jump to the next even segment's run
		if segmentID%2 == 0 {
			segmentID += 2
		} else {
			segmentID++
		}
		if segmentID < p.st.numSegments {
			sizeLHS := int(p.st.sizes[segmentID])
			sizeRHS := 0
			if segmentID+1 < p.st.numSegments {
				sizeRHS = int(p.st.sizes[segmentID+1])
			}
			offset = (segmentID+1)*c - sizeLHS
			stop = min(end, offset+sizeLHS+sizeRHS)
		}
	}
	sum.LastKey = keys[end-1]

	return sum
}
