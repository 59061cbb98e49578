package pmago

import (
	"iter"
	"math"
)

// Iterator yields the elements of a key range in ascending order. It is
// lazy, finite and non-restartable, and it is invalidated by any
// subsequent mutation of the index.
type Iterator struct {
	st          *storage
	nextSegment int
	offset      int
	stop        int // position where the current sequence ends
	indexMax    int
}

// Range returns an iterator over the elements with keys in
// [minKey, maxKey]. An inverted range yields an empty iterator.
func (p *PMA) Range(minKey, maxKey int64) *Iterator {
	if p.Empty() || minKey > maxKey {
		return &Iterator{st: p.st}
	}
	return newIterator(p.st, p.index.FindFirst(minKey), p.index.FindLast(maxKey), minKey, maxKey)
}

// All returns an iterator over every element of the index.
func (p *PMA) All() *Iterator {
	if p.Empty() {
		return &Iterator{st: p.st}
	}
	return newIterator(p.st, 0, p.st.numSegments-1, math.MinInt64, math.MaxInt64)
}

func newIterator(st *storage, segmentStart, segmentEnd int, keyMin, keyMax int64) *Iterator {
	it := &Iterator{st: st}
	if segmentStart > segmentEnd || segmentEnd >= st.numSegments {
		return it
	}
	c := st.segmentCapacity
	keys := st.keys

	// scan forward for the first qualifying element
	notfound := true
	segmentID := segmentStart
	start, stop, offset := 0, 0, 0

	for notfound && segmentID < st.numSegments {
		if segmentID%2 == 0 {
			stop = (segmentID + 1) * c
			start = stop - int(st.sizes[segmentID])
		} else {
			start = segmentID * c
			stop = start + int(st.sizes[segmentID])
		}
		offset = start

		for offset < stop && keys[offset] < keyMin {
			offset++
		}

		notfound = offset == stop
		if notfound {
			segmentID++
		}
	}

	it.offset = offset
	it.nextSegment = segmentID + 1
	it.stop = stop
	if segmentID%2 == 0 && it.nextSegment < st.numSegments {
		// an even segment runs straight into its odd sibling
		it.stop = it.nextSegment*c + int(st.sizes[it.nextSegment])
		it.nextSegment++
	}

	if notfound || keys[it.offset] > keyMax {
		it.indexMax = 0
		it.stop = 0
		return it
	}

	// scan backward from the last segment for the last qualifying element
	intervalStartSegment := segmentID
	segmentID = segmentEnd
	notfound = true

	for notfound && segmentID >= intervalStartSegment {
		if segmentID%2 == 0 {
			start = (segmentID+1)*c - 1
			stop = start - int(st.sizes[segmentID])
		} else {
			stop = segmentID * c
			start = stop + int(st.sizes[segmentID]) - 1
		}
		offset = start

		for offset >= stop && keys[offset] > keyMax {
			offset--
		}

		notfound = offset < stop
		if notfound {
			segmentID--
		}
	}

	if offset < it.offset {
		it.indexMax = 0
		it.stop = 0
		return it
	}

	it.indexMax = offset + 1
	it.stop = min(it.indexMax, it.stop)
	return it
}

// nextSequence advances offset and stop to the next qualifying run.
func (it *Iterator) nextSequence() {
	segment1 := it.nextSegment
	if segment1 >= it.st.numSegments {
		return
	}
	c := it.st.segmentCapacity

	if segment1%2 == 0 {
		it.offset = segment1*c + c - int(it.st.sizes[segment1])
		segment2 := segment1 + 1
		it.stop = segment2 * c
		if segment2 < it.st.numSegments {
			it.stop = min(it.stop+int(it.st.sizes[segment2]), it.indexMax)
		} else {
			it.stop = min(it.stop, it.indexMax)
		}
		it.nextSegment += 2
	} else {
		it.offset = segment1 * c
		it.stop = min(it.indexMax, it.offset+int(it.st.sizes[segment1]))
		it.nextSegment++
	}
}

// HasNext reports whether another element is available. It is
// idempotent and side-effect free.
func (it *Iterator) HasNext() bool {
	return it.offset < it.stop
}

// Next returns the current element and advances the iterator.
func (it *Iterator) Next() (key, value int64) {
	key = it.st.keys[it.offset]
	value = it.st.values[it.offset]

	it.offset++
	if it.offset >= it.stop {
		it.nextSequence()
	}

	return key, value
}

// Seq adapts the iterator to a range-over-func sequence:
//
//	for k, v := range pma.Range(10, 99).Seq() {
//	    ...
//	}
func (it *Iterator) Seq() iter.Seq2[int64, int64] {
	return func(yield func(int64, int64) bool) {
		for it.HasNext() {
			if !yield(it.Next()) {
				return
			}
		}
	}
}
