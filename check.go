package pmago

import (
	"fmt"
	"math"
	"sort"
)

// CheckInvariants walks the whole structure and verifies its internal
// consistency: segment sizes within bounds, keys strictly ascending
// across the packed regions, separator keys matching the segment
// minima, and the registered cardinality matching the actual element
// count. It returns a descriptive error for the first violation found.
func (p *PMA) CheckInvariants() error {
	st := p.st

	if st.numSegments == 1 && st.sizes[1] != 0 {
		return fmt.Errorf("sentinel size of segment 1 is %d, want 0", st.sizes[1])
	}

	if p.Empty() {
		if sep := p.index.SeparatorKey(0); sep != math.MinInt64 {
			return fmt.Errorf("empty structure with separator %d on segment 0", sep)
		}
		return nil
	}

	previousKey := int64(math.MinInt64)
	totalCount := 0

	for i := 0; i < st.numSegments; i++ {
		sz := int(st.sizes[i])
		if sz < 0 || sz > st.segmentCapacity {
			return fmt.Errorf("segment %d has size %d, capacity is %d", i, sz, st.segmentCapacity)
		}
		totalCount += sz
		if sz == 0 {
			continue
		}

		start, stop := st.segmentBounds(i)
		for j := start; j < stop; j++ {
			if j > start || totalCount > sz { // not the very first element
				if st.keys[j] <= previousKey {
					return fmt.Errorf("order mismatch in segment %d: %d after %d", i, st.keys[j], previousKey)
				}
			}
			previousKey = st.keys[j]
		}

		if sep := p.index.SeparatorKey(i); sep != st.keys[start] {
			return fmt.Errorf("segment %d has minimum %d but separator %d", i, st.keys[start], sep)
		}
	}

	if totalCount != st.cardinality {
		return fmt.Errorf("registered cardinality %d, counted %d", st.cardinality, totalCount)
	}
	return nil
}

// SegmentStatistics summarises per-segment cardinalities and the byte
// distances between consecutive element runs.
func (p *PMA) SegmentStatistics() SegmentStats {
	st := p.st
	stats := SegmentStats{NumSegments: st.numSegments}

	var distances []int
	var cardinalities []int
	distanceSum := 0
	distanceGapStart := 0

	for i := 0; i < st.numSegments; i++ {
		sz := int(st.sizes[i])

		// a run ends at the tail of every odd segment; the gap to the
		// next run spans the tail of the odd segment and the head of the
		// following even one
		if i > 0 {
			if i%2 == 0 {
				gapEnd := 2*st.segmentCapacity - sz
				distance := (gapEnd - distanceGapStart) * 8
				distanceSum += distance
				distances = append(distances, distance)
			} else {
				distanceGapStart = sz
			}
		}

		cardinalities = append(cardinalities, sz)
	}

	if len(distances) > 0 {
		sort.Ints(distances)
		stats.DistanceAvg = distanceSum / len(distances)
		stats.DistanceMin = distances[0]
		stats.DistanceMax = distances[len(distances)-1]
		stats.DistanceMedian = median(distances)
	}

	sort.Ints(cardinalities)
	stats.CardinalityAvg = st.cardinality / st.numSegments
	stats.CardinalityMin = cardinalities[0]
	stats.CardinalityMax = cardinalities[len(cardinalities)-1]
	stats.CardinalityMedian = median(cardinalities)

	return stats
}

func median(sorted []int) int {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
