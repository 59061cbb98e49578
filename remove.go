package pmago

import (
	"math"
	"time"
)

// Remove deletes the element with the given key and returns its prior
// value.
//
// Removal itself cannot fail. If the follow-up rebalance cannot obtain
// memory for a shrink, the deletion stands and the store merely stays
// sparser than the thresholds ask for; the condition is logged and the
// next successful rebalance repairs it.
func (p *PMA) Remove(key int64) (int64, bool) {
	start := time.Now()
	value, found := p.remove(key)
	p.metrics.RecordRemove(time.Since(start), found)
	p.logger.LogRemove(key, found)
	return value, found
}

func (p *PMA) remove(key int64) (int64, bool) {
	if p.Empty() {
		return 0, false
	}

	segmentID := p.index.Find(key)
	base := segmentID * p.st.segmentCapacity
	keys := p.st.keys[base : base+p.st.segmentCapacity]
	values := p.st.values[base : base+p.st.segmentCapacity]
	sz := int(p.st.sizes[segmentID])

	var value int64
	found := false

	if segmentID%2 == 0 { // right-packed
		imin := p.st.segmentCapacity - sz
		i := imin
		for ; i < p.st.segmentCapacity; i++ {
			if keys[i] == key {
				break
			}
		}
		if i < p.st.segmentCapacity {
			found = true
			value = values[i]
			for j := i; j > imin; j-- {
				keys[j] = keys[j-1]
				values[j] = values[j-1]
			}

			sz--
			p.st.sizes[segmentID] = uint16(sz)
			p.st.cardinality--

			if i == imin { // the segment minimum went away
				if p.st.cardinality == 0 {
					p.index.SetSeparatorKey(0, math.MinInt64)
				} else if sz > 0 {
					// sz == 0 leaves the separator stale until the
					// rebalance below rewrites the window
					p.index.SetSeparatorKey(segmentID, keys[imin+1])
				}
			}
		}
	} else { // left-packed
		i := 0
		for ; i < sz; i++ {
			if keys[i] == key {
				break
			}
		}
		if i < sz {
			found = true
			value = values[i]
			for j := i; j < sz-1; j++ {
				keys[j] = keys[j+1]
				values[j] = values[j+1]
			}

			sz--
			p.st.sizes[segmentID] = uint16(sz)
			p.st.cardinality--

			// sz == 0 means the segment is about to be rebalanced anyway
			if i == 0 && sz > 0 {
				p.index.SetSeparatorKey(segmentID, keys[0])
			}
		}
	}

	if found && p.st.numSegments > 1 {
		lower, _ := p.thresholds(1)
		minimumSize := max(int(lower*float64(p.st.segmentCapacity)), 1)
		if sz < minimumSize {
			if err := p.rebalance(segmentID, nil); err != nil {
				p.logger.Warn("post-remove rebalance skipped",
					"segment", segmentID,
					"error", err,
				)
			}
		}
	}

	return value, found
}
