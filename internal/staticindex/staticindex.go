// Package staticindex provides the separator index of the sparse array:
// a static B+-tree-shaped structure mapping keys to segment identifiers.
//
// The index stores one separator key per segment (the segment minimum)
// in a flat leaf array, plus implicit inner levels holding the first key
// of each block of nodeCapacity children. There are no pointers; a
// lookup descends the levels with one block scan per level. The index is
// rebuilt whenever the segment count changes and patched in place when a
// single separator moves.
package staticindex

import (
	"errors"
	"math"
)

var (
	// ErrInvalidNodeCapacity is returned when the node capacity is below 2.
	ErrInvalidNodeCapacity = errors.New("staticindex: node capacity must be at least 2")
	// ErrInvalidSegmentCount is returned when the segment count is not positive.
	ErrInvalidSegmentCount = errors.New("staticindex: segment count must be positive")
)

// Index answers "which segment could contain key K?" in logarithmic time.
//
// The separator of segment 0 is math.MinInt64 while the structure is
// empty, so every key routes to segment 0.
type Index struct {
	nodeCapacity int
	numSegments  int

	// levels[0] is the leaf level (one separator per segment);
	// levels[i+1] holds the first key of each nodeCapacity-block of
	// levels[i]. The last level fits in a single block.
	levels [][]int64
}

// New creates an index for numSegments segments with the given node
// capacity.
func New(nodeCapacity, numSegments int) (*Index, error) {
	if nodeCapacity < 2 {
		return nil, ErrInvalidNodeCapacity
	}
	idx := &Index{nodeCapacity: nodeCapacity}
	if err := idx.Rebuild(numSegments); err != nil {
		return nil, err
	}
	return idx, nil
}

// NodeCapacity returns the block fan-out of the index.
func (idx *Index) NodeCapacity() int { return idx.nodeCapacity }

// NumSegments returns the number of indexed segments.
func (idx *Index) NumSegments() int { return idx.numSegments }

// Rebuild resets the index for a new segment count. All separators are
// initialised to math.MinInt64; the caller refreshes them as it fills
// the segments.
func (idx *Index) Rebuild(numSegments int) error {
	if numSegments < 1 {
		return ErrInvalidSegmentCount
	}
	idx.numSegments = numSegments

	idx.levels = idx.levels[:0]
	level := make([]int64, numSegments)
	for i := range level {
		level[i] = math.MinInt64
	}
	idx.levels = append(idx.levels, level)
	for len(level) > idx.nodeCapacity {
		parent := make([]int64, (len(level)+idx.nodeCapacity-1)/idx.nodeCapacity)
		for i := range parent {
			parent[i] = level[i*idx.nodeCapacity]
		}
		idx.levels = append(idx.levels, parent)
		level = parent
	}
	return nil
}

// SetSeparatorKey records key as the minimum of the given segment and
// patches the inner levels on the path to the root.
func (idx *Index) SetSeparatorKey(segment int, key int64) {
	pos := segment
	for _, level := range idx.levels {
		level[pos] = key
		if pos%idx.nodeCapacity != 0 {
			break
		}
		pos /= idx.nodeCapacity
	}
}

// SeparatorKey returns the separator currently recorded for the segment.
func (idx *Index) SeparatorKey(segment int) int64 {
	return idx.levels[0][segment]
}

// Find returns the unique segment that may contain key: the largest
// segment whose separator is <= key, or 0 if there is none.
func (idx *Index) Find(key int64) int {
	return idx.descend(key, false)
}

// FindFirst returns the first segment of the range covering keys >= key.
// With strictly increasing separators it coincides with Find; when equal
// separators exist it resolves to the lowest of them.
func (idx *Index) FindFirst(key int64) int {
	return idx.descend(key, true)
}

// FindLast returns the last segment of the range covering keys <= key.
func (idx *Index) FindLast(key int64) int {
	return idx.descend(key, false)
}

func (idx *Index) descend(key int64, first bool) int {
	pos := 0
	for li := len(idx.levels) - 1; li >= 0; li-- {
		level := idx.levels[li]
		start := pos * idx.nodeCapacity
		if li == len(idx.levels)-1 {
			start = 0
		}
		end := min(start+idx.nodeCapacity, len(level))

		// largest slot in the block with separator <= key
		slot := start
		for i := start; i < end; i++ {
			if level[i] <= key {
				slot = i
			} else {
				break
			}
		}
		pos = slot
	}

	if first {
		for pos > 0 && idx.levels[0][pos-1] == idx.levels[0][pos] {
			pos--
		}
	}
	return pos
}

// MemoryFootprint returns the memory usage of the index in bytes.
func (idx *Index) MemoryFootprint() int {
	total := 0
	for _, level := range idx.levels {
		total += len(level) * 8
	}
	return total
}
