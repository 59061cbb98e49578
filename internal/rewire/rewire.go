package rewire

import (
	"errors"
	"os"
	"unsafe"
)

var (
	// ErrClosed is returned when attempting to use a closed Memory.
	ErrClosed = errors.New("rewire: memory is closed")
	// ErrInvalidExtents is returned when the extent geometry is not a power of two.
	ErrInvalidExtents = errors.New("rewire: pages per extent must be a power of two")
	// ErrOutOfBounds is returned when an extent identifier lies outside the backed range.
	ErrOutOfBounds = errors.New("rewire: extent out of bounds")
	// ErrReservationExhausted is returned when an Extend would overrun the
	// reserved growth range.
	ErrReservationExhausted = errors.New("rewire: virtual reservation exhausted")
)

// DefaultMaxMemory is the size of the virtual growth reservation of a
// single Memory (32 GiB). Only the backed prefix consumes physical
// memory.
const DefaultMaxMemory = 1 << 35

// Memory is a virtual address range backed by physical extents.
type Memory struct {
	extentSize int
	numExtents int
	maxExtents int
	closed     bool
	os         *osMem
}

// NewMemory creates a Memory of numExtents extents, each spanning
// pagesPerExtent OS pages. The whole growth range is reserved up front;
// only the first numExtents are backed.
func NewMemory(pagesPerExtent, numExtents int) (*Memory, error) {
	if pagesPerExtent < 1 || pagesPerExtent&(pagesPerExtent-1) != 0 {
		return nil, ErrInvalidExtents
	}
	if numExtents < 1 {
		return nil, ErrOutOfBounds
	}

	extentSize := pagesPerExtent * os.Getpagesize()
	maxExtents := DefaultMaxMemory / extentSize
	if maxExtents < numExtents {
		maxExtents = numExtents
	}

	osm, err := newOSMem(extentSize, maxExtents)
	if err != nil {
		return nil, err
	}

	m := &Memory{
		extentSize: extentSize,
		numExtents: 0,
		maxExtents: maxExtents,
		os:         osm,
	}
	if err := m.Extend(numExtents); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

// ExtentSize returns the size of one extent in bytes.
func (m *Memory) ExtentSize() int { return m.extentSize }

// NumExtents returns the number of backed extents.
func (m *Memory) NumExtents() int { return m.numExtents }

// Size returns the backed size in bytes.
func (m *Memory) Size() int { return m.numExtents * m.extentSize }

// MaxMemory returns the size of the virtual growth reservation in bytes.
func (m *Memory) MaxMemory() int { return m.maxExtents * m.extentSize }

// Bytes returns the backed range. The slice is valid until the next
// Extend or Close.
func (m *Memory) Bytes() []byte {
	if m.closed {
		return nil
	}
	return m.os.bytes(m.numExtents * m.extentSize)
}

// Int64s returns the backed range as int64 elements.
func (m *Memory) Int64s() []int64 {
	b := m.Bytes()
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&b[0])), len(b)/8) //nolint:gosec // typed view over page-aligned memory
}

// Uint16s returns the backed range as uint16 elements.
func (m *Memory) Uint16s() []uint16 {
	b := m.Bytes()
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), len(b)/2) //nolint:gosec // typed view over page-aligned memory
}

// Extend backs deltaExtents additional extents at the end of the range.
// The new bytes are zero. On Linux the start address does not change.
func (m *Memory) Extend(deltaExtents int) error {
	if m.closed {
		return ErrClosed
	}
	if deltaExtents < 0 || m.numExtents+deltaExtents > m.maxExtents {
		return ErrReservationExhausted
	}
	for i := 0; i < deltaExtents; i++ {
		if err := m.os.back(m.numExtents + i); err != nil {
			return err
		}
	}
	m.numExtents += deltaExtents
	return nil
}

// Close releases the mapping and the reservation. It is idempotent.
func (m *Memory) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	return m.os.close()
}
