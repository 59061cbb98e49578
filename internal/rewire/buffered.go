package rewire

import (
	"unsafe"

	"github.com/bits-and-blooms/bitset"
)

// Buffer is a spare physical extent acquired from the pool. Data is the
// typed view of the extent; it stays valid until the buffer is swapped
// into place.
type Buffer struct {
	slot int
	Data []int64
}

// Buffered wraps a Memory with a pool of spare extents used by the
// rewiring spread: a destination pattern is written into a spare
// buffer, then the buffer's frames are swapped into the target extent.
//
// Buffer slots are carved from the top of the virtual reservation, so
// they never collide with Extend growing the main range from the
// bottom.
type Buffered struct {
	mem     *Memory
	spare   *bitset.BitSet // pooled buffer slots, bit i = slot maxExtents-1-i
	topSlot int            // lowest buffer slot allocated so far
	used    int            // acquired and not yet released
}

// NewBuffered creates a Buffered memory of numExtents extents.
func NewBuffered(pagesPerExtent, numExtents int) (*Buffered, error) {
	mem, err := NewMemory(pagesPerExtent, numExtents)
	if err != nil {
		return nil, err
	}
	return &Buffered{
		mem:     mem,
		spare:   bitset.New(8),
		topSlot: mem.maxExtents,
	}, nil
}

// ExtentSize returns the size of one extent in bytes.
func (b *Buffered) ExtentSize() int { return b.mem.extentSize }

// NumExtents returns the number of backed main extents.
func (b *Buffered) NumExtents() int { return b.mem.numExtents }

// Size returns the backed main range size in bytes.
func (b *Buffered) Size() int { return b.mem.Size() }

// MaxMemory returns the size of the virtual growth reservation in bytes.
func (b *Buffered) MaxMemory() int { return b.mem.MaxMemory() }

// Bytes returns the backed main range.
func (b *Buffered) Bytes() []byte { return b.mem.Bytes() }

// Int64s returns the backed main range as int64 elements.
func (b *Buffered) Int64s() []int64 { return b.mem.Int64s() }

// Extend backs deltaExtents additional main extents.
func (b *Buffered) Extend(deltaExtents int) error {
	if b.mem.numExtents+deltaExtents > b.topSlot {
		return ErrReservationExhausted
	}
	return b.mem.Extend(deltaExtents)
}

// AcquireBuffer takes a spare extent from the pool, backing a new one
// if the pool is empty. The buffer contents are undefined.
func (b *Buffered) AcquireBuffer() (*Buffer, error) {
	if b.mem.closed {
		return nil, ErrClosed
	}

	var slot int
	if idx, ok := b.spare.NextSet(0); ok {
		b.spare.Clear(idx)
		slot = b.mem.maxExtents - 1 - int(idx)
	} else {
		if b.topSlot-1 < b.mem.numExtents {
			return nil, ErrReservationExhausted
		}
		b.topSlot--
		if err := b.mem.os.back(b.topSlot); err != nil {
			b.topSlot++
			return nil, err
		}
		slot = b.topSlot
	}

	b.used++
	return &Buffer{slot: slot, Data: b.slotInt64s(slot)}, nil
}

// SwapAndRelease remaps the physical frames of buf into the main extent
// dstExtent and returns the extent's previous frames to the spare pool.
// The virtual addresses of dstExtent never change. buf must not be used
// afterwards.
func (b *Buffered) SwapAndRelease(dstExtent int, buf *Buffer) error {
	if b.mem.closed {
		return ErrClosed
	}
	if dstExtent < 0 || dstExtent >= b.mem.numExtents {
		return ErrOutOfBounds
	}

	if err := b.mem.os.swap(dstExtent, buf.slot); err != nil {
		return err
	}
	b.spare.Set(uint(b.mem.maxExtents - 1 - buf.slot))
	b.used--
	buf.Data = nil
	return nil
}

// UsedBuffers returns the number of buffers acquired and not yet
// released. Spreads assert this is zero before and after running.
func (b *Buffered) UsedBuffers() int { return b.used }

// Close releases the mapping, the pool included. It is idempotent.
func (b *Buffered) Close() error { return b.mem.Close() }

func (b *Buffered) slotInt64s(slot int) []int64 {
	raw := b.mem.os.slot(slot)
	return unsafe.Slice((*int64)(unsafe.Pointer(&raw[0])), len(raw)/8) //nolint:gosec // typed view over page-aligned memory
}
