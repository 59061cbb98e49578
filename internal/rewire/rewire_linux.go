//go:build linux

package rewire

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// osMem reserves the whole growth range with PROT_NONE and maps extents
// of an anonymous memory file on top of it with MAP_FIXED. backing
// records which file extent currently sits behind each virtual slot, so
// two slots can exchange their physical frames by remapping.
type osMem struct {
	extentSize int
	maxExtents int
	base       unsafe.Pointer
	fd         int
	backing    map[int]int64 // virtual slot -> file offset
	fileSize   int64
}

func newOSMem(extentSize, maxExtents int) (*osMem, error) {
	reserve := uintptr(extentSize) * uintptr(maxExtents)

	base, err := unix.MmapPtr(-1, 0, nil, reserve, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}

	fd, err := unix.MemfdCreate("pmago-rewire", unix.MFD_CLOEXEC)
	if err != nil {
		_ = unix.MunmapPtr(base, reserve)
		return nil, err
	}

	return &osMem{
		extentSize: extentSize,
		maxExtents: maxExtents,
		base:       base,
		fd:         fd,
		backing:    make(map[int]int64),
	}, nil
}

func (m *osMem) addr(slot int) unsafe.Pointer {
	return unsafe.Add(m.base, slot*m.extentSize)
}

// back maps a fresh file extent at the given virtual slot.
func (m *osMem) back(slot int) error {
	off := m.fileSize
	m.fileSize += int64(m.extentSize)
	if err := unix.Ftruncate(m.fd, m.fileSize); err != nil {
		m.fileSize = off
		return err
	}
	if err := m.mapAt(slot, off); err != nil {
		return err
	}
	m.backing[slot] = off
	return nil
}

func (m *osMem) mapAt(slot int, off int64) error {
	_, err := unix.MmapPtr(m.fd, off, m.addr(slot), uintptr(m.extentSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_FIXED)
	return err
}

// swap exchanges the physical backing of two slots. The virtual
// addresses of both slots are unchanged.
func (m *osMem) swap(a, b int) error {
	offA, offB := m.backing[a], m.backing[b]
	if err := m.mapAt(a, offB); err != nil {
		return err
	}
	if err := m.mapAt(b, offA); err != nil {
		return err
	}
	m.backing[a], m.backing[b] = offB, offA
	return nil
}

func (m *osMem) bytes(n int) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(m.base), n)
}

func (m *osMem) slot(slot int) []byte {
	return unsafe.Slice((*byte)(m.addr(slot)), m.extentSize)
}

func (m *osMem) close() error {
	err := unix.MunmapPtr(m.base, uintptr(m.extentSize)*uintptr(m.maxExtents))
	if cerr := unix.Close(m.fd); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
