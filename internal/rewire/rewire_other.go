//go:build !linux

package rewire

// osMem emulates physical-frame swapping with heap buffers and copies.
// Swap and pool semantics match the Linux implementation; growing the
// main range may move it, which callers tolerate because they refresh
// their views after every Extend.
type osMem struct {
	extentSize int
	maxExtents int
	main       []byte
	spares     map[int][]byte // buffer slots (allocated from the top)
}

func newOSMem(extentSize, maxExtents int) (*osMem, error) {
	return &osMem{
		extentSize: extentSize,
		maxExtents: maxExtents,
		spares:     make(map[int][]byte),
	}, nil
}

func (m *osMem) back(slot int) error {
	if end := (slot + 1) * m.extentSize; end > len(m.main) && slot*m.extentSize <= len(m.main) {
		grown := make([]byte, end)
		copy(grown, m.main)
		m.main = grown
		return nil
	}
	// detached buffer slot
	m.spares[slot] = make([]byte, m.extentSize)
	return nil
}

func (m *osMem) swap(a, b int) error {
	// a is a main-range extent, b a buffer slot
	copy(m.main[a*m.extentSize:(a+1)*m.extentSize], m.spares[b])
	return nil
}

func (m *osMem) bytes(n int) []byte {
	if n == 0 {
		return nil
	}
	return m.main[:n]
}

func (m *osMem) slot(slot int) []byte {
	if buf, ok := m.spares[slot]; ok {
		return buf
	}
	return m.main[slot*m.extentSize : (slot+1)*m.extentSize]
}

func (m *osMem) close() error {
	m.main = nil
	m.spares = nil
	return nil
}
