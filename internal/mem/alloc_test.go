package mem

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocAligned(t *testing.T) {
	assert.Nil(t, AllocAligned(0))

	for _, size := range []int{1, 63, 64, 65, 4096} {
		buf := AllocAligned(size)
		require.Len(t, buf, size)
		addr := uintptr(unsafe.Pointer(&buf[0]))
		assert.Zero(t, addr%Alignment, "size %d not aligned", size)
	}
}

func TestAllocAlignedInt64(t *testing.T) {
	assert.Nil(t, AllocAlignedInt64(0))

	s := AllocAlignedInt64(1000)
	require.Len(t, s, 1000)
	addr := uintptr(unsafe.Pointer(&s[0]))
	assert.Zero(t, addr%Alignment)

	s[999] = 42
	assert.Equal(t, int64(42), s[999])
}

func TestAllocAlignedUint16(t *testing.T) {
	s := AllocAlignedUint16(100)
	require.Len(t, s, 100)
	addr := uintptr(unsafe.Pointer(&s[0]))
	assert.Zero(t, addr%Alignment)
}
