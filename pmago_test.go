package pmago

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pmago/internal/density"
	"github.com/hupe1980/pmago/testutil"
)

func newTestPMA(t *testing.T, optFns ...Option) *PMA {
	t.Helper()
	p, err := New(optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPMA_New_Validation(t *testing.T) {
	_, err := New(WithSegmentCapacity(1 << 20))
	assert.ErrorIs(t, err, ErrInvalidSegmentCapacity)

	_, err = New(WithPagesPerExtent(3))
	assert.ErrorIs(t, err, ErrInvalidPagesPerExtent)

	_, err = New(WithIndexNodeCapacity(1))
	assert.ErrorIs(t, err, ErrInvalidNodeCapacity)

	_, err = New(WithDensityBounds(density.Bounds{LeafLower: 0.9, RootLower: 0.1, RootUpper: 0.5, LeafUpper: 0.7}))
	assert.ErrorIs(t, err, ErrInvalidDensityBounds)
}

func TestPMA_New_RoundsCapacityUp(t *testing.T) {
	p := newTestPMA(t, WithSegmentCapacity(33))
	assert.Equal(t, 64, p.st.segmentCapacity)
}

func TestPMA_EmptyToSingle(t *testing.T) {
	p := newTestPMA(t)

	assert.True(t, p.Empty())
	assert.Zero(t, p.Size())

	require.NoError(t, p.Insert(42, 7))

	v, ok := p.Find(42)
	require.True(t, ok)
	assert.Equal(t, int64(7), v)
	assert.Equal(t, 1, p.Size())

	it := p.All()
	require.True(t, it.HasNext())
	k, v := it.Next()
	assert.Equal(t, int64(42), k)
	assert.Equal(t, int64(7), v)
	assert.False(t, it.HasNext())

	require.NoError(t, p.CheckInvariants())
}

func TestPMA_FindMissing(t *testing.T) {
	p := newTestPMA(t)

	_, ok := p.Find(1)
	assert.False(t, ok)

	require.NoError(t, p.Insert(10, 100))
	_, ok = p.Find(11)
	assert.False(t, ok)
	_, ok = p.Find(9)
	assert.False(t, ok)
}

func TestPMA_RemoveSemantics(t *testing.T) {
	p := newTestPMA(t)

	_, found := p.Remove(5)
	assert.False(t, found)

	require.NoError(t, p.Insert(5, 50))
	require.NoError(t, p.Insert(6, 60))

	v, found := p.Remove(5)
	require.True(t, found)
	assert.Equal(t, int64(50), v)
	assert.Equal(t, 1, p.Size())

	_, found = p.Remove(5)
	assert.False(t, found)

	_, ok := p.Find(5)
	assert.False(t, ok)
	v, ok = p.Find(6)
	require.True(t, ok)
	assert.Equal(t, int64(60), v)

	v, found = p.Remove(6)
	require.True(t, found)
	assert.Equal(t, int64(60), v)
	assert.True(t, p.Empty())
	assert.Equal(t, int64(math.MinInt64), p.index.SeparatorKey(0))
	require.NoError(t, p.CheckInvariants())
}

func TestPMA_ShuffledInsertLookup(t *testing.T) {
	p := newTestPMA(t, WithSegmentCapacity(32))
	rng := testutil.NewRNG(42)

	const n = 5000
	keys := rng.ShuffledKeys(n)
	for i, k := range keys {
		require.NoError(t, p.Insert(k, k*2))
		if i%512 == 0 {
			require.NoError(t, p.CheckInvariants())
		}
	}
	require.NoError(t, p.CheckInvariants())
	assert.Equal(t, n, p.Size())

	for _, k := range keys {
		v, ok := p.Find(k)
		require.True(t, ok, "key %d", k)
		assert.Equal(t, k*2, v)
	}

	// full iteration is sorted and complete
	it := p.All()
	prev := int64(math.MinInt64)
	count := 0
	for it.HasNext() {
		k, v := it.Next()
		require.Greater(t, k, prev)
		require.Equal(t, k*2, v)
		prev = k
		count++
	}
	assert.Equal(t, n, count)
}

func TestPMA_ShuffledInsertRemove(t *testing.T) {
	p := newTestPMA(t, WithSegmentCapacity(32))
	rng := testutil.NewRNG(7)

	const n = 3000
	keys := rng.ShuffledKeys(n)
	for _, k := range keys {
		require.NoError(t, p.Insert(k, -k))
	}

	removed := keys[:n/2]
	for i, k := range removed {
		v, found := p.Remove(k)
		require.True(t, found, "key %d", k)
		require.Equal(t, -k, v)
		if i%512 == 0 {
			require.NoError(t, p.CheckInvariants())
		}
	}
	require.NoError(t, p.CheckInvariants())
	assert.Equal(t, n-n/2, p.Size())

	for _, k := range removed {
		_, ok := p.Find(k)
		require.False(t, ok)
	}
	for _, k := range keys[n/2:] {
		v, ok := p.Find(k)
		require.True(t, ok)
		require.Equal(t, -k, v)
	}
}

func TestPMA_MemoryFootprint(t *testing.T) {
	p := newTestPMA(t, WithSegmentCapacity(32))

	empty := p.MemoryFootprint()
	assert.Positive(t, empty)
	assert.Positive(t, p.MemoryUsage())

	for i := int64(1); i <= 10000; i++ {
		require.NoError(t, p.Insert(i, i))
	}
	assert.Greater(t, p.MemoryFootprint(), empty)
}

func TestPMA_MemoryLimit(t *testing.T) {
	// not even the initial segment fits
	_, err := New(WithSegmentCapacity(64), WithMemoryLimit(128))
	require.Error(t, err)
	assert.True(t, IsAllocationFailure(err))

	// the initial workspace fits, growth eventually does not
	p := newTestPMA(t, WithSegmentCapacity(32), WithMemoryLimit(8192))

	var insertErr error
	inserted := int64(0)
	for i := int64(1); i <= 100000; i++ {
		if insertErr = p.Insert(i, i); insertErr != nil {
			break
		}
		inserted++
	}
	require.Error(t, insertErr)
	assert.True(t, IsAllocationFailure(insertErr))

	// the pre-call state survives the failed growth
	require.NoError(t, p.CheckInvariants())
	assert.Equal(t, int(inserted), p.Size())
	v, ok := p.Find(1)
	require.True(t, ok)
	assert.Equal(t, int64(1), v)
}

func TestPMA_CloseIdempotent(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	require.NoError(t, p.Insert(1, 1))
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}
