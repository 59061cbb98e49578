package pmago

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rewiringFixtureSize returns an element count that drives the store
// well past the one-extent footprint at which allocation switches to
// rewired memory (pagesPerExtent=1, segment capacity 32).
func rewiringFixtureSize() int64 {
	return int64(os.Getpagesize()) / 2
}

// Sequential fill through the rewiring path must end in the same state
// as the copying implementation.
func TestPMA_RewiringSpread(t *testing.T) {
	rewired := newTestPMA(t, WithSegmentCapacity(32), WithPagesPerExtent(1))
	// an extent far beyond any footprint this test reaches keeps the
	// reference on the two-copy and workspace-swap paths
	reference := newTestPMA(t, WithSegmentCapacity(32), WithPagesPerExtent(1<<16))

	n := rewiringFixtureSize()
	for i := int64(1); i <= n; i++ {
		require.NoError(t, rewired.Insert(i, i*3))
		require.NoError(t, reference.Insert(i, i*3))
	}

	assert.Positive(t, rewired.Stats().RewiringSpreads, "the rewiring path must have run")
	assert.Zero(t, reference.Stats().RewiringSpreads)
	require.NoError(t, rewired.CheckInvariants())

	// identical observable state
	itR := rewired.All()
	itC := reference.All()
	for itC.HasNext() {
		require.True(t, itR.HasNext())
		ck, cv := itC.Next()
		rk, rv := itR.Next()
		require.Equal(t, ck, rk)
		require.Equal(t, cv, rv)
	}
	assert.False(t, itR.HasNext())
	assert.Equal(t, reference.st.numSegments, rewired.st.numSegments)
}

func TestPMA_RewiringShuffledWorkload(t *testing.T) {
	p := newTestPMA(t, WithSegmentCapacity(32), WithPagesPerExtent(1))

	n := rewiringFixtureSize()
	// interleaved low/high inserts keep rebalances away from the tail
	for i := int64(0); i < n/2; i++ {
		require.NoError(t, p.Insert(i*2, i))
		require.NoError(t, p.Insert(n*4-i*2, i))
	}
	require.NoError(t, p.CheckInvariants())
	assert.Equal(t, int(n), p.Size())
	assert.Positive(t, p.Stats().RewiringSpreads)

	for i := int64(0); i < n/2; i += 17 {
		v, ok := p.Find(i * 2)
		require.True(t, ok, "key %d", i*2)
		assert.Equal(t, i, v)
	}

	// drain most of the store again; the delete-side spreads and the
	// shrink path must hold up in rewired mode too
	for i := int64(0); i < n/2; i++ {
		_, found := p.Remove(i * 2)
		require.True(t, found)
	}
	require.NoError(t, p.CheckInvariants())
	assert.Equal(t, int(n)/2, p.Size())
}

// A bulk load that overflows the root of a rewired store resizes in
// place through the bulk rewiring spread.
func TestBulkLoad_RewiringResize(t *testing.T) {
	p := newTestPMA(t, WithSegmentCapacity(32), WithPagesPerExtent(1))

	n := rewiringFixtureSize()
	for i := int64(1); i <= n; i++ {
		require.NoError(t, p.Insert(i*2, i))
	}
	require.True(t, p.st.rewired(), "fixture must be in rewired mode")
	spreadsBefore := p.Stats().RewiringSpreads

	var batch []Element
	for i := int64(1); i <= n; i++ {
		batch = append(batch, Element{Key: i*2 + 1, Value: -i})
	}
	require.NoError(t, p.BulkLoad(batch))

	require.NoError(t, p.CheckInvariants())
	assert.Equal(t, int(2*n), p.Size())
	assert.True(t, p.LastLoad().Resized)
	assert.Greater(t, p.Stats().RewiringSpreads, spreadsBefore)

	it := p.All()
	prev := int64(0)
	for it.HasNext() {
		k, _ := it.Next()
		require.Greater(t, k, prev)
		prev = k
	}
	assert.Equal(t, int64(2*n+1), prev)
}
