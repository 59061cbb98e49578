package pmago

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func elements(keys ...int64) []Element {
	out := make([]Element, len(keys))
	for i, k := range keys {
		out[i] = Element{Key: k, Value: k}
	}
	return out
}

func TestBulkLoad_EmptyBatch(t *testing.T) {
	p := newTestPMA(t)
	require.NoError(t, p.BulkLoad(nil))
	assert.True(t, p.Empty())
}

func TestBulkLoad_EmptySingleSegment(t *testing.T) {
	p := newTestPMA(t, WithSegmentCapacity(32))

	var batch []Element
	for i := int64(1); i <= 20; i++ {
		batch = append(batch, Element{Key: i * 5, Value: i})
	}
	require.NoError(t, p.BulkLoad(batch))

	require.NoError(t, p.CheckInvariants())
	assert.Equal(t, 20, p.Size())
	assert.Equal(t, 1, p.st.numSegments)

	v, ok := p.Find(50)
	require.True(t, ok)
	assert.Equal(t, int64(10), v)
}

func TestBulkLoad_EmptyMulti(t *testing.T) {
	p := newTestPMA(t, WithSegmentCapacity(32))

	var batch []Element
	for i := int64(10); i <= 1000; i += 10 {
		batch = append(batch, Element{Key: i, Value: i})
	}
	require.NoError(t, p.BulkLoad(batch))

	require.NoError(t, p.CheckInvariants())
	assert.Equal(t, 100, p.Size())
	// 100 elements at the average of root and leaf upper density
	assert.Equal(t, 8, p.st.numSegments)

	got := collect(p.All())
	require.Len(t, got, 100)
	assert.Equal(t, int64(10), got[0].Key)
	assert.Equal(t, int64(1000), got[99].Key)
}

func TestBulkLoad_PointInsertRun(t *testing.T) {
	p := newTestPMA(t, WithSegmentCapacity(32))
	require.NoError(t, p.BulkLoad(elements(10, 20, 30, 40, 50)))

	require.NoError(t, p.BulkLoad(elements(25)))
	require.NoError(t, p.CheckInvariants())
	assert.Equal(t, 6, p.Size())

	report := p.LastLoad()
	assert.Equal(t, 1, report.RunCount)
	require.Len(t, report.Windows, 1)
	assert.Equal(t, 1, report.Windows[0].RunLength)
	assert.Equal(t, 1, report.Windows[0].WindowLength)
	assert.False(t, report.Resized)
}

func TestBulkLoad_MergeSingleSegment(t *testing.T) {
	p := newTestPMA(t, WithSegmentCapacity(32))

	var batch []Element
	for i := int64(10); i <= 1000; i += 10 {
		batch = append(batch, Element{Key: i, Value: i})
	}
	require.NoError(t, p.BulkLoad(batch)) // 8 segments, 12-13 elements each

	// five keys inside one segment's key space, below the leaf band
	require.NoError(t, p.BulkLoad(elements(651, 652, 653, 654, 655)))
	require.NoError(t, p.CheckInvariants())
	assert.Equal(t, 105, p.Size())

	report := p.LastLoad()
	assert.Equal(t, 1, report.RunCount)
	assert.True(t, report.Fused.IsEmpty())
	require.Len(t, report.Windows, 1)
	assert.Equal(t, 5, report.Windows[0].RunLength)
	assert.Equal(t, 1, report.Windows[0].WindowLength)

	for _, k := range []int64{651, 652, 653, 654, 655, 650, 660} {
		_, ok := p.Find(k)
		require.True(t, ok, "key %d", k)
	}
}

// A run overflowing its segment absorbs the run of the adjacent segment
// while ascending the calibrator tree, and the fused window is spread
// once.
func TestBulkLoad_FusesAdjacentRuns(t *testing.T) {
	p := newTestPMA(t, WithSegmentCapacity(32))

	var batch []Element
	for i := int64(10); i <= 1000; i += 10 {
		batch = append(batch, Element{Key: i, Value: i})
	}
	require.NoError(t, p.BulkLoad(batch)) // 8 segments: sizes 13,13,13,13,12,12,12,12

	// 13 keys into segment 2's key space, 5 into segment 3's
	second := elements(
		271, 272, 273, 274, 275, 276, 277, 278, 279, 281, 282, 283, 284,
		405, 415, 425, 435, 445,
	)
	resizeUpsBefore := p.Stats().ResizeUps
	require.NoError(t, p.BulkLoad(second))
	require.NoError(t, p.CheckInvariants())
	assert.Equal(t, 118, p.Size())

	report := p.LastLoad()
	assert.Equal(t, 2, report.RunCount)
	assert.False(t, report.Resized)
	assert.True(t, report.Fused.Contains(1), "run 1 fused into run 0")
	require.Len(t, report.Windows, 1)
	assert.Equal(t, 0, report.Windows[0].RunStart)
	assert.Equal(t, 18, report.Windows[0].RunLength)
	assert.Equal(t, 4, report.Windows[0].WindowLength)
	assert.Equal(t, 70, report.Windows[0].Cardinality)

	// fused local merge, not a resize
	assert.Equal(t, resizeUpsBefore, p.Stats().ResizeUps)

	for _, e := range second {
		v, ok := p.Find(e.Key)
		require.True(t, ok, "key %d", e.Key)
		assert.Equal(t, e.Value, v)
	}
}

func TestBulkLoad_ResizeRequested(t *testing.T) {
	p := newTestPMA(t, WithSegmentCapacity(32))

	var batch []Element
	for i := int64(10); i <= 1000; i += 10 {
		batch = append(batch, Element{Key: i, Value: i})
	}
	require.NoError(t, p.BulkLoad(batch))
	segmentsBefore := p.st.numSegments
	resizeUpsBefore := p.Stats().ResizeUps

	var big []Element
	for i := int64(1); i <= 500; i++ {
		big = append(big, Element{Key: 10000 + i, Value: i})
	}
	require.NoError(t, p.BulkLoad(big))
	require.NoError(t, p.CheckInvariants())
	assert.Equal(t, 600, p.Size())

	assert.True(t, p.LastLoad().Resized)
	assert.Equal(t, resizeUpsBefore+1, p.Stats().ResizeUps, "exactly one resize")
	assert.Greater(t, p.st.numSegments, segmentsBefore)

	got := collect(p.All())
	require.Len(t, got, 600)
	assert.Equal(t, int64(10), got[0].Key)
	assert.Equal(t, int64(10500), got[599].Key)
}

// BulkLoad on a state S is observationally equivalent to inserting the
// batch element by element on S.
func TestBulkLoad_EquivalentToInserts(t *testing.T) {
	bulk := newTestPMA(t, WithSegmentCapacity(32))
	ref := newTestPMA(t, WithSegmentCapacity(32))

	for i := int64(2); i <= 2000; i += 2 {
		require.NoError(t, bulk.Insert(i, i*10))
		require.NoError(t, ref.Insert(i, i*10))
	}

	var batch []Element
	for i := int64(1); i <= 1999; i += 2 {
		batch = append(batch, Element{Key: i, Value: i * 10})
	}
	require.NoError(t, bulk.BulkLoad(batch))
	for _, e := range batch {
		require.NoError(t, ref.Insert(e.Key, e.Value))
	}

	require.NoError(t, bulk.CheckInvariants())
	assert.Equal(t, ref.Size(), bulk.Size())

	itBulk := bulk.All()
	itRef := ref.All()
	for itRef.HasNext() {
		require.True(t, itBulk.HasNext())
		rk, rv := itRef.Next()
		bk, bv := itBulk.Next()
		require.Equal(t, rk, bk)
		require.Equal(t, rv, bv)
	}
	assert.False(t, itBulk.HasNext())
}

func TestBulkLoad_IntoSparseStore(t *testing.T) {
	p := newTestPMA(t, WithSegmentCapacity(32))

	require.NoError(t, p.BulkLoad(elements(2, 4, 6, 8, 10)))
	require.NoError(t, p.BulkLoad(elements(1, 3, 5, 7, 9)))
	require.NoError(t, p.CheckInvariants())
	assert.Equal(t, 10, p.Size())

	got := collect(p.All())
	for i := int64(1); i <= 10; i++ {
		assert.Equal(t, i, got[i-1].Key)
	}
	assert.LessOrEqual(t, p.Stats().ResizeUps, int64(1), "at most one resize")
}

func TestBulkLoad_MinKeyUpdatesSeparator(t *testing.T) {
	p := newTestPMA(t, WithSegmentCapacity(32))
	require.NoError(t, p.BulkLoad(elements(100, 200, 300)))

	require.NoError(t, p.BulkLoad(elements(-50)))
	require.NoError(t, p.CheckInvariants())

	res := p.Sum(math.MinInt64, math.MaxInt64)
	assert.Equal(t, int64(-50), res.FirstKey)
	v, ok := p.Find(-50)
	require.True(t, ok)
	assert.Equal(t, int64(-50), v)
}
