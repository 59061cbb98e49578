package pmago

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pmago/testutil"
)

func TestSum_SparseRange(t *testing.T) {
	p := fixtureTens(t) // {10, 20, ..., 1000}

	res := p.Sum(25, 255)
	assert.Equal(t, uint64(23), res.NumElements)
	assert.Equal(t, int64((30+250)*23/2), res.SumKeys)
	assert.Equal(t, int64((30+250)*23/2), res.SumValues)
	assert.Equal(t, int64(30), res.FirstKey)
	assert.Equal(t, int64(250), res.LastKey)
}

func TestSum_EmptyCases(t *testing.T) {
	p := newTestPMA(t)
	assert.Equal(t, SumResult{}, p.Sum(0, 100))

	require.NoError(t, p.Insert(50, 1))
	assert.Equal(t, SumResult{}, p.Sum(100, 0), "inverted range")
	assert.Equal(t, SumResult{}, p.Sum(60, 100), "no qualifying keys")
	assert.Equal(t, SumResult{}, p.Sum(0, 40))
}

func TestSum_SingleElement(t *testing.T) {
	p := newTestPMA(t)
	require.NoError(t, p.Insert(50, 7))

	res := p.Sum(50, 50)
	assert.Equal(t, uint64(1), res.NumElements)
	assert.Equal(t, int64(50), res.SumKeys)
	assert.Equal(t, int64(7), res.SumValues)
	assert.Equal(t, int64(50), res.FirstKey)
	assert.Equal(t, int64(50), res.LastKey)
}

func TestSum_MatchesRange(t *testing.T) {
	p := newTestPMA(t, WithSegmentCapacity(32))
	rng := testutil.NewRNG(11)

	for _, k := range rng.ShuffledKeys(4000) {
		require.NoError(t, p.Insert(k, k%97))
	}

	ranges := [][2]int64{{1, 4000}, {100, 200}, {3999, 4001}, {-50, 50}, {2000, 2000}, {1500, 3500}}
	for _, r := range ranges {
		res := p.Sum(r[0], r[1])

		var want SumResult
		it := p.Range(r[0], r[1])
		first := true
		for it.HasNext() {
			k, v := it.Next()
			if first {
				want.FirstKey = k
				first = false
			}
			want.NumElements++
			want.SumKeys += k
			want.SumValues += v
			want.LastKey = k
		}

		assert.Equal(t, want, res, "range [%d, %d]", r[0], r[1])
	}
}
