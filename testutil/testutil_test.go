package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRNG_Deterministic(t *testing.T) {
	a := NewRNG(99)
	b := NewRNG(99)
	assert.Equal(t, a.ShuffledKeys(100), b.ShuffledKeys(100))
	assert.Equal(t, int64(99), a.Seed())
}

func TestRNG_Reset(t *testing.T) {
	r := NewRNG(7)
	first := r.Int63()
	r.Reset()
	assert.Equal(t, first, r.Int63())
}

func TestRNG_ShuffledKeys(t *testing.T) {
	keys := NewRNG(1).ShuffledKeys(1000)
	require.Len(t, keys, 1000)

	seen := make(map[int64]bool, len(keys))
	for _, k := range keys {
		assert.False(t, seen[k])
		seen[k] = true
		assert.GreaterOrEqual(t, k, int64(1))
		assert.LessOrEqual(t, k, int64(1000))
	}
}

func TestRNG_SortedUniqueKeys(t *testing.T) {
	keys := NewRNG(3).SortedUniqueKeys(500, 1<<20)
	require.Len(t, keys, 500)
	for i := 1; i < len(keys); i++ {
		assert.Greater(t, keys[i], keys[i-1])
	}
}
