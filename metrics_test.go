package pmago

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicMetricsCollector(t *testing.T) {
	mc := &BasicMetricsCollector{}
	p := newTestPMA(t, WithSegmentCapacity(32), WithMetricsCollector(mc))

	for i := int64(1); i <= 200; i++ {
		require.NoError(t, p.Insert(i, i))
	}
	_, found := p.Remove(100)
	require.True(t, found)
	_, found = p.Remove(100)
	require.False(t, found)

	assert.Equal(t, int64(200), mc.InsertCount.Load())
	assert.Zero(t, mc.InsertErrors.Load())
	assert.Equal(t, int64(2), mc.RemoveCount.Load())
	assert.Equal(t, int64(1), mc.RemoveMisses.Load())
	assert.Positive(t, mc.RebalanceCount.Load())
	assert.Positive(t, mc.ResizeUpCount.Load())
}

func TestMetricsCollector_BulkLoad(t *testing.T) {
	mc := &BasicMetricsCollector{}
	p := newTestPMA(t, WithSegmentCapacity(32), WithMetricsCollector(mc))

	require.NoError(t, p.BulkLoad(elements(1, 2, 3)))
	assert.Equal(t, int64(1), mc.BulkLoadCount.Load())
	assert.Zero(t, mc.BulkLoadErrors.Load())
}

func TestLogger_Noop(t *testing.T) {
	// exercised for coverage; the noop logger must swallow everything
	l := NoopLogger()
	l.LogInsert(1, nil)
	l.LogRemove(1, false)
	l.LogRebalance(0, 4, 10, false)
	l.LogResize(1, 2, nil)
	l.LogBulkLoad(10, 2, 1, false, nil)
}

func TestLogger_LevelConstructors(t *testing.T) {
	assert.NotNil(t, NewLogger(nil))
	assert.NotNil(t, NewTextLogger(slog.LevelDebug))
	assert.NotNil(t, NewJSONLogger(slog.LevelInfo))
}
