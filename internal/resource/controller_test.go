package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Unlimited(t *testing.T) {
	c := NewController(0)

	require.NoError(t, c.AcquireMemory(1<<40))
	assert.Equal(t, int64(1<<40), c.MemoryUsage())
	c.ReleaseMemory(1 << 40)
	assert.Zero(t, c.MemoryUsage())
}

func TestController_Limit(t *testing.T) {
	c := NewController(1024)
	assert.Equal(t, int64(1024), c.MemoryLimit())

	require.NoError(t, c.AcquireMemory(1000))
	assert.ErrorIs(t, c.AcquireMemory(100), ErrMemoryLimitExceeded)
	assert.Equal(t, int64(1000), c.MemoryUsage(), "a failed acquire must not leak usage")

	c.ReleaseMemory(1000)
	require.NoError(t, c.AcquireMemory(1024))
}

func TestController_NilSafe(t *testing.T) {
	var c *Controller
	require.NoError(t, c.AcquireMemory(123))
	c.ReleaseMemory(123)
	assert.Zero(t, c.MemoryUsage())
	assert.Zero(t, c.MemoryLimit())
}
