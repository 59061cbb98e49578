// Package resource provides per-index resource accounting.
//
// The controller gates workspace allocations against a configurable
// memory budget. Allocations reserve their byte count before any live
// state is touched, so budget exhaustion surfaces as an error while the
// index is still in its pre-call state.
package resource

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrMemoryLimitExceeded is returned when the memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("resource: memory limit exceeded")

// Controller tracks and optionally limits managed memory.
// A nil Controller is valid and enforces no limit.
type Controller struct {
	limit   int64
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64
}

// NewController creates a controller with the given hard memory limit
// in bytes. If limit is 0, memory is tracked but not limited.
func NewController(limit int64) *Controller {
	c := &Controller{limit: limit}
	if limit > 0 {
		c.memSem = semaphore.NewWeighted(limit)
	}
	return c
}

// AcquireMemory attempts to reserve memory.
// Returns ErrMemoryLimitExceeded if the limit would be exceeded.
// Non-blocking - callers control retry policy.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return ErrMemoryLimitExceeded
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.limit
}
