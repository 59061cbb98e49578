package pmago

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pmago/internal/resource"
)

var (
	// ErrInvalidSegmentCapacity is returned when the segment capacity does
	// not normalize to a power of two in [32, 65535] dividing the page size.
	ErrInvalidSegmentCapacity = errors.New("segment capacity must be a power of two in [32, 65535] dividing the page size")

	// ErrInvalidNodeCapacity is returned when the separator index node
	// capacity is below 2.
	ErrInvalidNodeCapacity = errors.New("separator index node capacity must be at least 2")

	// ErrInvalidPagesPerExtent is returned when the extent geometry is not
	// a power of two.
	ErrInvalidPagesPerExtent = errors.New("pages per extent must be a power of two")

	// ErrInvalidDensityBounds is returned when the configured density
	// bounds are not a properly ordered band.
	ErrInvalidDensityBounds = errors.New("invalid density bounds")
)

// ErrAllocationFailed indicates that a workspace allocation failed.
//
// The index remains in its pre-call state: allocation is always
// attempted into scratch before any live state is mutated. The original
// underlying error can be accessed via errors.Unwrap.
type ErrAllocationFailed struct {
	Bytes int64
	cause error
}

func (e *ErrAllocationFailed) Error() string {
	return fmt.Sprintf("allocation of %d bytes failed", e.Bytes)
}

func (e *ErrAllocationFailed) Unwrap() error { return e.cause }

func allocationError(bytes int64, cause error) error {
	return &ErrAllocationFailed{Bytes: bytes, cause: cause}
}

// IsAllocationFailure reports whether err stems from memory exhaustion,
// either of the configured budget or of the OS.
func IsAllocationFailure(err error) bool {
	var af *ErrAllocationFailed
	return errors.As(err, &af) || errors.Is(err, resource.ErrMemoryLimitExceeded)
}
