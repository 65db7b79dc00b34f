package argbuf

import (
	"fmt"
	"math"
)

// Allocator provides the backing bytes of a launch-argument buffer.
type Allocator interface {
	Alloc(size uint64) ([]byte, error)
	Free(b []byte) error
}

// HeapAllocator allocates Go-managed memory. A non-zero Limit caps the size
// of a single allocation.
type HeapAllocator struct {
	Limit uint64
}

func (a HeapAllocator) Alloc(size uint64) ([]byte, error) {
	if err := checkAllocSize(size, a.Limit); err != nil {
		return nil, err
	}
	return make([]byte, size), nil
}

func (a HeapAllocator) Free(_ []byte) error { return nil }

func checkAllocSize(size, limit uint64) error {
	if size > math.MaxInt {
		return fmt.Errorf("%w: %d bytes cannot be addressed", ErrResourceExhausted, size)
	}
	if limit != 0 && size > limit {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrResourceExhausted, size, limit)
	}
	return nil
}

// NewAllocator returns the allocator named by kind: "heap" (or empty) or
// "mmap".
func NewAllocator(kind string, limit uint64) (Allocator, error) {
	switch kind {
	case "", "heap":
		return HeapAllocator{Limit: limit}, nil
	case "mmap":
		return MmapAllocator{Limit: limit}, nil
	default:
		return nil, invalidArg("allocator", "unknown allocator %q", kind)
	}
}
