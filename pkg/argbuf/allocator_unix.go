//go:build unix

package argbuf

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MmapAllocator maps anonymous, page-aligned memory outside the Go heap.
// Buffers must be returned with Free.
type MmapAllocator struct {
	Limit uint64
}

func (a MmapAllocator) Alloc(size uint64) ([]byte, error) {
	if err := checkAllocSize(size, a.Limit); err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %v", ErrResourceExhausted, size, err)
	}
	return data, nil
}

func (a MmapAllocator) Free(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munmap(b)
}
