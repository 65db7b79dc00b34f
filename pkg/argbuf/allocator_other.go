//go:build !unix

package argbuf

// MmapAllocator falls back to heap memory where mmap is unavailable.
type MmapAllocator struct {
	Limit uint64
}

func (a MmapAllocator) Alloc(size uint64) ([]byte, error) {
	return HeapAllocator(a).Alloc(size)
}

func (a MmapAllocator) Free(_ []byte) error { return nil }
