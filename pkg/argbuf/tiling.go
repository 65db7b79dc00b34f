package argbuf

import "fmt"

// A serialized tiling record starts with three words: capacity, data size and
// a pointer to its own payload. The payload follows immediately.
const (
	tilingCapacityOffset = 0
	tilingDataSizeOffset = 8
	tilingDataPtrOffset  = 16

	TilingRecordHeaderSize = 24
)

// TilingKind names one of the four tiling sub-buffers.
type TilingKind uint8

const (
	TilingPrimary TilingKind = iota
	TilingTail
	TilingAtomic
	TilingAtomicTail

	numTilingKinds
)

func (k TilingKind) String() string {
	switch k {
	case TilingPrimary:
		return "tiling"
	case TilingTail:
		return "tail-tiling"
	case TilingAtomic:
		return "atomic-tiling"
	case TilingAtomicTail:
		return "atomic-tail-tiling"
	default:
		return fmt.Sprintf("TilingKind(%d)", uint8(k))
	}
}

func (k TilingKind) section() SectionTag {
	return SectionTag(k) // tiling tags share their numbering
}

// DefaultTilingSize sizes a record as the fixed header plus the payload.
func DefaultTilingSize(maxPayload uint64) (uint64, error) {
	return CheckedAdd(TilingRecordHeaderSize, maxPayload)
}

// TilingSizes holds the aligned section size of every tiling kind.
type TilingSizes [numTilingKinds]uint64

func declaredTiling(node *NodeDescriptor, k TilingKind) uint64 {
	switch k {
	case TilingPrimary:
		return node.MaxTilingBytes
	case TilingTail:
		return node.MaxTailTilingBytes
	case TilingAtomic:
		return node.MaxAtomicTilingBytes
	case TilingAtomicTail:
		return node.MaxAtomicTailTilingBytes
	}
	return 0
}

// TilingSectionSize returns the aligned size of one tiling section, or zero
// when nothing is declared for it.
func TilingSectionSize(maxPayload uint64, opts Options) (uint64, error) {
	if maxPayload == 0 {
		return 0, nil
	}
	raw, err := opts.TilingSize(maxPayload)
	if err != nil {
		return 0, err
	}
	if raw < TilingRecordHeaderSize {
		return 0, newError("tiling size", ErrInternal, "record of %d bytes cannot hold its %d byte header", raw, TilingRecordHeaderSize)
	}
	return AlignUp(raw, opts.WordSize)
}

// ComputeTilingSizes sizes all four tiling sections. The atomic kinds stay
// zero unless the node needs the atomic variant.
func ComputeTilingSizes(node *NodeDescriptor, opts Options) (TilingSizes, error) {
	var sizes TilingSizes
	if node == nil {
		return sizes, invalidArg("tiling sizes", "nil node descriptor")
	}
	opts, err := opts.normalized()
	if err != nil {
		return sizes, err
	}
	for k := TilingPrimary; k < numTilingKinds; k++ {
		if (k == TilingAtomic || k == TilingAtomicTail) && !node.NeedsAtomicVariant {
			continue
		}
		size, err := TilingSectionSize(declaredTiling(node, k), opts)
		if err != nil {
			return sizes, fmt.Errorf("tiling sizes: %s: %w", k, err)
		}
		sizes[k] = size
	}
	return sizes, nil
}
