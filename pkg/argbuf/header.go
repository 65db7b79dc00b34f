package argbuf

import (
	"encoding/binary"
	"fmt"
)

const (
	// MagicArgs opens every launch-argument buffer.
	MagicArgs = "KARG"

	CurrentMajor uint16 = 1
	CurrentMinor uint16 = 0

	headerPrefixSize = 16
	headerNodeSize   = 12 * 8
	sectionRecSize   = 24

	// HeaderSize is the fixed header: prefix, node descriptor, word size,
	// total size and the section table.
	HeaderSize = headerPrefixSize + headerNodeSize + NumSections*sectionRecSize
)

const (
	nodeFlagAtomic uint64 = 1 << 0
	nodeFlagFolded uint64 = 1 << 1
)

// Header is the decoded form of the buffer's fixed header.
type Header struct {
	Major    uint16
	Minor    uint16
	Node     NodeDescriptor
	WordSize uint64
	Total    uint64
	Sections SectionTable
}

func encodeHeader(dst []byte, h *Header) bool {
	if len(dst) < HeaderSize {
		return false
	}
	le := binary.LittleEndian
	copy(dst[0:4], MagicArgs)
	le.PutUint16(dst[4:], h.Major)
	le.PutUint16(dst[6:], h.Minor)
	le.PutUint32(dst[8:], HeaderSize)
	le.PutUint32(dst[12:], NumSections)

	var flags uint64
	if h.Node.NeedsAtomicVariant {
		flags |= nodeFlagAtomic
	}
	if h.Node.DynamicArityFolded {
		flags |= nodeFlagFolded
	}
	words := [12]uint64{
		h.Node.InputCount,
		h.Node.OutputCount,
		h.Node.ExtraAddressCount,
		h.Node.WorkspaceSlotCount,
		h.Node.LaneCount,
		flags,
		h.Node.MaxTilingBytes,
		h.Node.MaxTailTilingBytes,
		h.Node.MaxAtomicTilingBytes,
		h.Node.MaxAtomicTailTilingBytes,
		h.WordSize,
		h.Total,
	}
	off := headerPrefixSize
	for _, w := range words {
		le.PutUint64(dst[off:], w)
		off += 8
	}
	for _, s := range h.Sections {
		le.PutUint32(dst[off:], uint32(s.Tag))
		le.PutUint32(dst[off+4:], 0)
		le.PutUint64(dst[off+8:], s.Offset)
		le.PutUint64(dst[off+16:], s.Size)
		off += sectionRecSize
	}
	return true
}

// DecodeHeader parses and validates the header at the start of data. data
// must cover the whole buffer so section bounds can be checked.
func DecodeHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorruptHeader, len(data))
	}
	if string(data[0:4]) != MagicArgs {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptHeader, data[0:4])
	}
	le := binary.LittleEndian
	h := &Header{
		Major: le.Uint16(data[4:]),
		Minor: le.Uint16(data[6:]),
	}
	if h.Major != CurrentMajor {
		return nil, fmt.Errorf("%w: unsupported major version %d", ErrCorruptHeader, h.Major)
	}
	if le.Uint32(data[8:]) != HeaderSize || le.Uint32(data[12:]) != NumSections {
		return nil, fmt.Errorf("%w: unexpected header geometry", ErrCorruptHeader)
	}

	var words [12]uint64
	off := headerPrefixSize
	for i := range words {
		words[i] = le.Uint64(data[off:])
		off += 8
	}
	h.Node = NodeDescriptor{
		InputCount:               words[0],
		OutputCount:              words[1],
		ExtraAddressCount:        words[2],
		WorkspaceSlotCount:       words[3],
		LaneCount:                words[4],
		NeedsAtomicVariant:       words[5]&nodeFlagAtomic != 0,
		DynamicArityFolded:       words[5]&nodeFlagFolded != 0,
		MaxTilingBytes:           words[6],
		MaxTailTilingBytes:       words[7],
		MaxAtomicTilingBytes:     words[8],
		MaxAtomicTailTilingBytes: words[9],
	}
	h.WordSize = words[10]
	h.Total = words[11]
	if h.WordSize != 4 && h.WordSize != 8 {
		return nil, fmt.Errorf("%w: word size %d", ErrCorruptHeader, h.WordSize)
	}
	if h.Total != uint64(len(data)) {
		return nil, fmt.Errorf("%w: total size %d does not match %d bytes", ErrCorruptHeader, h.Total, len(data))
	}

	for i := range h.Sections {
		h.Sections[i] = Section{
			Tag:    SectionTag(le.Uint32(data[off:])),
			Offset: le.Uint64(data[off+8:]),
			Size:   le.Uint64(data[off+16:]),
		}
		off += sectionRecSize
	}
	if err := h.Sections.Validate(h.Total, h.WordSize); err != nil {
		return nil, err
	}
	return h, nil
}
