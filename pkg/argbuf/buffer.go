package argbuf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"

	"github.com/hicann/launchargs/internal/logger"
)

// State is the lifecycle stage of a Buffer.
type State uint8

const (
	StatePlanned State = iota
	StateAllocated
	StateBoundPartial
	StateBoundComplete
	StateRelocated
	StateRetired
)

func (s State) String() string {
	switch s {
	case StatePlanned:
		return "planned"
	case StateAllocated:
		return "allocated"
	case StateBoundPartial:
		return "bound-partial"
	case StateBoundComplete:
		return "bound-complete"
	case StateRelocated:
		return "relocated"
	case StateRetired:
		return "retired"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Ref addresses a byte inside the buffer by section and offset within that
// section. Refs stay valid when the buffer is copied; absolute addresses are
// derived from them on demand.
type Ref struct {
	Tag    SectionTag
	Offset uint64
}

// Buffer is a launch-argument buffer: one owned byte arena laid out by a
// Layout. It is not safe for concurrent mutation.
type Buffer struct {
	layout *Layout
	alloc  Allocator
	data   []byte
	state  State
	log    logger.Logger

	lanes []laneState
	base  uint64
}

// NewBuffer allocates the buffer for layout, writes its header and group
// descriptors and prepares its tiling records. A nil alloc uses the heap.
func NewBuffer(layout *Layout, alloc Allocator) (*Buffer, error) {
	const op = "new buffer"
	if layout == nil {
		return nil, invalidArg(op, "nil layout")
	}
	if layout.opts.WordSize == 0 || layout.Total < HeaderSize || layout.Dynamic == nil {
		return nil, invalidArg(op, "layout was not produced by Compile")
	}
	if alloc == nil {
		alloc = HeapAllocator{}
	}

	data, err := alloc.Alloc(layout.Total)
	if err != nil {
		if !errors.Is(err, ErrResourceExhausted) {
			err = fmt.Errorf("%w: %v", ErrResourceExhausted, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if uint64(len(data)) != layout.Total {
		_ = alloc.Free(data)
		return nil, newError(op, ErrInternal, "allocator returned %d bytes, want %d", len(data), layout.Total)
	}

	b := &Buffer{
		layout: layout,
		alloc:  alloc,
		data:   data,
		state:  StatePlanned,
		log:    layout.opts.Logger,
		lanes:  make([]laneState, layout.Node.LaneCount),
	}
	if err := b.init(); err != nil {
		_ = alloc.Free(data)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	b.state = StateAllocated
	b.log.Debug("buffer allocated", "bytes", layout.Total, "lanes", layout.Node.LaneCount)
	return b, nil
}

func (b *Buffer) init() error {
	l := b.layout
	hdr := Header{
		Major:    CurrentMajor,
		Minor:    CurrentMinor,
		Node:     l.Node,
		WordSize: l.opts.WordSize,
		Total:    l.Total,
		Sections: l.Sections,
	}
	if !encodeHeader(b.data[:HeaderSize], &hdr) {
		return newError("write header", ErrInternal, "header does not fit %d bytes", len(b.data))
	}

	for _, tag := range []SectionTag{SectionDynamicInputDescriptors, SectionDynamicOutputDescriptors} {
		table, err := b.SectionBytes(tag)
		if err != nil {
			return err
		}
		clear(table)
	}
	for _, kind := range []GroupKind{GroupInput, GroupOutput} {
		if err := b.writeDescriptors(kind); err != nil {
			return err
		}
	}

	for k := TilingPrimary; k < numTilingKinds; k++ {
		s := l.Sections[k.section()]
		if s.Size == 0 {
			continue
		}
		if err := b.putUint64(Ref{s.Tag, tilingCapacityOffset}, s.Size-TilingRecordHeaderSize); err != nil {
			return err
		}
		if err := b.putUint64(Ref{s.Tag, tilingDataSizeOffset}, 0); err != nil {
			return err
		}
		if err := b.putUint64(Ref{s.Tag, tilingDataPtrOffset}, 0); err != nil {
			return err
		}
	}
	return nil
}

func descriptorSection(kind GroupKind) SectionTag {
	if kind == GroupOutput {
		return SectionDynamicOutputDescriptors
	}
	return SectionDynamicInputDescriptors
}

func payloadSection(kind GroupKind) SectionTag {
	if kind == GroupOutput {
		return SectionDynamicOutputPayload
	}
	return SectionDynamicInputPayload
}

func (b *Buffer) writeDescriptors(kind GroupKind) error {
	tag := descriptorSection(kind)
	for i, d := range b.layout.Dynamic.Kind(kind).Descriptors {
		var flags uint64
		if d.FirstInGroup {
			flags = 1
		}
		rec := [descriptorRecordWords]uint64{
			flags,
			d.LogicalIndex,
			d.Position,
			d.PointerTableOffset,
			d.MemberCount,
			d.RegionBytes,
			d.RegionStart,
		}
		base := uint64(i) * DescriptorRecordSize
		for w, v := range rec {
			if err := b.putUint64(Ref{tag, base + uint64(w)*8}, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Layout returns the layout the buffer was built from.
func (b *Buffer) Layout() *Layout { return b.layout }

// State returns the current lifecycle stage.
func (b *Buffer) State() State { return b.state }

// Bytes returns the whole buffer for wholesale transfer.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the total buffer size in bytes.
func (b *Buffer) Len() uint64 { return b.layout.Total }

// SectionBytes returns a bounds-checked view of one section.
func (b *Buffer) SectionBytes(tag SectionTag) ([]byte, error) {
	s, err := b.layout.Sections.Get(tag)
	if err != nil {
		return nil, err
	}
	return b.slice(Ref{Tag: tag}, s.Size)
}

// SectionPointer returns the host address of a section inside the current
// backing memory. It is only meaningful before relocation.
func (b *Buffer) SectionPointer(tag SectionTag) (uintptr, error) {
	if b.state >= StateRelocated || len(b.data) == 0 {
		return 0, fmt.Errorf("%w: section pointer requested in state %s", ErrInvalidState, b.state)
	}
	s, err := b.layout.Sections.Get(tag)
	if err != nil {
		return 0, err
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b.data))) + uintptr(s.Offset), nil
}

// Word reads the word-sized value at ref.
func (b *Buffer) Word(ref Ref) (uint64, error) {
	p, err := b.slice(ref, b.layout.opts.WordSize)
	if err != nil {
		return 0, err
	}
	if len(p) == 4 {
		return uint64(binary.LittleEndian.Uint32(p)), nil
	}
	return binary.LittleEndian.Uint64(p), nil
}

// Uint64 reads the 8-byte value at ref.
func (b *Buffer) Uint64(ref Ref) (uint64, error) {
	p, err := b.slice(ref, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

// WriteTiling copies tiling data into the record of kind and records its size.
func (b *Buffer) WriteTiling(kind TilingKind, payload []byte) error {
	const op = "write tiling"
	if b.state == StatePlanned || b.state >= StateRelocated {
		return fmt.Errorf("%w: %s in state %s", ErrInvalidState, op, b.state)
	}
	if kind >= numTilingKinds {
		return invalidArg(op, "unknown tiling kind %d", uint8(kind))
	}
	s := b.layout.Sections[kind.section()]
	if s.Size == 0 {
		return invalidArg(op, "%s section is empty", kind)
	}
	capacity := s.Size - TilingRecordHeaderSize
	if uint64(len(payload)) > capacity {
		return invalidArg(op, "%d bytes exceeds %s capacity %d", len(payload), kind, capacity)
	}
	dst, err := b.slice(Ref{s.Tag, TilingRecordHeaderSize}, uint64(len(payload)))
	if err != nil {
		return err
	}
	if n := copy(dst, payload); n != len(payload) {
		return newError(op, ErrInternal, "copied %d of %d bytes", n, len(payload))
	}
	return b.putUint64(Ref{s.Tag, tilingDataSizeOffset}, uint64(len(payload)))
}

// Release returns the memory to the allocator. The buffer must not be used
// afterwards.
func (b *Buffer) Release() error {
	if b.state == StateRetired {
		return nil
	}
	err := b.alloc.Free(b.data)
	b.data = nil
	b.lanes = nil
	b.state = StateRetired
	return err
}

func (b *Buffer) slice(ref Ref, n uint64) ([]byte, error) {
	if b.data == nil {
		return nil, fmt.Errorf("%w: buffer released", ErrInvalidState)
	}
	s, err := b.layout.Sections.Get(ref.Tag)
	if err != nil {
		return nil, err
	}
	end, err := CheckedAdd(ref.Offset, n)
	if err != nil || end > s.Size {
		return nil, newError("access", ErrInternal, "%d bytes at %s+%d exceed section size %d", n, ref.Tag, ref.Offset, s.Size)
	}
	start := s.Offset + ref.Offset
	return b.data[start : start+n : start+n], nil
}

// putWord writes a word-sized device address.
func (b *Buffer) putWord(ref Ref, v uint64) error {
	if v > b.layout.opts.maxAddress() {
		return fmt.Errorf("%w: %#x does not fit %d-byte words", ErrAddressOverflow, v, b.layout.opts.WordSize)
	}
	p, err := b.slice(ref, b.layout.opts.WordSize)
	if err != nil {
		return err
	}
	if len(p) == 4 {
		binary.LittleEndian.PutUint32(p, uint32(v))
	} else {
		binary.LittleEndian.PutUint64(p, v)
	}
	return nil
}

func (b *Buffer) putUint64(ref Ref, v uint64) error {
	p, err := b.slice(ref, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(p, v)
	return nil
}

// resolve turns ref into an absolute address relative to base.
func (b *Buffer) resolve(base uint64, ref Ref) (uint64, error) {
	s, err := b.layout.Sections.Get(ref.Tag)
	if err != nil {
		return 0, err
	}
	rel, err := CheckedAdd(s.Offset, ref.Offset)
	if err != nil {
		return 0, err
	}
	abs, err := CheckedAdd(base, rel)
	if err != nil || abs > b.layout.opts.maxAddress() {
		return 0, fmt.Errorf("%w: base %#x + offset %d", ErrAddressOverflow, base, rel)
	}
	return abs, nil
}
