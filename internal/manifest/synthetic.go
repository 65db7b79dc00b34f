package manifest

import (
	"fmt"

	"github.com/hicann/launchargs/pkg/argbuf"
)

// AddressSource hands out deterministic fake device addresses, one page
// apart, with each lane in its own 16 MiB window.
type AddressSource struct {
	Base uint64
	next map[uint64]uint64
}

const (
	syntheticPage       = 0x1000
	syntheticLaneStride = 0x100_0000
)

// Next returns the next address of lane.
func (s *AddressSource) Next(lane uint64) uint64 {
	if s.next == nil {
		s.next = make(map[uint64]uint64)
	}
	n := s.next[lane]
	s.next[lane] = n + 1
	return s.Base + lane*syntheticLaneStride + n*syntheticPage
}

// BindSynthetic binds every argument of every lane of b with addresses from
// src, in the order the binder expects, then seals the buffer. Group members
// are bound with their planned shapes.
func BindSynthetic(b *argbuf.Buffer, src *AddressSource) error {
	l := b.Layout()
	for lane := uint64(0); lane < l.Node.LaneCount; lane++ {
		for _, isInput := range []bool{true, false} {
			kind, count := argbuf.GroupInput, l.Node.InputCount
			if !isInput {
				kind, count = argbuf.GroupOutput, l.Node.OutputCount
			}
			for idx := uint64(0); idx < count; idx++ {
				if err := bindIndex(b, src, lane, kind, idx, isInput); err != nil {
					return fmt.Errorf("lane %d %s %d: %w", lane, kind, idx, err)
				}
			}
		}
		for i := uint64(0); i < l.Node.ExtraAddressCount; i++ {
			if err := b.BindExtra(lane, src.Next(lane)); err != nil {
				return fmt.Errorf("lane %d extra %d: %w", lane, i, err)
			}
		}
		for i := uint64(0); i < l.Node.WorkspaceSlotCount; i++ {
			if err := b.BindWorkspace(lane, src.Next(lane)); err != nil {
				return fmt.Errorf("lane %d workspace %d: %w", lane, i, err)
			}
		}
	}
	return b.Seal()
}

func bindIndex(b *argbuf.Buffer, src *AddressSource, lane uint64, kind argbuf.GroupKind, idx uint64, isInput bool) error {
	l := b.Layout()
	g, ok := l.Dynamic.GroupOf(kind, idx)
	if !l.Node.DynamicArityFolded || !ok {
		return b.BindAddress(lane, idx, src.Next(lane), nil, isInput)
	}
	region, _ := l.Dynamic.Region(kind, g)
	descs := l.Dynamic.Kind(kind).Descriptors[region.First : region.First+int(region.MemberCount)]
	for _, d := range descs {
		if d.LogicalIndex != idx {
			continue
		}
		dims := l.Groups[g].Members[d.Position].Dims
		if err := b.BindAddress(lane, idx, src.Next(lane), dims, isInput); err != nil {
			return err
		}
	}
	return nil
}
