package argbuf

import "fmt"

// Layout is the compiled byte layout of one operation instance's buffer.
// It is deterministic for a given node, group list and options.
type Layout struct {
	Node     NodeDescriptor
	Groups   []GroupSpec
	Sections SectionTable
	Total    uint64
	Tiling   TilingSizes
	Dynamic  *DynamicPlan

	// FlatSlots is the number of address-table slots of one lane.
	FlatSlots uint64
	// AtomicSlots is the number of atomic address-table slots of one lane.
	AtomicSlots uint64

	opts Options
}

// WordSize returns the address width the layout was compiled for.
func (l *Layout) WordSize() uint64 { return l.opts.WordSize }

// Compile computes the section table and total size of the launch-argument
// buffer for node and its dynamic groups.
func Compile(node *NodeDescriptor, groups []GroupSpec, opts Options) (*Layout, error) {
	const op = "compile layout"
	if err := validateNode(op, node); err != nil {
		return nil, err
	}
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	word := opts.WordSize

	l := &Layout{
		Node:   *node,
		Groups: cloneGroups(groups),
		opts:   opts,
	}

	if l.Tiling, err = ComputeTilingSizes(node, opts); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if l.Dynamic, err = PlanGroups(node, l.Groups, word); err != nil {
		return nil, err
	}

	if l.FlatSlots, err = flatSlotCount(node, l.Dynamic); err != nil {
		return nil, fmt.Errorf("%s: address table: %w", op, err)
	}
	flatBytes, err := mulChecked(l.FlatSlots, node.LaneCount, word)
	if err != nil {
		return nil, fmt.Errorf("%s: address table: %w", op, err)
	}

	var atomicBytes uint64
	if node.NeedsAtomicVariant {
		if l.AtomicSlots, err = atomicSlotCount(node, l.Tiling); err != nil {
			return nil, fmt.Errorf("%s: atomic address table: %w", op, err)
		}
		if atomicBytes, err = mulChecked(l.AtomicSlots, node.LaneCount, word); err != nil {
			return nil, fmt.Errorf("%s: atomic address table: %w", op, err)
		}
	}

	inPayload, err := CheckedMul(l.Dynamic.Inputs.RegionBytes, node.LaneCount)
	if err != nil {
		return nil, fmt.Errorf("%s: dynamic input payload: %w", op, err)
	}
	outPayload, err := CheckedMul(l.Dynamic.Outputs.RegionBytes, node.LaneCount)
	if err != nil {
		return nil, fmt.Errorf("%s: dynamic output payload: %w", op, err)
	}

	sizes := [NumSections]uint64{
		SectionTiling:                   l.Tiling[TilingPrimary],
		SectionTailTiling:               l.Tiling[TilingTail],
		SectionAtomicTiling:             l.Tiling[TilingAtomic],
		SectionAtomicTailTiling:         l.Tiling[TilingAtomicTail],
		SectionAddressTable:             flatBytes,
		SectionAtomicAddressTable:       atomicBytes,
		SectionDynamicInputDescriptors:  l.Dynamic.Inputs.DescriptorTableBytes,
		SectionDynamicInputPayload:      inPayload,
		SectionDynamicOutputDescriptors: l.Dynamic.Outputs.DescriptorTableBytes,
		SectionDynamicOutputPayload:     outPayload,
	}

	offset := uint64(HeaderSize)
	for tag, size := range sizes {
		if offset, err = AlignUp(offset, word); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", op, SectionTag(tag), err)
		}
		l.Sections[tag] = Section{Tag: SectionTag(tag), Offset: offset, Size: size}
		if offset, err = CheckedAdd(offset, size); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", op, SectionTag(tag), err)
		}
	}

	sum, err := l.Sections.Sum()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if l.Total, err = CheckedAdd(sum, HeaderSize); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// Every section size is a word multiple, so no padding was inserted.
	if l.Total != offset {
		return nil, newError(op, ErrInternal, "sections end at %d but sizes sum to %d", offset, l.Total)
	}

	opts.Logger.Debug("layout compiled",
		"total", l.Total,
		"flat_slots", l.FlatSlots,
		"atomic_slots", l.AtomicSlots,
		"lanes", node.LaneCount,
		"dynamic_input_members", len(l.Dynamic.Inputs.Descriptors),
		"dynamic_output_members", len(l.Dynamic.Outputs.Descriptors),
	)
	return l, nil
}

// flatSlotCount returns the per-lane slots: every input, output, extra
// address and workspace, plus the tiling pointer. Folded groups keep a
// single slot for all of their logical positions.
func flatSlotCount(node *NodeDescriptor, plan *DynamicPlan) (uint64, error) {
	slots, err := sumChecked(node.InputCount, node.OutputCount, node.ExtraAddressCount, node.WorkspaceSlotCount, 1)
	if err != nil {
		return 0, err
	}
	if !node.DynamicArityFolded {
		return slots, nil
	}
	return CheckedSub(slots, plan.FoldedSlots)
}

func atomicSlotCount(node *NodeDescriptor, tiling TilingSizes) (uint64, error) {
	slots, err := CheckedAdd(node.WorkspaceSlotCount, node.OutputCount)
	if err != nil {
		return 0, err
	}
	for _, k := range []TilingKind{TilingAtomic, TilingAtomicTail} {
		if tiling[k] == 0 {
			continue
		}
		if slots, err = CheckedAdd(slots, 1); err != nil {
			return 0, err
		}
	}
	return slots, nil
}

func cloneGroups(groups []GroupSpec) []GroupSpec {
	if len(groups) == 0 {
		return nil
	}
	out := make([]GroupSpec, len(groups))
	for i, g := range groups {
		out[i] = GroupSpec{
			Kind:      g.Kind,
			Positions: append([]uint64(nil), g.Positions...),
			Members:   make([]MemberShape, len(g.Members)),
		}
		for j, m := range g.Members {
			out[i].Members[j] = MemberShape{Dims: append([]int64(nil), m.Dims...)}
		}
	}
	return out
}
