package argbuf

import "fmt"

const (
	// MaxDimNum is the largest dim count a shape record describes.
	MaxDimNum = 8

	descriptorRecordWords = 7
	// DescriptorRecordSize is the serialized size of one GroupDescriptor.
	DescriptorRecordSize = descriptorRecordWords * 8
)

// GroupDescriptor is the planned placement of one member of a dynamic group.
// Offsets are relative to the group's region inside its kind's payload
// section, except RegionStart which is relative to the payload section.
type GroupDescriptor struct {
	Group              int
	Kind               GroupKind
	FirstInGroup       bool
	LogicalIndex       uint64
	Position           uint64
	ShapeOffset        uint64
	ShapeWords         uint64
	PointerTableOffset uint64
	MemberCount        uint64
	RegionBytes        uint64
	RegionStart        uint64
}

// GroupRegion is the per-group summary shared by all of its members.
type GroupRegion struct {
	Group              int
	Kind               GroupKind
	Start              uint64
	Bytes              uint64
	PointerTableOffset uint64
	MemberCount        uint64
	// First is the index of the group's first member in KindPlan.Descriptors.
	First int
}

// KindPlan is the planned dynamic region for inputs or for outputs.
type KindPlan struct {
	Descriptors []GroupDescriptor
	Regions     []GroupRegion
	// RegionBytes is the payload size of one lane.
	RegionBytes uint64
	// DescriptorTableBytes is len(Descriptors) * DescriptorRecordSize.
	DescriptorTableBytes uint64
}

// DynamicPlan is the result of planning every dynamic group of a node.
type DynamicPlan struct {
	Inputs  KindPlan
	Outputs KindPlan
	// FoldedSlots counts the flat slots removed when arity is folded: one
	// per logical position beyond the first in each group.
	FoldedSlots uint64

	groupOf [2]map[uint64]int
}

// Kind returns the plan for the given group kind.
func (p *DynamicPlan) Kind(k GroupKind) *KindPlan {
	if k == GroupOutput {
		return &p.Outputs
	}
	return &p.Inputs
}

// GroupOf returns the group that folds the logical index, if any.
func (p *DynamicPlan) GroupOf(kind GroupKind, logicalIndex uint64) (int, bool) {
	if kind > GroupOutput {
		return 0, false
	}
	m := p.groupOf[kind]
	if m == nil {
		return 0, false
	}
	g, ok := m[logicalIndex]
	return g, ok
}

// Region returns the region of group g.
func (p *DynamicPlan) Region(kind GroupKind, g int) (GroupRegion, bool) {
	for _, r := range p.Kind(kind).Regions {
		if r.Group == g {
			return r, true
		}
	}
	return GroupRegion{}, false
}

// ShapeRecordWords returns the words reserved for a member's shape record:
// one dim-count word plus the dims. A zero or out-of-range dim count is
// clamped to MaxDimNum.
func ShapeRecordWords(dimCount int) uint64 {
	if dimCount <= 0 || dimCount > MaxDimNum {
		dimCount = MaxDimNum
	}
	return 1 + uint64(dimCount)
}

// PlanGroups computes the placement of every dynamic group member. Groups are
// identified by their index in groups.
func PlanGroups(node *NodeDescriptor, groups []GroupSpec, wordSize uint64) (*DynamicPlan, error) {
	const op = "plan groups"
	if node == nil {
		return nil, invalidArg(op, "nil node descriptor")
	}
	if wordSize != 4 && wordSize != 8 {
		return nil, invalidArg(op, "word size %d is not 4 or 8", wordSize)
	}

	plan := &DynamicPlan{}
	plan.groupOf[GroupInput] = make(map[uint64]int)
	plan.groupOf[GroupOutput] = make(map[uint64]int)

	for g := range groups {
		spec := &groups[g]
		if err := validateGroup(node, spec, g, plan); err != nil {
			return nil, err
		}
		for _, pos := range spec.Positions {
			plan.groupOf[spec.Kind][pos] = g
		}

		kp := plan.Kind(spec.Kind)
		region, descs, err := planGroup(spec, g, kp.RegionBytes, wordSize)
		if err != nil {
			return nil, fmt.Errorf("%s: group %d: %w", op, g, err)
		}
		region.First = len(kp.Descriptors)
		kp.Descriptors = append(kp.Descriptors, descs...)
		kp.Regions = append(kp.Regions, region)
		if kp.RegionBytes, err = CheckedAdd(kp.RegionBytes, region.Bytes); err != nil {
			return nil, fmt.Errorf("%s: group %d: %w", op, g, err)
		}

		folded := uint64(len(spec.Positions) - 1)
		if plan.FoldedSlots, err = CheckedAdd(plan.FoldedSlots, folded); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	for _, kp := range []*KindPlan{&plan.Inputs, &plan.Outputs} {
		var err error
		kp.DescriptorTableBytes, err = CheckedMul(uint64(len(kp.Descriptors)), DescriptorRecordSize)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return plan, nil
}

func validateGroup(node *NodeDescriptor, spec *GroupSpec, g int, plan *DynamicPlan) error {
	const op = "plan groups"
	var limit uint64
	switch spec.Kind {
	case GroupInput:
		limit = node.InputCount
	case GroupOutput:
		limit = node.OutputCount
	default:
		return invalidArg(op, "group %d: unknown kind %d", g, uint8(spec.Kind))
	}
	if len(spec.Positions) == 0 {
		return invalidArg(op, "group %d: no logical positions", g)
	}
	if len(spec.Members) == 0 {
		return invalidArg(op, "group %d: no members", g)
	}
	if len(spec.Positions) > len(spec.Members) {
		return invalidArg(op, "group %d: %d positions but only %d members", g, len(spec.Positions), len(spec.Members))
	}
	for i, pos := range spec.Positions {
		if pos >= limit {
			return invalidArg(op, "group %d: %s index %d out of range (count %d)", g, spec.Kind, pos, limit)
		}
		if i > 0 && pos <= spec.Positions[i-1] {
			return invalidArg(op, "group %d: positions not strictly ascending", g)
		}
		if other, ok := plan.groupOf[spec.Kind][pos]; ok {
			return invalidArg(op, "group %d: %s index %d already folded into group %d", g, spec.Kind, pos, other)
		}
	}
	// Without folding every member takes its own flat slot, so each member
	// needs its own logical index.
	if !node.DynamicArityFolded && len(spec.Members) != len(spec.Positions) {
		return invalidArg(op, "group %d: %d members over %d positions requires folded arity", g, len(spec.Members), len(spec.Positions))
	}
	return nil
}

func planGroup(spec *GroupSpec, g int, start, wordSize uint64) (GroupRegion, []GroupDescriptor, error) {
	members := spec.MemberCount()
	descs := make([]GroupDescriptor, len(spec.Members))

	// Word 0 of the region is the group header.
	shapeWords := uint64(1)
	for p, m := range spec.Members {
		words := ShapeRecordWords(len(m.Dims))
		offset, err := CheckedMul(shapeWords, wordSize)
		if err != nil {
			return GroupRegion{}, nil, err
		}
		descs[p] = GroupDescriptor{
			Group:        g,
			Kind:         spec.Kind,
			FirstInGroup: p == 0,
			LogicalIndex: spec.logicalIndex(p),
			Position:     uint64(p),
			ShapeOffset:  offset,
			ShapeWords:   words,
			MemberCount:  members,
			RegionStart:  start,
		}
		if shapeWords, err = CheckedAdd(shapeWords, words); err != nil {
			return GroupRegion{}, nil, err
		}
	}

	ptrOffset, err := CheckedMul(shapeWords, wordSize)
	if err != nil {
		return GroupRegion{}, nil, err
	}
	table, err := CheckedMul(members, wordSize)
	if err != nil {
		return GroupRegion{}, nil, err
	}
	total, err := CheckedAdd(ptrOffset, table)
	if err != nil {
		return GroupRegion{}, nil, err
	}
	for i := range descs {
		descs[i].PointerTableOffset = ptrOffset
		descs[i].RegionBytes = total
	}

	return GroupRegion{
		Group:              g,
		Kind:               spec.Kind,
		Start:              start,
		Bytes:              total,
		PointerTableOffset: ptrOffset,
		MemberCount:        members,
	}, descs, nil
}
