package argbuf

import "fmt"

// SlotKind tags the content of an address-table slot.
type SlotKind uint8

const (
	// SlotEmpty holds zero.
	SlotEmpty SlotKind = iota
	// SlotDirect holds a device address supplied by the caller.
	SlotDirect
	// SlotGroup holds the address of a dynamic group's region.
	SlotGroup
	// SlotTiling holds the data pointer of a tiling record.
	SlotTiling
)

func (k SlotKind) String() string {
	switch k {
	case SlotEmpty:
		return "empty"
	case SlotDirect:
		return "direct"
	case SlotGroup:
		return "group"
	case SlotTiling:
		return "tiling"
	default:
		return fmt.Sprintf("SlotKind(%d)", uint8(k))
	}
}

// SlotRole says which argument class filled a flat slot.
type SlotRole uint8

const (
	RoleInput SlotRole = iota
	RoleOutput
	RoleExtra
	RoleWorkspace
	RoleTiling
)

func (r SlotRole) String() string {
	switch r {
	case RoleInput:
		return "input"
	case RoleOutput:
		return "output"
	case RoleExtra:
		return "extra"
	case RoleWorkspace:
		return "workspace"
	case RoleTiling:
		return "tiling"
	default:
		return fmt.Sprintf("SlotRole(%d)", uint8(r))
	}
}

// AddressSlot is the typed content of one address-table slot. Only Direct
// slots carry an address; Group and Tiling slots are resolved against the
// buffer's base address at relocation.
type AddressSlot struct {
	Kind      SlotKind
	Role      SlotRole
	Address   uint64
	GroupKind GroupKind
	Group     int
	Tiling    TilingKind
}

type boundMember struct {
	Address uint64
	Dims    []int64
}

type laneState struct {
	slots  []AddressSlot
	atomic []AddressSlot

	role      SlotRole
	lastIndex uint64
	haveIndex bool
	lastGroup int

	extras     uint64
	workspaces uint64
	members    [2]map[int][]boundMember
}

func (b *Buffer) lane(op string, lane uint64) (*laneState, error) {
	if b.state != StateAllocated && b.state != StateBoundPartial {
		return nil, fmt.Errorf("%w: %s in state %s", ErrInvalidState, op, b.state)
	}
	if lane >= uint64(len(b.lanes)) {
		return nil, invalidArg(op, "lane %d out of range (lanes %d)", lane, len(b.lanes))
	}
	return &b.lanes[lane], nil
}

// BindAddress records the device address of one input or output of a lane.
//
// Per lane, inputs are bound in ascending logical order, then outputs. A
// logical index folded into a dynamic group is bound once per group member;
// the first member claims the group's single flat slot.
func (b *Buffer) BindAddress(lane, logicalIndex, addr uint64, shape []int64, isInput bool) error {
	const op = "bind address"
	ls, err := b.lane(op, lane)
	if err != nil {
		return err
	}

	role, kind, count := RoleInput, GroupInput, b.layout.Node.InputCount
	if !isInput {
		role, kind, count = RoleOutput, GroupOutput, b.layout.Node.OutputCount
	}
	if logicalIndex >= count {
		return invalidArg(op, "%s index %d out of range (count %d)", kind, logicalIndex, count)
	}
	if addr > b.layout.opts.maxAddress() {
		return fmt.Errorf("%s: %w: %#x", op, ErrAddressOverflow, addr)
	}

	group, inGroup := -1, false
	if b.layout.Node.DynamicArityFolded {
		group, inGroup = b.layout.Dynamic.GroupOf(kind, logicalIndex)
	}
	if err := ls.checkOrder(op, role, logicalIndex, group, inGroup); err != nil {
		return err
	}

	if inGroup {
		err = b.bindMember(ls, lane, kind, group, logicalIndex, addr, shape)
	} else {
		err = b.appendSlot(ls, lane, AddressSlot{Kind: SlotDirect, Role: role, Address: addr})
	}
	if err != nil {
		return err
	}
	ls.role, ls.lastIndex, ls.haveIndex, ls.lastGroup = role, logicalIndex, true, group
	b.state = StateBoundPartial
	return nil
}

// BindExtra records the next extra address of a lane. Extra addresses follow
// the outputs.
func (b *Buffer) BindExtra(lane, addr uint64) error {
	const op = "bind extra"
	ls, err := b.lane(op, lane)
	if err != nil {
		return err
	}
	if ls.role > RoleExtra {
		return invalidArg(op, "extra address bound after %s arguments", ls.role)
	}
	if ls.extras >= b.layout.Node.ExtraAddressCount {
		return invalidArg(op, "lane %d already has %d extra addresses", lane, ls.extras)
	}
	if err := b.appendSlot(ls, lane, AddressSlot{Kind: SlotDirect, Role: RoleExtra, Address: addr}); err != nil {
		return err
	}
	ls.extras++
	ls.role, ls.haveIndex = RoleExtra, false
	b.state = StateBoundPartial
	return nil
}

// BindWorkspace records the next workspace address of a lane.
func (b *Buffer) BindWorkspace(lane, addr uint64) error {
	const op = "bind workspace"
	ls, err := b.lane(op, lane)
	if err != nil {
		return err
	}
	if ls.workspaces >= b.layout.Node.WorkspaceSlotCount {
		return invalidArg(op, "lane %d already has %d workspace addresses", lane, ls.workspaces)
	}
	if err := b.appendSlot(ls, lane, AddressSlot{Kind: SlotDirect, Role: RoleWorkspace, Address: addr}); err != nil {
		return err
	}
	ls.workspaces++
	ls.role, ls.haveIndex = RoleWorkspace, false
	b.state = StateBoundPartial
	return nil
}

func (ls *laneState) checkOrder(op string, role SlotRole, idx uint64, group int, inGroup bool) error {
	if role < ls.role {
		return invalidArg(op, "%s %d bound after %s arguments", role, idx, ls.role)
	}
	if role != ls.role || !ls.haveIndex {
		return nil
	}
	if idx < ls.lastIndex {
		return invalidArg(op, "index %d bound after %d", idx, ls.lastIndex)
	}
	if idx == ls.lastIndex && !(inGroup && group == ls.lastGroup) {
		return invalidArg(op, "index %d bound twice", idx)
	}
	return nil
}

// appendSlot places s in the lane's next flat slot. Direct addresses are
// written immediately; other kinds are written at relocation.
func (b *Buffer) appendSlot(ls *laneState, lane uint64, s AddressSlot) error {
	callerSlots := b.layout.FlatSlots - 1
	if uint64(len(ls.slots)) >= callerSlots {
		return invalidArg("bind", "lane %d address table is full (%d slots)", lane, callerSlots)
	}
	if s.Kind == SlotDirect {
		if err := b.putWord(b.flatRef(lane, uint64(len(ls.slots))), s.Address); err != nil {
			return err
		}
	}
	ls.slots = append(ls.slots, s)
	return nil
}

func (b *Buffer) flatRef(lane, slot uint64) Ref {
	return Ref{SectionAddressTable, (lane*b.layout.FlatSlots + slot) * b.layout.opts.WordSize}
}

func (b *Buffer) atomicRef(lane, slot uint64) Ref {
	return Ref{SectionAtomicAddressTable, (lane*b.layout.AtomicSlots + slot) * b.layout.opts.WordSize}
}

// groupRef addresses byte off of group g's region in lane.
func (b *Buffer) groupRef(lane uint64, kind GroupKind, region GroupRegion, off uint64) Ref {
	laneBase := lane * b.layout.Dynamic.Kind(kind).RegionBytes
	return Ref{payloadSection(kind), laneBase + region.Start + off}
}

func (b *Buffer) bindMember(ls *laneState, lane uint64, kind GroupKind, g int, idx, addr uint64, shape []int64) error {
	const op = "bind member"
	plan := b.layout.Dynamic
	region, ok := plan.Region(kind, g)
	if !ok {
		return newError(op, ErrInternal, "%s group %d has no region", kind, g)
	}
	if ls.members[kind] == nil {
		ls.members[kind] = make(map[int][]boundMember)
	}
	bound := ls.members[kind][g]
	p := uint64(len(bound))
	if p >= region.MemberCount {
		return invalidArg(op, "%s group %d already has its %d members", kind, g, region.MemberCount)
	}
	desc := plan.Kind(kind).Descriptors[region.First+int(p)]
	if desc.LogicalIndex != idx {
		return invalidArg(op, "member %d of %s group %d belongs to index %d, got %d", p, kind, g, desc.LogicalIndex, idx)
	}

	dims, err := recordDims(op, shape, desc.ShapeWords-1)
	if err != nil {
		return err
	}

	if p == 0 {
		if err := b.appendSlot(ls, lane, AddressSlot{Kind: SlotGroup, Role: roleOf(kind), GroupKind: kind, Group: g}); err != nil {
			return err
		}
		if err := b.putWord(b.groupRef(lane, kind, region, 0), region.PointerTableOffset); err != nil {
			return err
		}
	}

	word := b.layout.opts.WordSize
	if err := b.putWord(b.groupRef(lane, kind, region, desc.ShapeOffset), uint64(len(dims))); err != nil {
		return err
	}
	for i := uint64(0); i < desc.ShapeWords-1; i++ {
		var v uint64
		if i < uint64(len(dims)) {
			v = uint64(dims[i])
		}
		if err := b.putWord(b.groupRef(lane, kind, region, desc.ShapeOffset+(i+1)*word), v); err != nil {
			return err
		}
	}
	if err := b.putWord(b.groupRef(lane, kind, region, region.PointerTableOffset+p*word), addr); err != nil {
		return err
	}

	ls.members[kind][g] = append(bound, boundMember{Address: addr, Dims: append([]int64(nil), dims...)})
	return nil
}

func roleOf(kind GroupKind) SlotRole {
	if kind == GroupOutput {
		return RoleOutput
	}
	return RoleInput
}

// recordDims fits shape into a record of capacity dims. Shapes longer than
// MaxDimNum are truncated when the record was clamped to MaxDimNum.
func recordDims(op string, shape []int64, capacity uint64) ([]int64, error) {
	if uint64(len(shape)) > capacity {
		if capacity != MaxDimNum {
			return nil, invalidArg(op, "shape has %d dims but its record holds %d", len(shape), capacity)
		}
		shape = shape[:MaxDimNum]
	}
	for i, d := range shape {
		if d < 0 {
			return nil, invalidArg(op, "dim %d is negative (%d)", i, d)
		}
	}
	return shape, nil
}

// Seal checks that every lane is fully bound, fills the tiling slot of each
// lane and builds the atomic address table.
func (b *Buffer) Seal() error {
	const op = "seal"
	if b.state != StateAllocated && b.state != StateBoundPartial {
		return fmt.Errorf("%w: %s in state %s", ErrInvalidState, op, b.state)
	}
	l := b.layout
	for lane := range b.lanes {
		ls := &b.lanes[lane]
		if err := b.checkComplete(ls, uint64(lane)); err != nil {
			return err
		}
	}

	for lane := range b.lanes {
		ls := &b.lanes[lane]
		ls.slots = append(ls.slots, AddressSlot{Kind: SlotTiling, Role: RoleTiling, Tiling: TilingPrimary})
		if l.Node.NeedsAtomicVariant {
			ls.atomic = b.atomicSlots(ls)
			for i, s := range ls.atomic {
				if s.Kind != SlotDirect && s.Kind != SlotEmpty {
					continue
				}
				if err := b.putWord(b.atomicRef(uint64(lane), uint64(i)), s.Address); err != nil {
					return err
				}
			}
		}
	}

	b.state = StateBoundComplete
	b.log.Debug("buffer sealed", "lanes", len(b.lanes), "flat_slots", l.FlatSlots)
	return nil
}

func (b *Buffer) checkComplete(ls *laneState, lane uint64) error {
	const op = "seal"
	l := b.layout
	if got, want := uint64(len(ls.slots)), l.FlatSlots-1; got != want {
		return invalidArg(op, "lane %d has %d of %d address slots bound", lane, got, want)
	}
	if ls.extras != l.Node.ExtraAddressCount {
		return invalidArg(op, "lane %d has %d of %d extra addresses", lane, ls.extras, l.Node.ExtraAddressCount)
	}
	if ls.workspaces != l.Node.WorkspaceSlotCount {
		return invalidArg(op, "lane %d has %d of %d workspace addresses", lane, ls.workspaces, l.Node.WorkspaceSlotCount)
	}
	if !l.Node.DynamicArityFolded {
		return nil
	}
	for _, kind := range []GroupKind{GroupInput, GroupOutput} {
		for _, r := range l.Dynamic.Kind(kind).Regions {
			if got := uint64(len(ls.members[kind][r.Group])); got != r.MemberCount {
				return invalidArg(op, "lane %d %s group %d has %d of %d members", lane, kind, r.Group, got, r.MemberCount)
			}
		}
	}
	return nil
}

// atomicSlots lists a lane's cleanup arguments: its output slots padded to
// the output count, its workspace, then the atomic tiling pointers.
func (b *Buffer) atomicSlots(ls *laneState) []AddressSlot {
	l := b.layout
	out := make([]AddressSlot, 0, l.AtomicSlots)
	for _, s := range ls.slots {
		if s.Role == RoleOutput {
			out = append(out, s)
		}
	}
	for uint64(len(out)) < l.Node.OutputCount {
		out = append(out, AddressSlot{Kind: SlotEmpty, Role: RoleOutput})
	}
	for _, s := range ls.slots {
		if s.Role == RoleWorkspace {
			out = append(out, s)
		}
	}
	for _, k := range []TilingKind{TilingAtomic, TilingAtomicTail} {
		if l.Tiling[k] != 0 {
			out = append(out, AddressSlot{Kind: SlotTiling, Role: RoleTiling, Tiling: k})
		}
	}
	return out
}

// Slots returns a copy of the typed flat slots of lane.
func (b *Buffer) Slots(lane uint64) []AddressSlot {
	if lane >= uint64(len(b.lanes)) {
		return nil
	}
	return append([]AddressSlot(nil), b.lanes[lane].slots...)
}

// AtomicSlots returns a copy of the typed atomic slots of lane.
func (b *Buffer) AtomicSlots(lane uint64) []AddressSlot {
	if lane >= uint64(len(b.lanes)) {
		return nil
	}
	return append([]AddressSlot(nil), b.lanes[lane].atomic...)
}

// Base returns the address the buffer was relocated to.
func (b *Buffer) Base() uint64 { return b.base }

// Relocate fixes the address the buffer's bytes will live at. It may be
// entered once; repeating it with the same base is a no-op.
func (b *Buffer) Relocate(base uint64) error {
	const op = "relocate"
	switch b.state {
	case StateBoundComplete:
	case StateRelocated:
		if base == b.base {
			return nil
		}
		return fmt.Errorf("%w: already relocated to %#x", ErrInvalidState, b.base)
	default:
		return fmt.Errorf("%w: %s in state %s", ErrInvalidState, op, b.state)
	}
	last, err := CheckedAdd(base, b.layout.Total-1)
	if err != nil || last > b.layout.opts.maxAddress() {
		return fmt.Errorf("%s: %w: %d bytes at %#x", op, ErrAddressOverflow, b.layout.Total, base)
	}
	b.base = base
	b.state = StateRelocated
	b.log.Debug("buffer relocated", "base", base)
	return nil
}

// RedirectTilingAddresses rewrites every base-dependent word of the buffer:
// tiling data pointers, tiling slots and group indirection slots. Calling it
// again yields the same bytes.
func (b *Buffer) RedirectTilingAddresses() error {
	const op = "redirect tiling addresses"
	if b.state != StateRelocated {
		return fmt.Errorf("%w: %s in state %s", ErrInvalidState, op, b.state)
	}
	for k := TilingPrimary; k < numTilingKinds; k++ {
		s := b.layout.Sections[k.section()]
		if s.Size == 0 {
			continue
		}
		ptr, err := b.resolve(b.base, Ref{s.Tag, TilingRecordHeaderSize})
		if err != nil {
			return fmt.Errorf("%s: %s: %w", op, k, err)
		}
		if err := b.putUint64(Ref{s.Tag, tilingDataPtrOffset}, ptr); err != nil {
			return err
		}
	}

	for lane := range b.lanes {
		ls := &b.lanes[lane]
		for i, s := range ls.slots {
			if err := b.redirectSlot(b.flatRef(uint64(lane), uint64(i)), uint64(lane), s); err != nil {
				return fmt.Errorf("%s: lane %d slot %d: %w", op, lane, i, err)
			}
		}
		for i, s := range ls.atomic {
			if err := b.redirectSlot(b.atomicRef(uint64(lane), uint64(i)), uint64(lane), s); err != nil {
				return fmt.Errorf("%s: lane %d atomic slot %d: %w", op, lane, i, err)
			}
		}
	}
	return nil
}

func (b *Buffer) redirectSlot(at Ref, lane uint64, s AddressSlot) error {
	var target uint64
	switch s.Kind {
	case SlotTiling:
		sec := b.layout.Sections[s.Tiling.section()]
		if sec.Size == 0 {
			break
		}
		ptr, err := b.resolve(b.base, Ref{sec.Tag, TilingRecordHeaderSize})
		if err != nil {
			return err
		}
		target = ptr
	case SlotGroup:
		region, ok := b.layout.Dynamic.Region(s.GroupKind, s.Group)
		if !ok {
			return newError("redirect", ErrInternal, "%s group %d has no region", s.GroupKind, s.Group)
		}
		ptr, err := b.resolve(b.base, b.groupRef(lane, s.GroupKind, region, 0))
		if err != nil {
			return err
		}
		target = ptr
	default:
		return nil
	}
	return b.putWord(at, target)
}
