package argbuf

import (
	"errors"
	"math"
	"math/rand/v2"
	"reflect"
	"testing"
)

func mustCompile(t *testing.T, node *NodeDescriptor, groups []GroupSpec) *Layout {
	t.Helper()
	l, err := Compile(node, groups, DefaultOptions())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return l
}

func TestHeaderSize(t *testing.T) {
	t.Parallel()
	if HeaderSize != 352 {
		t.Fatalf("header size: got %d want 352", HeaderSize)
	}
	if HeaderSize%8 != 0 {
		t.Fatalf("header size %d is not word aligned", HeaderSize)
	}
}

func TestCompileFlatOnly(t *testing.T) {
	t.Parallel()

	node := &NodeDescriptor{InputCount: 2, OutputCount: 1, LaneCount: 1}
	l := mustCompile(t, node, nil)

	if l.FlatSlots != 4 {
		t.Fatalf("flat slots: got %d want 4", l.FlatSlots)
	}
	if want := uint64(HeaderSize + 4*8); l.Total != want {
		t.Fatalf("total: got %d want %d", l.Total, want)
	}
	flat := l.Sections[SectionAddressTable]
	if flat.Offset != HeaderSize || flat.Size != 32 {
		t.Fatalf("address table: got %+v", flat)
	}
	for tag, s := range l.Sections {
		if SectionTag(tag) != SectionAddressTable && s.Size != 0 {
			t.Errorf("section %s: expected empty, got %d bytes", SectionTag(tag), s.Size)
		}
	}
}

func TestCompileFoldedOutputGroup(t *testing.T) {
	t.Parallel()

	node := &NodeDescriptor{InputCount: 1, OutputCount: 1, LaneCount: 1, DynamicArityFolded: true}
	groups := []GroupSpec{{
		Kind:      GroupOutput,
		Positions: []uint64{0},
		Members:   []MemberShape{{Dims: []int64{2, 3}}, {Dims: []int64{4}}, {Dims: []int64{5, 6, 7}}},
	}}
	l := mustCompile(t, node, groups)

	// The single logical output keeps its slot as the group's indirection.
	if l.FlatSlots != 3 {
		t.Fatalf("flat slots: got %d want 3", l.FlatSlots)
	}
	if l.Dynamic.FoldedSlots != 0 {
		t.Fatalf("folded slots: got %d want 0", l.Dynamic.FoldedSlots)
	}

	out := l.Dynamic.Outputs
	if len(out.Regions) != 1 {
		t.Fatalf("regions: got %d want 1", len(out.Regions))
	}
	// header word + shape records of 3, 2 and 4 words.
	r := out.Regions[0]
	if r.PointerTableOffset != 10*8 {
		t.Fatalf("pointer table offset: got %d want 80", r.PointerTableOffset)
	}
	if r.Bytes != 80+3*8 {
		t.Fatalf("region bytes: got %d want 104", r.Bytes)
	}
	if got := l.Sections[SectionDynamicOutputPayload].Size; got != 104 {
		t.Fatalf("payload section: got %d want 104", got)
	}
	if got := l.Sections[SectionDynamicOutputDescriptors].Size; got != 3*DescriptorRecordSize {
		t.Fatalf("descriptor section: got %d want %d", got, 3*DescriptorRecordSize)
	}
	if want := uint64(HeaderSize + 24 + 168 + 104); l.Total != want {
		t.Fatalf("total: got %d want %d", l.Total, want)
	}

	wantShapeOffsets := []uint64{8, 32, 48}
	for p, d := range out.Descriptors {
		if d.ShapeOffset != wantShapeOffsets[p] {
			t.Errorf("member %d shape offset: got %d want %d", p, d.ShapeOffset, wantShapeOffsets[p])
		}
	}
}

func TestCompileFoldRemovesExtraPositions(t *testing.T) {
	t.Parallel()

	node := &NodeDescriptor{InputCount: 4, OutputCount: 1, LaneCount: 2, DynamicArityFolded: true}
	groups := []GroupSpec{{
		Kind:      GroupInput,
		Positions: []uint64{1, 2, 3},
		Members:   []MemberShape{{Dims: []int64{1}}, {Dims: []int64{1}}, {Dims: []int64{1}}},
	}}
	l := mustCompile(t, node, groups)

	if l.FlatSlots != 4+1+1-2 {
		t.Fatalf("flat slots: got %d want 4", l.FlatSlots)
	}
	if got := l.Sections[SectionAddressTable].Size; got != 4*2*8 {
		t.Fatalf("address table: got %d want 64", got)
	}
	// Each lane owns a copy of every group region.
	if got, want := l.Sections[SectionDynamicInputPayload].Size, 2*l.Dynamic.Inputs.RegionBytes; got != want {
		t.Fatalf("payload: got %d want %d", got, want)
	}

	unfolded := *node
	unfolded.DynamicArityFolded = false
	lu := mustCompile(t, &unfolded, groups)
	if lu.FlatSlots != 6 {
		t.Fatalf("unfolded flat slots: got %d want 6", lu.FlatSlots)
	}
}

func TestCompileAtomicWithoutAtomicTiling(t *testing.T) {
	t.Parallel()

	node := &NodeDescriptor{
		InputCount:         1,
		OutputCount:        1,
		WorkspaceSlotCount: 2,
		LaneCount:          1,
		NeedsAtomicVariant: true,
	}
	l := mustCompile(t, node, nil)

	if l.Sections[SectionAtomicTiling].Size != 0 || l.Sections[SectionAtomicTailTiling].Size != 0 {
		t.Fatalf("atomic tiling sections should be empty: %+v %+v",
			l.Sections[SectionAtomicTiling], l.Sections[SectionAtomicTailTiling])
	}
	if l.AtomicSlots != 3 {
		t.Fatalf("atomic slots: got %d want 3", l.AtomicSlots)
	}
	if got := l.Sections[SectionAtomicAddressTable].Size; got != 24 {
		t.Fatalf("atomic table: got %d want 24", got)
	}
}

func TestCompileTilingSections(t *testing.T) {
	t.Parallel()

	node := &NodeDescriptor{
		InputCount:               1,
		OutputCount:              1,
		LaneCount:                1,
		MaxTilingBytes:           10,
		MaxTailTilingBytes:       1,
		MaxAtomicTilingBytes:     64,
		MaxAtomicTailTilingBytes: 3,
	}
	l := mustCompile(t, node, nil)
	if got := l.Sections[SectionTiling].Size; got != 40 {
		t.Fatalf("tiling: got %d want 40", got)
	}
	if got := l.Sections[SectionTailTiling].Size; got != 32 {
		t.Fatalf("tail tiling: got %d want 32", got)
	}
	if l.Sections[SectionAtomicTiling].Size != 0 || l.AtomicSlots != 0 {
		t.Fatalf("atomic sections must stay empty without the atomic variant")
	}

	node.NeedsAtomicVariant = true
	l = mustCompile(t, node, nil)
	if got := l.Sections[SectionAtomicTiling].Size; got != 88 {
		t.Fatalf("atomic tiling: got %d want 88", got)
	}
	if l.AtomicSlots != 0+1+2 {
		t.Fatalf("atomic slots: got %d want 3", l.AtomicSlots)
	}

	opts := DefaultOptions()
	opts.WordSize = 4
	l4, err := Compile(node, nil, opts)
	if err != nil {
		t.Fatalf("compile with 4-byte words: %v", err)
	}
	if got := l4.Sections[SectionTiling].Size; got != 36 {
		t.Fatalf("4-byte tiling: got %d want 36", got)
	}
}

func TestCompileCustomTilingSize(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.TilingSize = func(n uint64) (uint64, error) { return CheckedAdd(TilingRecordHeaderSize, 2*n) }
	l, err := Compile(&NodeDescriptor{LaneCount: 1, MaxTilingBytes: 5}, nil, opts)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := l.Sections[SectionTiling].Size; got != 40 {
		t.Fatalf("tiling: got %d want 40", got)
	}

	opts.TilingSize = func(uint64) (uint64, error) { return 4, nil }
	if _, err := Compile(&NodeDescriptor{LaneCount: 1, MaxTilingBytes: 5}, nil, opts); !errors.Is(err, ErrInternal) {
		t.Fatalf("short record: expected ErrInternal, got %v", err)
	}
}

func TestCompileOverflow(t *testing.T) {
	t.Parallel()

	base := NodeDescriptor{InputCount: 1, OutputCount: 1, LaneCount: 1, NeedsAtomicVariant: true}
	tests := []struct {
		name string
		mod  func(n *NodeDescriptor)
	}{
		{"inputs", func(n *NodeDescriptor) { n.InputCount = math.MaxUint64 }},
		{"outputs", func(n *NodeDescriptor) { n.OutputCount = math.MaxUint64 }},
		{"extra", func(n *NodeDescriptor) { n.ExtraAddressCount = math.MaxUint64 }},
		{"workspace", func(n *NodeDescriptor) { n.WorkspaceSlotCount = math.MaxUint64 }},
		{"lanes", func(n *NodeDescriptor) { n.LaneCount = math.MaxUint64 }},
		{"tiling", func(n *NodeDescriptor) { n.MaxTilingBytes = math.MaxUint64 }},
		{"tail tiling", func(n *NodeDescriptor) { n.MaxTailTilingBytes = math.MaxUint64 }},
		{"atomic tiling", func(n *NodeDescriptor) { n.MaxAtomicTilingBytes = math.MaxUint64 }},
		{"atomic tail tiling", func(n *NodeDescriptor) { n.MaxAtomicTailTilingBytes = math.MaxUint64 }},
		{"tiling near max", func(n *NodeDescriptor) { n.MaxTilingBytes = math.MaxUint64 - 30 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			node := base
			tc.mod(&node)
			if _, err := Compile(&node, nil, DefaultOptions()); !errors.Is(err, ErrOverflow) {
				t.Fatalf("expected ErrOverflow, got %v", err)
			}
		})
	}
}

func TestCompileInvalidArguments(t *testing.T) {
	t.Parallel()

	member := []MemberShape{{Dims: []int64{1}}, {Dims: []int64{1}}}
	tests := []struct {
		name   string
		node   *NodeDescriptor
		groups []GroupSpec
		opts   Options
	}{
		{name: "nil node"},
		{name: "no lanes", node: &NodeDescriptor{InputCount: 1}},
		{name: "word size", node: &NodeDescriptor{LaneCount: 1}, opts: Options{WordSize: 2}},
		{name: "position out of range", node: &NodeDescriptor{InputCount: 1, LaneCount: 1},
			groups: []GroupSpec{{Kind: GroupInput, Positions: []uint64{1}, Members: member}}},
		{name: "no members", node: &NodeDescriptor{InputCount: 1, LaneCount: 1},
			groups: []GroupSpec{{Kind: GroupInput, Positions: []uint64{0}}}},
		{name: "no positions", node: &NodeDescriptor{InputCount: 1, LaneCount: 1},
			groups: []GroupSpec{{Kind: GroupInput, Members: member}}},
		{name: "more positions than members", node: &NodeDescriptor{InputCount: 3, LaneCount: 1},
			groups: []GroupSpec{{Kind: GroupInput, Positions: []uint64{0, 1, 2}, Members: member}}},
		{name: "descending positions", node: &NodeDescriptor{InputCount: 3, LaneCount: 1},
			groups: []GroupSpec{{Kind: GroupInput, Positions: []uint64{2, 1}, Members: member}}},
		{name: "shared position", node: &NodeDescriptor{OutputCount: 2, LaneCount: 1},
			groups: []GroupSpec{
				{Kind: GroupOutput, Positions: []uint64{0}, Members: member},
				{Kind: GroupOutput, Positions: []uint64{0}, Members: member},
			}},
		{name: "unknown kind", node: &NodeDescriptor{OutputCount: 2, LaneCount: 1},
			groups: []GroupSpec{{Kind: GroupKind(7), Positions: []uint64{0}, Members: member}}},
		{name: "unfolded members beyond positions", node: &NodeDescriptor{InputCount: 1, OutputCount: 1, LaneCount: 1},
			groups: []GroupSpec{{Kind: GroupOutput, Positions: []uint64{0}, Members: []MemberShape{{}, {}, {}}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Compile(tc.node, tc.groups, tc.opts); !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func randomNode(r *rand.Rand) (*NodeDescriptor, []GroupSpec) {
	node := &NodeDescriptor{
		InputCount:         r.Uint64N(6),
		OutputCount:        r.Uint64N(4),
		ExtraAddressCount:  r.Uint64N(3),
		WorkspaceSlotCount: r.Uint64N(3),
		LaneCount:          1 + r.Uint64N(4),
		NeedsAtomicVariant: r.IntN(2) == 0,
		DynamicArityFolded: r.IntN(2) == 0,
	}
	if r.IntN(2) == 0 {
		node.MaxTilingBytes = r.Uint64N(200)
		node.MaxTailTilingBytes = r.Uint64N(50)
		node.MaxAtomicTilingBytes = r.Uint64N(50)
		node.MaxAtomicTailTilingBytes = r.Uint64N(20)
	}

	var groups []GroupSpec
	for _, kind := range []GroupKind{GroupInput, GroupOutput} {
		count := node.InputCount
		if kind == GroupOutput {
			count = node.OutputCount
		}
		next := uint64(0)
		for next < count && r.IntN(2) == 0 {
			npos := 1 + r.Uint64N(min(3, count-next))
			g := GroupSpec{Kind: kind}
			for i := uint64(0); i < npos; i++ {
				g.Positions = append(g.Positions, next+i)
			}
			next += npos
			members := len(g.Positions)
			if node.DynamicArityFolded {
				members += r.IntN(3)
			}
			for m := 0; m < members; m++ {
				dims := make([]int64, r.IntN(MaxDimNum+3))
				for d := range dims {
					dims[d] = 1 + r.Int64N(16)
				}
				g.Members = append(g.Members, MemberShape{Dims: dims})
			}
			groups = append(groups, g)
			next += r.Uint64N(2)
		}
	}
	return node, groups
}

func TestCompileProperties(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 300; i++ {
		node, groups := randomNode(r)
		l, err := Compile(node, groups, DefaultOptions())
		if err != nil {
			t.Fatalf("case %d: compile %+v: %v", i, node, err)
		}

		again, err := Compile(node, groups, DefaultOptions())
		if err != nil {
			t.Fatalf("case %d: recompile: %v", i, err)
		}
		if again.Sections != l.Sections || again.Total != l.Total {
			t.Fatalf("case %d: layout is not deterministic", i)
		}
		if !reflect.DeepEqual(again.Dynamic.Inputs, l.Dynamic.Inputs) || !reflect.DeepEqual(again.Dynamic.Outputs, l.Dynamic.Outputs) {
			t.Fatalf("case %d: dynamic plan is not deterministic", i)
		}

		if err := l.Sections.Validate(l.Total, 8); err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		sum, err := l.Sections.Sum()
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if sum+HeaderSize != l.Total {
			t.Fatalf("case %d: sections sum to %d + header, total %d", i, sum, l.Total)
		}

		for _, kp := range []KindPlan{l.Dynamic.Inputs, l.Dynamic.Outputs} {
			checkKindPlan(t, i, kp)
		}
	}
}

func checkKindPlan(t *testing.T, c int, kp KindPlan) {
	t.Helper()
	var start uint64
	for _, r := range kp.Regions {
		if r.Start != start {
			t.Fatalf("case %d: group %d starts at %d, want %d", c, r.Group, r.Start, start)
		}
		start += r.Bytes

		firsts := 0
		for p := uint64(0); p < r.MemberCount; p++ {
			d := kp.Descriptors[r.First+int(p)]
			if d.Group != r.Group || d.Position != p {
				t.Fatalf("case %d: group %d member %d has descriptor %+v", c, r.Group, p, d)
			}
			if d.FirstInGroup {
				firsts++
			}
			if d.ShapeOffset+d.ShapeWords*8 > r.PointerTableOffset {
				t.Fatalf("case %d: shape record of member %d overlaps the pointer table", c, p)
			}
		}
		if firsts != 1 {
			t.Fatalf("case %d: group %d has %d first members", c, r.Group, firsts)
		}
	}
	if start != kp.RegionBytes {
		t.Fatalf("case %d: regions cover %d bytes, plan says %d", c, start, kp.RegionBytes)
	}
	if uint64(len(kp.Descriptors))*DescriptorRecordSize != kp.DescriptorTableBytes {
		t.Fatalf("case %d: descriptor table size mismatch", c)
	}
}

func TestShapeRecordWordsClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dims int
		want uint64
	}{
		{0, 1 + MaxDimNum},
		{1, 2},
		{MaxDimNum, 1 + MaxDimNum},
		{MaxDimNum + 1, 1 + MaxDimNum},
		{-1, 1 + MaxDimNum},
	}
	for _, tc := range tests {
		if got := ShapeRecordWords(tc.dims); got != tc.want {
			t.Errorf("ShapeRecordWords(%d): expected %d, got %d", tc.dims, tc.want, got)
		}
	}
}

func TestGroupKindText(t *testing.T) {
	t.Parallel()

	var k GroupKind
	if err := k.UnmarshalText([]byte("output")); err != nil || k != GroupOutput {
		t.Fatalf("unmarshal output: got %v, %v", k, err)
	}
	if err := k.UnmarshalText([]byte("in")); err != nil || k != GroupInput {
		t.Fatalf("unmarshal in: got %v, %v", k, err)
	}
	if err := k.UnmarshalText([]byte("sideways")); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("unmarshal unknown: expected ErrInvalidArgument, got %v", err)
	}
	b, err := GroupOutput.MarshalText()
	if err != nil || string(b) != "output" {
		t.Fatalf("marshal: got %q, %v", b, err)
	}
}
