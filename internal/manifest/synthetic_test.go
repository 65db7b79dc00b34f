package manifest

import (
	"testing"

	"github.com/hicann/launchargs/pkg/argbuf"
)

func TestAddressSourceLanesDisjoint(t *testing.T) {
	t.Parallel()

	src := &AddressSource{Base: 0x10_0000_0000}
	a0 := src.Next(0)
	a1 := src.Next(0)
	b0 := src.Next(1)
	if a0 != 0x10_0000_0000 || a1 != a0+syntheticPage {
		t.Fatalf("lane 0 addresses = %#x, %#x", a0, a1)
	}
	if b0 != 0x10_0000_0000+syntheticLaneStride {
		t.Fatalf("lane 1 first address = %#x", b0)
	}
}

func TestBindSyntheticFolded(t *testing.T) {
	t.Parallel()

	m, err := Parse([]byte(sampleYAML), FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	e, err := m.Find("concat")
	if err != nil {
		t.Fatal(err)
	}
	l, err := e.Compile(m.Options(argbuf.DefaultOptions()))
	if err != nil {
		t.Fatal(err)
	}
	b, err := argbuf.NewBuffer(l, argbuf.HeapAllocator{})
	if err != nil {
		t.Fatal(err)
	}

	if err := BindSynthetic(b, &AddressSource{Base: 0x1000_0000}); err != nil {
		t.Fatalf("BindSynthetic: %v", err)
	}
	if b.State() != argbuf.StateBoundComplete {
		t.Fatalf("state = %v, want %v", b.State(), argbuf.StateBoundComplete)
	}
	for lane := uint64(0); lane < 2; lane++ {
		slots := b.Slots(lane)
		if len(slots) != 3 {
			t.Fatalf("lane %d slots = %d, want 3", lane, len(slots))
		}
		if slots[0].Kind != argbuf.SlotDirect || slots[1].Kind != argbuf.SlotGroup || slots[2].Kind != argbuf.SlotTiling {
			t.Fatalf("lane %d slot kinds = %v %v %v", lane, slots[0].Kind, slots[1].Kind, slots[2].Kind)
		}
		if slots[0].Address != 0x1000_0000+lane*syntheticLaneStride {
			t.Fatalf("lane %d input address = %#x", lane, slots[0].Address)
		}
	}

	if err := b.Relocate(0x2000_0000); err != nil {
		t.Fatal(err)
	}
	if err := b.RedirectTilingAddresses(); err != nil {
		t.Fatal(err)
	}
}

func TestBindSyntheticFullNode(t *testing.T) {
	t.Parallel()

	node := &argbuf.NodeDescriptor{
		InputCount:         3,
		OutputCount:        2,
		ExtraAddressCount:  1,
		WorkspaceSlotCount: 2,
		LaneCount:          3,
		NeedsAtomicVariant: true,
		MaxTilingBytes:     32,
	}
	l, err := argbuf.Compile(node, nil, argbuf.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	b, err := argbuf.NewBuffer(l, argbuf.HeapAllocator{})
	if err != nil {
		t.Fatal(err)
	}
	if err := BindSynthetic(b, &AddressSource{Base: 0x4000}); err != nil {
		t.Fatalf("BindSynthetic: %v", err)
	}
	for lane := uint64(0); lane < node.LaneCount; lane++ {
		if got := uint64(len(b.Slots(lane))); got != l.FlatSlots {
			t.Fatalf("lane %d slots = %d, want %d", lane, got, l.FlatSlots)
		}
		if got := uint64(len(b.AtomicSlots(lane))); got != l.AtomicSlots {
			t.Fatalf("lane %d atomic slots = %d, want %d", lane, got, l.AtomicSlots)
		}
	}
}
