package argbuf

import (
	"fmt"

	"github.com/hicann/launchargs/internal/logger"
)

// NodeDescriptor summarises one compute operation instance. It is created
// when the operation is scheduled and never mutated afterwards.
type NodeDescriptor struct {
	InputCount         uint64 `json:"input_count" yaml:"input_count"`
	OutputCount        uint64 `json:"output_count" yaml:"output_count"`
	ExtraAddressCount  uint64 `json:"extra_address_count" yaml:"extra_address_count"`
	WorkspaceSlotCount uint64 `json:"workspace_slot_count" yaml:"workspace_slot_count"`
	LaneCount          uint64 `json:"lane_count" yaml:"lane_count"`

	NeedsAtomicVariant bool `json:"needs_atomic_variant" yaml:"needs_atomic_variant"`
	DynamicArityFolded bool `json:"dynamic_arity_folded" yaml:"dynamic_arity_folded"`

	MaxTilingBytes           uint64 `json:"max_tiling_bytes" yaml:"max_tiling_bytes"`
	MaxTailTilingBytes       uint64 `json:"max_tail_tiling_bytes" yaml:"max_tail_tiling_bytes"`
	MaxAtomicTilingBytes     uint64 `json:"max_atomic_tiling_bytes" yaml:"max_atomic_tiling_bytes"`
	MaxAtomicTailTilingBytes uint64 `json:"max_atomic_tail_tiling_bytes" yaml:"max_atomic_tail_tiling_bytes"`
}

// GroupKind says whether a dynamic group folds inputs or outputs.
type GroupKind uint8

const (
	GroupInput GroupKind = iota
	GroupOutput
)

func (k GroupKind) String() string {
	switch k {
	case GroupInput:
		return "input"
	case GroupOutput:
		return "output"
	default:
		return fmt.Sprintf("GroupKind(%d)", uint8(k))
	}
}

func (k GroupKind) MarshalText() ([]byte, error) {
	if k != GroupInput && k != GroupOutput {
		return nil, invalidArg("group kind", "unknown kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *GroupKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "input", "in":
		*k = GroupInput
	case "output", "out":
		*k = GroupOutput
	default:
		return invalidArg("group kind", "unknown kind %q", text)
	}
	return nil
}

// MemberShape is the shape of one run-time member of a dynamic group.
type MemberShape struct {
	Dims []int64 `json:"dims" yaml:"dims"`
}

// GroupSpec declares one dynamic input or output group.
//
// Positions are the logical indices folded into the group, strictly
// ascending. Members lists every physical tensor the group fans out to;
// member p belongs to Positions[min(p, len(Positions)-1)].
type GroupSpec struct {
	Kind      GroupKind     `json:"kind" yaml:"kind"`
	Positions []uint64      `json:"positions" yaml:"positions"`
	Members   []MemberShape `json:"members" yaml:"members"`
}

// MemberCount returns the number of run-time members of the group.
func (g GroupSpec) MemberCount() uint64 {
	return uint64(len(g.Members))
}

func (g GroupSpec) logicalIndex(position int) uint64 {
	if position < len(g.Positions) {
		return g.Positions[position]
	}
	return g.Positions[len(g.Positions)-1]
}

// TilingSizeFunc returns the serialized size of a tiling record able to hold
// maxPayload bytes of tiling data.
type TilingSizeFunc func(maxPayload uint64) (uint64, error)

// Options carries every tunable of the layout; nothing is read from the
// environment.
type Options struct {
	// WordSize is the device address width in bytes: 4 or 8.
	WordSize uint64
	// TilingSize sizes a tiling record. Nil selects DefaultTilingSize.
	TilingSize TilingSizeFunc
	// Logger receives debug events. Nil discards them.
	Logger logger.Logger
}

// DefaultOptions returns 8-byte words, the default tiling record and no logging.
func DefaultOptions() Options {
	return Options{WordSize: 8}
}

func (o Options) normalized() (Options, error) {
	if o.WordSize == 0 {
		o.WordSize = 8
	}
	if o.WordSize != 4 && o.WordSize != 8 {
		return o, invalidArg("options", "word size %d is not 4 or 8", o.WordSize)
	}
	if o.TilingSize == nil {
		o.TilingSize = DefaultTilingSize
	}
	if o.Logger == nil {
		o.Logger = logger.Discard()
	}
	return o, nil
}

func (o Options) maxAddress() uint64 {
	if o.WordSize == 4 {
		return 1<<32 - 1
	}
	return 1<<64 - 1
}

func validateNode(op string, node *NodeDescriptor) error {
	if node == nil {
		return invalidArg(op, "nil node descriptor")
	}
	if node.LaneCount == 0 {
		return invalidArg(op, "lane count must be at least 1")
	}
	return nil
}
