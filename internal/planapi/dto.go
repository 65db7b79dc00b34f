package planapi

import (
	"github.com/hicann/launchargs/pkg/argbuf"
)

// CreateLayoutRequest is the body of POST /v1/layouts.
type CreateLayoutRequest struct {
	Name     string                 `json:"name,omitempty"`
	WordSize uint64                 `json:"word_size,omitempty"`
	Node     *argbuf.NodeDescriptor `json:"node"`
	Groups   []argbuf.GroupSpec     `json:"groups,omitempty"`
}

// SectionView is one row of a layout's section table.
type SectionView struct {
	Name   string `json:"name"`
	Offset uint64 `json:"offset"`
	Size   uint64 `json:"size"`
}

// DescriptorView is one planned dynamic-group member.
type DescriptorView struct {
	Kind               string `json:"kind"`
	Group              int    `json:"group"`
	Position           uint64 `json:"position"`
	LogicalIndex       uint64 `json:"logical_index"`
	First              bool   `json:"first,omitempty"`
	ShapeOffset        uint64 `json:"shape_offset"`
	PointerTableOffset uint64 `json:"pointer_table_offset"`
	RegionStart        uint64 `json:"region_start"`
	RegionBytes        uint64 `json:"region_bytes"`
}

// LayoutView is the JSON form of a compiled layout. The CLI prints the same
// shape for `plan --format json`.
type LayoutView struct {
	ID          string           `json:"id,omitempty"`
	Object      string           `json:"object"`
	CreatedAt   int64            `json:"created_at,omitempty"`
	Name        string           `json:"name,omitempty"`
	WordSize    uint64           `json:"word_size"`
	Total       uint64           `json:"total"`
	FlatSlots   uint64           `json:"flat_slots"`
	AtomicSlots uint64           `json:"atomic_slots"`
	Sections    []SectionView    `json:"sections"`
	Descriptors []DescriptorView `json:"descriptors,omitempty"`
}

// DeleteLayoutResp is the body of DELETE /v1/layouts/:id.
type DeleteLayoutResp struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// ListLayoutsResp is the body of GET /v1/layouts.
type ListLayoutsResp struct {
	Object string       `json:"object"`
	Data   []LayoutView `json:"data"`
}

// ResponseError is the error payload of every failed request.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewLayoutView summarizes l.
func NewLayoutView(name string, l *argbuf.Layout) LayoutView {
	v := LayoutView{
		Object:      "layout",
		Name:        name,
		WordSize:    l.WordSize(),
		Total:       l.Total,
		FlatSlots:   l.FlatSlots,
		AtomicSlots: l.AtomicSlots,
		Sections:    make([]SectionView, 0, argbuf.NumSections),
	}
	for _, s := range l.Sections {
		v.Sections = append(v.Sections, SectionView{Name: s.Tag.String(), Offset: s.Offset, Size: s.Size})
	}
	for _, kind := range []argbuf.GroupKind{argbuf.GroupInput, argbuf.GroupOutput} {
		for _, d := range l.Dynamic.Kind(kind).Descriptors {
			v.Descriptors = append(v.Descriptors, DescriptorView{
				Kind:               kind.String(),
				Group:              d.Group,
				Position:           d.Position,
				LogicalIndex:       d.LogicalIndex,
				First:              d.FirstInGroup,
				ShapeOffset:        d.ShapeOffset,
				PointerTableOffset: d.PointerTableOffset,
				RegionStart:        d.RegionStart,
				RegionBytes:        d.RegionBytes,
			})
		}
	}
	return v
}
