package argbuf

import "fmt"

// SectionTag identifies a section of the launch-argument buffer. The numeric
// order is the layout order.
type SectionTag uint32

const (
	SectionTiling SectionTag = iota
	SectionTailTiling
	SectionAtomicTiling
	SectionAtomicTailTiling
	SectionAddressTable
	SectionAtomicAddressTable
	SectionDynamicInputDescriptors
	SectionDynamicInputPayload
	SectionDynamicOutputDescriptors
	SectionDynamicOutputPayload

	NumSections = 10
)

var sectionNames = [NumSections]string{
	"tiling",
	"tail-tiling",
	"atomic-tiling",
	"atomic-tail-tiling",
	"address-table",
	"atomic-address-table",
	"dyn-input-descriptors",
	"dyn-input-payload",
	"dyn-output-descriptors",
	"dyn-output-payload",
}

func (t SectionTag) String() string {
	if t < NumSections {
		return sectionNames[t]
	}
	return fmt.Sprintf("SectionTag(%d)", uint32(t))
}

func (t SectionTag) valid() bool { return t < NumSections }

// Section is a contiguous byte range of the buffer. Offset is relative to
// the start of the buffer, header included.
type Section struct {
	Tag    SectionTag `json:"tag"`
	Offset uint64     `json:"offset"`
	Size   uint64     `json:"size"`
}

func (s Section) End() uint64 {
	return s.Offset + s.Size
}

// SectionTable holds every section, indexed by tag.
type SectionTable [NumSections]Section

// Get returns the section for tag.
func (t *SectionTable) Get(tag SectionTag) (Section, error) {
	if !tag.valid() {
		return Section{}, invalidArg("section", "unknown section tag %d", uint32(tag))
	}
	return t[tag], nil
}

// Sum returns the sum of all section sizes.
func (t *SectionTable) Sum() (uint64, error) {
	var total uint64
	for _, s := range t {
		var err error
		if total, err = CheckedAdd(total, s.Size); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Validate checks the table against a buffer of total bytes: sections are
// tagged in order, start after the header, are word aligned, fit the buffer
// and do not overlap.
func (t *SectionTable) Validate(total, wordSize uint64) error {
	for i := range t {
		s := t[i]
		if s.Tag != SectionTag(i) {
			return fmt.Errorf("%w: section %d has tag %d", ErrCorruptHeader, i, s.Tag)
		}
		end := s.Offset + s.Size
		if end < s.Offset {
			return fmt.Errorf("%w: section %s offset overflow", ErrCorruptHeader, s.Tag)
		}
		if s.Offset < HeaderSize || end > total {
			return fmt.Errorf("%w: section %s out of bounds", ErrCorruptHeader, s.Tag)
		}
		if wordSize != 0 && s.Offset%wordSize != 0 {
			return fmt.Errorf("%w: section %s offset not %d-byte aligned", ErrCorruptHeader, s.Tag, wordSize)
		}
		for j := 0; j < i; j++ {
			if rangesOverlap(s.Offset, end, t[j].Offset, t[j].End()) {
				return fmt.Errorf("%w: section %s overlaps %s", ErrCorruptHeader, s.Tag, t[j].Tag)
			}
		}
	}
	return nil
}
