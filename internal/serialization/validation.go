package serialization

import (
	"fmt"
	"slices"

	"github.com/born-ml/sparse/internal/types"
)

// Validation limits.
const (
	MaxHeaderSize = 10 * 1024 * 1024
	MaxDimension  = 1<<32 - 1 // indices are stored as uint32
)

// ValidateSections checks for negative, overlapping and out-of-bounds sections.
// Malformed files must not make a reader slice outside the data section.
func ValidateSections(sections []SectionMeta, dataSize int64) error {
	sorted := slices.Clone(sections)
	slices.SortFunc(sorted, func(a, b SectionMeta) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		default:
			return 0
		}
	})

	for i, s := range sorted {
		if s.Offset < 0 || s.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Section: s.Name,
				Details: fmt.Sprintf("offset=%d, size=%d", s.Offset, s.Size),
			}
		}
		if s.Offset+s.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Section: s.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", s.Offset, s.Size, dataSize),
			}
		}
		if i < len(sorted)-1 {
			next := sorted[i+1]
			if s.Offset+s.Size > next.Offset {
				return &ValidationError{
					Type:     "offset_overlap",
					Section:  s.Name,
					Section2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						s.Offset, s.Offset+s.Size, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}
	return nil
}

// ValidateHeader checks the header against itself and the data section size.
func ValidateHeader(h *Header, dataSize int64) error {
	t, ok := types.ByCode(h.Type)
	if !ok {
		return &ValidationError{Type: "unknown_type", Details: fmt.Sprintf("type %q", h.Type)}
	}
	if h.Rows < 0 || h.Cols < 0 || h.Nvals < 0 || int64(h.Rows) > MaxDimension || int64(h.Cols) > MaxDimension {
		return &ValidationError{
			Type:    "invalid_shape",
			Details: fmt.Sprintf("%d x %d with %d values", h.Rows, h.Cols, h.Nvals),
		}
	}

	want := map[string]int64{
		SectionAp: int64(h.Rows+1) * 4,
		SectionAj: int64(h.Nvals) * 4,
		SectionAx: int64(h.Nvals) * int64(t.Size()),
	}
	if len(h.Sections) != len(want) {
		return &ValidationError{
			Type:    "invalid_sections",
			Details: fmt.Sprintf("got %d sections, expected %d", len(h.Sections), len(want)),
		}
	}
	seen := make(map[string]bool, len(want))
	for _, s := range h.Sections {
		size, ok := want[s.Name]
		if !ok || seen[s.Name] {
			return &ValidationError{Type: "invalid_sections", Section: s.Name, Details: "unknown or repeated section"}
		}
		seen[s.Name] = true
		if s.Size != size {
			return &ValidationError{
				Type:    "invalid_sections",
				Section: s.Name,
				Details: fmt.Sprintf("size %d, expected %d", s.Size, size),
			}
		}
		if s.Offset%Alignment != 0 {
			return &ValidationError{
				Type:    "misaligned",
				Section: s.Name,
				Details: fmt.Sprintf("offset %d is not a multiple of %d", s.Offset, Alignment),
			}
		}
	}
	if err := ValidateSections(h.Sections, dataSize); err != nil {
		return err
	}
	var end int64
	for _, s := range h.Sections {
		end = max(end, s.Offset+s.Size)
	}
	if alignUp(end) != dataSize {
		return &ValidationError{
			Type:    "trailing_data",
			Details: fmt.Sprintf("sections end at %d, data_size %d", end, dataSize),
		}
	}
	return nil
}
