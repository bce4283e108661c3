package serialization

import (
	"fmt"

	"github.com/pkg/errors"
)

// Common errors.
var (
	ErrChecksumMismatch   = errors.New("serialization: checksum mismatch: file may be corrupted")
	ErrOffsetOverlap      = errors.New("serialization: section offsets overlap")
	ErrOutOfBounds        = errors.New("serialization: section extends beyond data section")
	ErrHeaderTooLarge     = errors.New("serialization: header exceeds maximum size")
	ErrInvalidMagic       = errors.New("serialization: invalid magic bytes")
	ErrUnsupportedVersion = errors.New("serialization: unsupported format version")
	ErrTypeMismatch       = errors.New("serialization: element type mismatch")
	ErrClosed             = errors.New("serialization: reader is closed")
)

// ValidationError provides detailed information about validation failures.
type ValidationError struct {
	Type     string // e.g. "offset_overlap", "out_of_bounds"
	Section  string
	Section2 string // second section of an overlap
	Details  string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Section2 != "" {
		return fmt.Sprintf("%s: sections %q and %q: %s", e.Type, e.Section, e.Section2, e.Details)
	}
	if e.Section != "" {
		return fmt.Sprintf("%s: section %q: %s", e.Type, e.Section, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}

// Unwrap maps the validation type to its sentinel so errors.Is works.
func (e *ValidationError) Unwrap() error {
	switch e.Type {
	case "offset_overlap":
		return ErrOffsetOverlap
	case "out_of_bounds":
		return ErrOutOfBounds
	default:
		return nil
	}
}
