package serialization

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// Format constants.
const (
	MagicBytes      = "SPMX"
	FormatVersion   = 1
	Alignment       = 64 // header and sections start on 64-byte boundaries
	FixedHeaderSize = 64
	ChecksumSize    = 32
	ChecksumOffset  = 0x20
)

// Flags of the fixed header.
const (
	FlagHasMetadata uint32 = 1 << 0 // custom metadata present
)

// Section names.
const (
	SectionAp = "ap" // row pointers, uint32[rows+1]
	SectionAj = "aj" // column indices, uint32[nvals]
	SectionAx = "ax" // values, T[nvals]
)

// Header is the JSON header of a .spm file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	CreatedAt     time.Time         `json:"created_at"`
	Type          string            `json:"type"` // element type code, e.g. "f32"
	Rows          int               `json:"rows"`
	Cols          int               `json:"cols"`
	Nvals         int               `json:"nvals"`
	Sections      []SectionMeta     `json:"sections"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// SectionMeta locates one array within the data section.
type SectionMeta struct {
	Name   string `json:"name"`
	Offset int64  `json:"offset"` // bytes from the start of the data section
	Size   int64  `json:"size"`
}

// Section returns the metadata of the named section.
func (h *Header) Section(name string) (SectionMeta, bool) {
	for _, s := range h.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return SectionMeta{}, false
}

// fixedHeader is the binary prefix of a .spm file.
type fixedHeader struct {
	version    uint32
	flags      uint32
	headerSize uint64
	dataSize   uint64
	checksum   [ChecksumSize]byte
}

func (f *fixedHeader) marshal() []byte {
	b := make([]byte, FixedHeaderSize)
	copy(b[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(b[4:8], f.version)
	binary.LittleEndian.PutUint32(b[8:12], f.flags)
	binary.LittleEndian.PutUint64(b[16:24], f.headerSize)
	binary.LittleEndian.PutUint64(b[24:32], f.dataSize)
	copy(b[ChecksumOffset:ChecksumOffset+ChecksumSize], f.checksum[:])
	return b
}

func parseFixedHeader(b []byte) (fixedHeader, error) {
	var f fixedHeader
	if len(b) < FixedHeaderSize {
		return f, errors.Errorf("serialization: file too small: %d bytes (minimum %d)", len(b), FixedHeaderSize)
	}
	if string(b[0:4]) != MagicBytes {
		return f, ErrInvalidMagic
	}
	f.version = binary.LittleEndian.Uint32(b[4:8])
	if f.version != FormatVersion {
		return f, errors.Wrapf(ErrUnsupportedVersion, "got %d, expected %d", f.version, FormatVersion)
	}
	f.flags = binary.LittleEndian.Uint32(b[8:12])
	f.headerSize = binary.LittleEndian.Uint64(b[16:24])
	f.dataSize = binary.LittleEndian.Uint64(b[24:32])
	if f.headerSize > MaxHeaderSize {
		return f, ErrHeaderTooLarge
	}
	if f.dataSize > 1<<62 {
		return f, errors.Errorf("serialization: data size too large: %d", f.dataSize)
	}
	copy(f.checksum[:], b[ChecksumOffset:ChecksumOffset+ChecksumSize])
	return f, nil
}

// dataOffset returns where the data section starts.
func (f *fixedHeader) dataOffset() int64 {
	return alignUp(FixedHeaderSize + int64(f.headerSize)) //nolint:gosec // G115: bounded by MaxHeaderSize
}

func alignUp(n int64) int64 {
	return (n + Alignment - 1) / Alignment * Alignment
}
