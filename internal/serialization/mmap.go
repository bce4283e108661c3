package serialization

import (
	"os"

	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/container"
	"github.com/born-ml/sparse/internal/types"
)

// MmapReader provides memory-mapped access to .spm files.
// Only the header is parsed on Open; sections are read on demand through the
// OS page cache.
type MmapReader struct {
	file       *os.File
	data       []byte // mapped region, read-only
	fixed      fixedHeader
	header     *Header
	dataOffset int64
	closed     bool
}

// Open memory-maps a .spm file. Always Close the reader.
func Open(path string) (*MmapReader, error) {
	//nolint:gosec // G304: the input path is user-supplied by design
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "serialization: opening file")
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "serialization: stat")
	}
	if stat.Size() < FixedHeaderSize {
		_ = file.Close()
		return nil, errors.Errorf("serialization: file too small: %d bytes (minimum %d)", stat.Size(), FixedHeaderSize)
	}

	data, err := mmapFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "serialization: mmap failed")
	}
	r := &MmapReader{file: file, data: data}
	if err := r.parse(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func (r *MmapReader) parse() error {
	fixed, err := parseFixedHeader(r.data)
	if err != nil {
		return err
	}
	size := int64(len(r.data))
	headerEnd := FixedHeaderSize + int64(fixed.headerSize) //nolint:gosec // G115: bounded by MaxHeaderSize
	r.dataOffset = fixed.dataOffset()
	if headerEnd > size || r.dataOffset+int64(fixed.dataSize) > size { //nolint:gosec // G115: bounded in parseFixedHeader
		return errors.Errorf("serialization: truncated file: data ends at %d, file size %d",
			r.dataOffset+int64(fixed.dataSize), size) //nolint:gosec // G115: bounded in parseFixedHeader
	}
	header, err := parseHeader(r.data[FixedHeaderSize:headerEnd], int64(fixed.dataSize)) //nolint:gosec // G115: bounded in parseFixedHeader
	if err != nil {
		return err
	}
	r.fixed, r.header = fixed, header
	return nil
}

// Close unmaps and closes the file.
func (r *MmapReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.data != nil {
		err = munmapFile(r.data)
		r.data = nil
	}
	if closeErr := r.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Header returns the file header.
func (r *MmapReader) Header() Header { return *r.header }

// Flags returns the flags bitfield.
func (r *MmapReader) Flags() uint32 { return r.fixed.flags }

// Checksum returns the stored SHA-256 of the data section.
func (r *MmapReader) Checksum() [ChecksumSize]byte { return r.fixed.checksum }

// Verify recomputes the checksum of the data section.
func (r *MmapReader) Verify() error {
	if r.closed {
		return ErrClosed
	}
	return ValidateChecksum(ComputeChecksum(r.dataSection()), r.fixed.checksum)
}

// SectionData returns a zero-copy view of the named section. The view is
// read-only and valid only while the reader is open.
func (r *MmapReader) SectionData(name string) ([]byte, error) {
	if r.closed {
		return nil, ErrClosed
	}
	s, ok := r.header.Section(name)
	if !ok {
		return nil, errors.Errorf("serialization: section %q not found", name)
	}
	return r.dataSection()[s.Offset : s.Offset+s.Size], nil
}

func (r *MmapReader) dataSection() []byte {
	return r.data[r.dataOffset : r.dataOffset+int64(r.fixed.dataSize)] //nolint:gosec // G115: bounded in parseFixedHeader
}

// Load verifies the checksum and copies the matrix out of the mapping.
func Load[T types.Element](r *MmapReader, acc accel.Accelerator) (*container.Matrix[T], error) {
	if err := r.Verify(); err != nil {
		return nil, err
	}
	return decode[T](r.header, r.dataSection(), acc)
}

// ReadFile loads a .spm file into a new matrix on acc (which may be nil).
func ReadFile[T types.Element](path string, acc accel.Accelerator) (*container.Matrix[T], error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return Load[T](r, acc)
}
