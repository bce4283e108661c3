package serialization

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/container"
	"github.com/born-ml/sparse/internal/types"
)

// Read loads a .spm stream into a new matrix on acc (which may be nil).
// The checksum of the data section is always verified.
func Read[T types.Element](r io.Reader, acc accel.Accelerator) (*container.Matrix[T], *Header, error) {
	prefix := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, nil, errors.Wrap(err, "serialization: reading fixed header")
	}
	fixed, err := parseFixedHeader(prefix)
	if err != nil {
		return nil, nil, err
	}

	// Header JSON and its padding up to the data section.
	rest := make([]byte, fixed.dataOffset()-FixedHeaderSize)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, nil, errors.Wrap(err, "serialization: reading header")
	}
	header, err := parseHeader(rest[:fixed.headerSize], int64(fixed.dataSize)) //nolint:gosec // G115: bounded in parseFixedHeader
	if err != nil {
		return nil, nil, err
	}

	// The buffer grows with the bytes actually present, not with the declared size.
	data, err := io.ReadAll(io.LimitReader(r, int64(fixed.dataSize))) //nolint:gosec // G115: bounded in parseFixedHeader
	if err != nil {
		return nil, nil, errors.Wrap(err, "serialization: reading data")
	}
	if uint64(len(data)) != fixed.dataSize {
		return nil, nil, errors.Wrapf(io.ErrUnexpectedEOF, "serialization: data section has %d of %d bytes", len(data), fixed.dataSize)
	}
	if err := ValidateChecksum(ComputeChecksum(data), fixed.checksum); err != nil {
		return nil, nil, err
	}

	m, err := decode[T](header, data, acc)
	if err != nil {
		return nil, nil, err
	}
	return m, header, nil
}

func parseHeader(b []byte, dataSize int64) (*Header, error) {
	var h Header
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, errors.Wrap(err, "serialization: parsing header JSON")
	}
	if err := ValidateHeader(&h, dataSize); err != nil {
		return nil, errors.Wrap(err, "serialization: header validation failed")
	}
	return &h, nil
}

// decode builds a matrix from a validated header and its data section.
func decode[T types.Element](h *Header, data []byte, acc accel.Accelerator) (*container.Matrix[T], error) {
	if want := types.Of[T]().Code(); h.Type != want {
		return nil, errors.Wrapf(ErrTypeMismatch, "file holds %s, requested %s", h.Type, want)
	}
	c := container.Csr[T]{
		Ap: make([]uint32, h.Rows+1),
		Aj: make([]uint32, h.Nvals),
		Ax: make([]T, h.Nvals),
	}
	for _, t := range []struct {
		name string
		dst  any
	}{
		{SectionAp, c.Ap},
		{SectionAj, c.Aj},
		{SectionAx, c.Ax},
	} {
		s, _ := h.Section(t.name)
		if s.Size == 0 {
			continue
		}
		if _, err := binary.Decode(data[s.Offset:s.Offset+s.Size], binary.LittleEndian, t.dst); err != nil {
			return nil, errors.Wrapf(err, "serialization: decoding section %q", t.name)
		}
	}

	m := container.NewMatrix[T](h.Rows, h.Cols, acc)
	if err := m.BuildCsr(c); err != nil {
		m.Release()
		return nil, errors.Wrap(err, "serialization: invalid matrix structure")
	}
	klog.V(3).Infof("serialization: read %dx%d %s matrix, %d values", h.Rows, h.Cols, h.Type, h.Nvals)
	return m, nil
}
