package serialization

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/sparse/internal/container"
	"github.com/born-ml/sparse/internal/types"
)

// Write stores m in .spm format. metadata may be nil.
func Write[T types.Element](w io.Writer, m *container.Matrix[T], metadata map[string]string) error {
	c, err := m.ReadCsr()
	if err != nil {
		return errors.Wrap(err, "serialization: reading matrix")
	}

	arrays := []struct {
		name string
		data []byte
	}{
		{SectionAp, appendLE(nil, c.Ap)},
		{SectionAj, appendLE(nil, c.Aj)},
		{SectionAx, appendLE(nil, c.Ax)},
	}

	header := Header{
		FormatVersion: FormatVersion,
		CreatedAt:     time.Now().UTC(),
		Type:          types.Of[T]().Code(),
		Rows:          m.Rows(),
		Cols:          m.Cols(),
		Nvals:         len(c.Ax),
		Metadata:      metadata,
	}

	var data []byte
	for _, a := range arrays {
		header.Sections = append(header.Sections, SectionMeta{
			Name:   a.name,
			Offset: int64(len(data)),
			Size:   int64(len(a.data)),
		})
		data = append(data, a.data...)
		data = pad(data, int64(len(data)))
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "serialization: marshaling header")
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	fixed := fixedHeader{
		version:    FormatVersion,
		headerSize: uint64(len(headerJSON)),
		dataSize:   uint64(len(data)),
		checksum:   ComputeChecksum(data),
	}
	if len(metadata) > 0 {
		fixed.flags |= FlagHasMetadata
	}

	out := append(fixed.marshal(), headerJSON...)
	out = pad(out, int64(len(out)))
	out = append(out, data...)
	if _, err := w.Write(out); err != nil {
		return errors.Wrap(err, "serialization: writing")
	}
	klog.V(3).Infof("serialization: wrote %dx%d %s matrix, %d values, %d bytes",
		header.Rows, header.Cols, header.Type, header.Nvals, len(out))
	return nil
}

// WriteFile stores m in a new .spm file at path.
func WriteFile[T types.Element](path string, m *container.Matrix[T], metadata map[string]string) (err error) {
	//nolint:gosec // G304: the output path is user-supplied by design
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "serialization: creating file")
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, "serialization: closing file")
		}
	}()
	return Write(f, m, metadata)
}

func appendLE[T types.Element](b []byte, s []T) []byte {
	if len(s) == 0 {
		return b
	}
	out, err := binary.Append(b, binary.LittleEndian, s)
	if err != nil {
		// Unreachable for fixed-size element types.
		panic(err)
	}
	return out
}

// pad appends zero bytes until n reaches the next alignment boundary.
func pad(b []byte, n int64) []byte {
	return append(b, make([]byte, alignUp(n)-n)...)
}
