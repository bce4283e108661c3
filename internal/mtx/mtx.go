// Package mtx reads and writes sparse matrices in the Matrix Market exchange
// format.
//
// Supported headers:
//
//	%%MatrixMarket matrix coordinate real|integer|pattern general|symmetric
//
// Indices are 1-based in files and 0-based in memory. Pattern entries read as
// 1 and symmetric files are expanded to both triangles. Writing always
// produces "coordinate real general".
package mtx

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/container"
	"github.com/born-ml/sparse/internal/types"
)

// Banner is the first token of every Matrix Market file.
const Banner = "%%MatrixMarket"

// Common errors.
var (
	ErrHeader      = errors.New("mtx: invalid header")
	ErrUnsupported = errors.New("mtx: unsupported format")
	ErrEntry       = errors.New("mtx: invalid entry")
)

// Field is the value type declared by a header.
type Field string

// Supported fields.
const (
	Real    Field = "real"
	Integer Field = "integer"
	Pattern Field = "pattern"
)

// Symmetry is the storage symmetry declared by a header.
type Symmetry string

// Supported symmetries.
const (
	General   Symmetry = "general"
	Symmetric Symmetry = "symmetric"
)

// Header is a parsed banner line.
type Header struct {
	Field    Field
	Symmetry Symmetry
}

// String returns the banner line of h.
func (h Header) String() string {
	return fmt.Sprintf("%s matrix coordinate %s %s", Banner, h.Field, h.Symmetry)
}

// Entries is a matrix in coordinate form with 0-based indices.
type Entries struct {
	Header Header
	Rows   int
	Cols   int
	I, J   []uint32
	X      []float64
}

func parseHeader(line string) (Header, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) != 5 || fields[0] != strings.ToLower(Banner) {
		return Header{}, errors.Wrapf(ErrHeader, "%q", line)
	}
	if fields[1] != "matrix" || fields[2] != "coordinate" {
		return Header{}, errors.Wrapf(ErrUnsupported, "%s %s", fields[1], fields[2])
	}
	h := Header{Field: Field(fields[3]), Symmetry: Symmetry(fields[4])}
	switch h.Field {
	case Real, Integer, Pattern:
	default:
		return Header{}, errors.Wrapf(ErrUnsupported, "field %q", fields[3])
	}
	switch h.Symmetry {
	case General, Symmetric:
	default:
		return Header{}, errors.Wrapf(ErrUnsupported, "symmetry %q", fields[4])
	}
	return h, nil
}

// maxPrealloc bounds the entry capacity reserved from the size line.
const maxPrealloc = 1 << 20

// Read parses a Matrix Market stream.
func Read(r io.Reader) (*Entries, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	next := func() (string, bool) {
		for sc.Scan() {
			line++
			text := strings.TrimSpace(sc.Text())
			if text == "" || strings.HasPrefix(text, "%") {
				continue
			}
			return text, true
		}
		return "", false
	}

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, errors.Wrap(err, "mtx: reading header")
		}
		return nil, errors.Wrap(ErrHeader, "empty input")
	}
	line++
	h, err := parseHeader(sc.Text())
	if err != nil {
		return nil, err
	}

	sizeLine, ok := next()
	if !ok {
		return nil, errors.Wrap(ErrHeader, "missing size line")
	}
	var rows, cols, nnz int
	if n, err := fmt.Sscan(sizeLine, &rows, &cols, &nnz); err != nil || n != 3 || rows < 0 || cols < 0 || nnz < 0 {
		return nil, errors.Wrapf(ErrHeader, "line %d: size line %q", line, sizeLine)
	}
	if int64(rows) > math.MaxUint32 || int64(cols) > math.MaxUint32 {
		return nil, errors.Wrapf(ErrHeader, "line %d: size %dx%d exceeds 32-bit indices", line, rows, cols)
	}
	if h.Symmetry == Symmetric && rows != cols {
		return nil, errors.Wrapf(ErrHeader, "symmetric matrix of size %dx%d", rows, cols)
	}
	limit := uint64(rows) * uint64(cols)
	if h.Symmetry == Symmetric {
		limit = uint64(rows) * (uint64(rows) + 1) / 2
	}
	if uint64(nnz) > limit {
		return nil, errors.Wrapf(ErrHeader, "line %d: %d entries in a %dx%d %s matrix", line, nnz, rows, cols, h.Symmetry)
	}

	e := &Entries{Header: h, Rows: rows, Cols: cols}
	// Entries beyond the preallocation grow by append.
	capacity := min(nnz, maxPrealloc)
	if h.Symmetry == Symmetric {
		capacity *= 2
	}
	e.I = make([]uint32, 0, capacity)
	e.J = make([]uint32, 0, capacity)
	e.X = make([]float64, 0, capacity)

	for k := 0; k < nnz; k++ {
		text, ok := next()
		if !ok {
			if err := sc.Err(); err != nil {
				return nil, errors.Wrap(err, "mtx: reading entries")
			}
			return nil, errors.Wrapf(ErrEntry, "expected %d entries, found %d", nnz, k)
		}
		i, j, x, err := parseEntry(text, h.Field, rows, cols)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		e.I, e.J, e.X = append(e.I, i), append(e.J, j), append(e.X, x)
		if h.Symmetry == Symmetric && i != j {
			e.I, e.J, e.X = append(e.I, j), append(e.J, i), append(e.X, x)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "mtx: reading entries")
	}
	return e, nil
}

func parseEntry(text string, field Field, rows, cols int) (i, j uint32, x float64, err error) {
	fields := strings.Fields(text)
	want := 3
	if field == Pattern {
		want = 2
	}
	if len(fields) != want {
		return 0, 0, 0, errors.Wrapf(ErrEntry, "%q has %d fields, want %d", text, len(fields), want)
	}
	row, err := strconv.Atoi(fields[0])
	if err != nil || row < 1 || row > rows {
		return 0, 0, 0, errors.Wrapf(ErrEntry, "row %q outside 1..%d", fields[0], rows)
	}
	col, err := strconv.Atoi(fields[1])
	if err != nil || col < 1 || col > cols {
		return 0, 0, 0, errors.Wrapf(ErrEntry, "column %q outside 1..%d", fields[1], cols)
	}
	switch field {
	case Pattern:
		x = 1
	case Integer:
		n, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return 0, 0, 0, errors.Wrapf(ErrEntry, "integer value %q", fields[2])
		}
		x = float64(n)
	default:
		x, err = strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return 0, 0, 0, errors.Wrapf(ErrEntry, "real value %q", fields[2])
		}
	}
	return uint32(row - 1), uint32(col - 1), x, nil
}

// ReadFile parses the Matrix Market file at path.
func ReadFile(path string) (*Entries, error) {
	//nolint:gosec // G304: reading a user-supplied matrix file is the purpose of this function
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "mtx: open")
	}
	defer func() { _ = f.Close() }()
	e, err := Read(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return e, nil
}

// Load reads a Matrix Market stream into a new matrix on acc (nil for host only).
// Values are converted to T; integer types truncate.
func Load[T types.Element](r io.Reader, acc accel.Accelerator) (*container.Matrix[T], error) {
	e, err := Read(r)
	if err != nil {
		return nil, err
	}
	return ToMatrix[T](e, acc)
}

// ToMatrix builds a matrix of element type T from the entries.
func ToMatrix[T types.Element](e *Entries, acc accel.Accelerator) (*container.Matrix[T], error) {
	m := container.NewMatrix[T](e.Rows, e.Cols, acc)
	x := make([]T, len(e.X))
	for k, v := range e.X {
		x[k] = T(v)
	}
	if err := m.Build(e.I, e.J, x); err != nil {
		m.Release()
		return nil, errors.Wrap(err, "mtx: build")
	}
	return m, nil
}

// Write encodes the entries as "coordinate real general" with 1-based indices.
func Write(w io.Writer, e *Entries) error {
	if len(e.I) != len(e.J) || len(e.I) != len(e.X) {
		return errors.Wrapf(ErrEntry, "%d rows, %d columns, %d values", len(e.I), len(e.J), len(e.X))
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, Header{Field: Real, Symmetry: General})
	fmt.Fprintf(bw, "%d %d %d\n", e.Rows, e.Cols, len(e.X))
	for k := range e.X {
		fmt.Fprintf(bw, "%d %d %s\n", e.I[k]+1, e.J[k]+1, strconv.FormatFloat(e.X[k], 'g', -1, 64))
	}
	return errors.Wrap(bw.Flush(), "mtx: write")
}

// Store writes the stored entries of m in row-major order.
func Store[T types.Element](w io.Writer, m *container.Matrix[T]) error {
	I, J, X, err := m.Read()
	if err != nil {
		return err
	}
	e := &Entries{Rows: m.Rows(), Cols: m.Cols(), I: I, J: J, X: make([]float64, len(X))}
	for k, v := range X {
		e.X[k] = float64(v)
	}
	return Write(w, e)
}
