package container

import (
	"cmp"
	"slices"
	"sync"

	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/storage"
	"github.com/born-ml/sparse/internal/types"
)

// Matrix storage formats.
const (
	MatrixCpuDok storage.Format = iota
	MatrixCpuCoo
	MatrixCpuCsr
	MatrixAccCsr
)

// Csr is a compressed sparse row structure. Ap has rows+1 entries; row i
// occupies Aj[Ap[i]:Ap[i+1]] and Ax[Ap[i]:Ap[i+1]] with ascending columns.
type Csr[T types.Element] struct {
	Ap []uint32
	Aj []uint32
	Ax []T
}

// AccCsr is a compressed sparse row structure in device memory.
type AccCsr struct {
	Ap    accel.Buffer
	Aj    accel.Buffer
	Ax    accel.Buffer
	Nvals int
}

func (c *AccCsr) release() {
	releaseBuffer(&c.Ap)
	releaseBuffer(&c.Aj)
	releaseBuffer(&c.Ax)
	c.Nvals = 0
}

// Cell addresses one matrix entry.
type Cell struct{ Row, Col uint32 }

var matrixManagers sync.Map // *types.Type -> *storage.Manager[*Matrix[T]]

func matrixManager[T types.Element]() *storage.Manager[*Matrix[T]] {
	if m, ok := matrixManagers.Load(types.Of[T]()); ok {
		return m.(*storage.Manager[*Matrix[T]])
	}
	m := storage.NewManager[*Matrix[T]]("cpu-dok", "cpu-coo", "cpu-csr", "acc-csr")

	m.SetReset(MatrixCpuDok, func(a *Matrix[T]) error {
		a.dok = make(map[Cell]T)
		return nil
	})
	m.SetReset(MatrixCpuCoo, func(a *Matrix[T]) error {
		a.cooI, a.cooJ, a.cooX = nil, nil, nil
		return nil
	})
	m.SetReset(MatrixCpuCsr, func(a *Matrix[T]) error {
		a.csr = Csr[T]{Ap: make([]uint32, a.rows+1)}
		return nil
	})
	m.SetReset(MatrixAccCsr, func(a *Matrix[T]) error {
		return a.upload(Csr[T]{Ap: make([]uint32, a.rows+1)})
	})

	m.SetConvert(MatrixCpuDok, MatrixCpuCoo, func(a *Matrix[T]) error {
		cells := make([]Cell, 0, len(a.dok))
		for c := range a.dok {
			cells = append(cells, c)
		}
		slices.SortFunc(cells, func(x, y Cell) int {
			if c := cmp.Compare(x.Row, y.Row); c != 0 {
				return c
			}
			return cmp.Compare(x.Col, y.Col)
		})
		a.cooI = make([]uint32, len(cells))
		a.cooJ = make([]uint32, len(cells))
		a.cooX = make([]T, len(cells))
		for k, c := range cells {
			a.cooI[k], a.cooJ[k], a.cooX[k] = c.Row, c.Col, a.dok[c]
		}
		return nil
	})
	m.SetConvert(MatrixCpuCoo, MatrixCpuDok, func(a *Matrix[T]) error {
		a.dok = make(map[Cell]T, len(a.cooX))
		for k := range a.cooX {
			a.dok[Cell{a.cooI[k], a.cooJ[k]}] = a.cooX[k]
		}
		return nil
	})
	m.SetConvert(MatrixCpuCoo, MatrixCpuCsr, func(a *Matrix[T]) error {
		ap := make([]uint32, a.rows+1)
		for _, i := range a.cooI {
			ap[i+1]++
		}
		for i := 0; i < a.rows; i++ {
			ap[i+1] += ap[i]
		}
		// Coo is sorted by (row, column), so the arrays carry over unchanged.
		a.csr = Csr[T]{Ap: ap, Aj: slices.Clone(a.cooJ), Ax: slices.Clone(a.cooX)}
		return nil
	})
	m.SetConvert(MatrixCpuCsr, MatrixCpuCoo, func(a *Matrix[T]) error {
		nvals := len(a.csr.Ax)
		a.cooI = make([]uint32, nvals)
		for i := 0; i < a.rows; i++ {
			for k := a.csr.Ap[i]; k < a.csr.Ap[i+1]; k++ {
				a.cooI[k] = uint32(i)
			}
		}
		a.cooJ = slices.Clone(a.csr.Aj)
		a.cooX = slices.Clone(a.csr.Ax)
		return nil
	})
	m.SetConvert(MatrixCpuCsr, MatrixAccCsr, func(a *Matrix[T]) error {
		return a.upload(a.csr)
	})
	m.SetConvert(MatrixAccCsr, MatrixCpuCsr, func(a *Matrix[T]) error {
		return a.download()
	})

	actual, _ := matrixManagers.LoadOrStore(types.Of[T](), m)
	return actual.(*storage.Manager[*Matrix[T]])
}

// Matrix is a typed sparse matrix of fixed shape.
type Matrix[T types.Element] struct {
	refCount

	mu         sync.Mutex
	acc        accel.Accelerator
	mgr        *storage.Manager[*Matrix[T]]
	slots      *storage.Slots
	rows, cols int
	fill       T

	dok    map[Cell]T
	cooI   []uint32
	cooJ   []uint32
	cooX   []T
	csr    Csr[T]
	accCsr AccCsr
}

// NewMatrix creates an empty rows x cols matrix.
// acc may be nil, in which case device formats are unavailable.
func NewMatrix[T types.Element](rows, cols int, acc accel.Accelerator) *Matrix[T] {
	mgr := matrixManager[T]()
	a := &Matrix[T]{acc: acc, mgr: mgr, slots: mgr.NewSlots(), rows: rows, cols: cols}
	a.init()
	return a
}

// Type returns the element type.
func (a *Matrix[T]) Type() *types.Type { return types.Of[T]() }

// Rows returns the number of rows.
func (a *Matrix[T]) Rows() int { return a.rows }

// Cols returns the number of columns.
func (a *Matrix[T]) Cols() int { return a.cols }

// Fill returns the value of entries that were never stored.
func (a *Matrix[T]) Fill() T { return a.fill }

// Accelerator returns the accelerator device formats live on, or nil.
func (a *Matrix[T]) Accelerator() accel.Accelerator { return a.acc }

// Slots exposes the format state, for diagnostics and tests.
func (a *Matrix[T]) Slots() *storage.Slots { return a.slots }

// Validate prepares format f for an access in the given mode.
func (a *Matrix[T]) Validate(f storage.Format, mode storage.Mode) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.validate(f, mode)
}

func (a *Matrix[T]) validate(f storage.Format, mode storage.Mode) error {
	if err := a.alive(); err != nil {
		return err
	}
	if f == MatrixAccCsr && a.acc == nil {
		return ErrNoAccelerator
	}
	return a.mgr.Validate(a, a.slots, f, mode)
}

func (a *Matrix[T]) checkIndex(i, j int) error {
	if i < 0 || i >= a.rows || j < 0 || j >= a.cols {
		return errors.Wrapf(ErrOutOfRange, "(%d, %d) of %dx%d matrix", i, j, a.rows, a.cols)
	}
	return nil
}

// Set stores x at (i, j).
func (a *Matrix[T]) Set(i, j int, x T) error {
	if err := a.checkIndex(i, j); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.validate(MatrixCpuDok, storage.ReadWrite); err != nil {
		return err
	}
	a.dok[Cell{uint32(i), uint32(j)}] = x
	return nil
}

// Get returns the entry at (i, j), or the fill value if none is stored.
func (a *Matrix[T]) Get(i, j int) (T, error) {
	if err := a.checkIndex(i, j); err != nil {
		return a.fill, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.validate(MatrixCpuDok, storage.ReadOnly); err != nil {
		return a.fill, err
	}
	if x, ok := a.dok[Cell{uint32(i), uint32(j)}]; ok {
		return x, nil
	}
	return a.fill, nil
}

// Build replaces the content with the entries (I[k], J[k], X[k]). Later duplicates win.
func (a *Matrix[T]) Build(I, J []uint32, X []T) error {
	if len(I) != len(J) || len(I) != len(X) {
		return errors.Wrapf(ErrShape, "%d rows, %d columns, %d values", len(I), len(J), len(X))
	}
	for k := range I {
		if err := a.checkIndex(int(I[k]), int(J[k])); err != nil {
			return err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.validate(MatrixCpuDok, storage.WriteDiscard); err != nil {
		return err
	}
	for k := range I {
		a.dok[Cell{I[k], J[k]}] = X[k]
	}
	return nil
}

// Read returns copies of the stored entries in row-major order.
func (a *Matrix[T]) Read() (I, J []uint32, X []T, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.validate(MatrixCpuCoo, storage.ReadOnly); err != nil {
		return nil, nil, nil, err
	}
	return slices.Clone(a.cooI), slices.Clone(a.cooJ), slices.Clone(a.cooX), nil
}

// ReadCsr returns a copy of the compressed sparse row representation.
func (a *Matrix[T]) ReadCsr() (Csr[T], error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.validate(MatrixCpuCsr, storage.ReadOnly); err != nil {
		return Csr[T]{}, err
	}
	return Csr[T]{Ap: slices.Clone(a.csr.Ap), Aj: slices.Clone(a.csr.Aj), Ax: slices.Clone(a.csr.Ax)}, nil
}

// BuildCsr replaces the content with a copy of c. Row pointers must be
// non-decreasing and columns strictly ascending within each row.
func (a *Matrix[T]) BuildCsr(c Csr[T]) error {
	if err := checkCsr(c, a.rows, a.cols); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.validate(MatrixCpuCsr, storage.WriteDiscard); err != nil {
		return err
	}
	a.csr = Csr[T]{Ap: slices.Clone(c.Ap), Aj: slices.Clone(c.Aj), Ax: slices.Clone(c.Ax)}
	return nil
}

func checkCsr[T types.Element](c Csr[T], rows, cols int) error {
	if len(c.Ap) != rows+1 {
		return errors.Wrapf(ErrShape, "%d row pointers for %d rows", len(c.Ap), rows)
	}
	if len(c.Aj) != len(c.Ax) || c.Ap[0] != 0 || int(c.Ap[rows]) != len(c.Aj) {
		return errors.Wrapf(ErrShape, "row pointers end at %d with %d columns and %d values",
			c.Ap[rows], len(c.Aj), len(c.Ax))
	}
	for i := 0; i < rows; i++ {
		if c.Ap[i] > c.Ap[i+1] {
			return errors.Wrapf(ErrShape, "row pointer %d decreases", i+1)
		}
	}
	for i := 0; i < rows; i++ {
		for k := c.Ap[i]; k < c.Ap[i+1]; k++ {
			if int(c.Aj[k]) >= cols {
				return errors.Wrapf(ErrOutOfRange, "column %d of %d in row %d", c.Aj[k], cols, i)
			}
			if k > c.Ap[i] && c.Aj[k] <= c.Aj[k-1] {
				return errors.Wrapf(ErrShape, "columns of row %d not ascending", i)
			}
		}
	}
	return nil
}

// Nvals returns the number of stored entries.
func (a *Matrix[T]) Nvals() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.validate(MatrixCpuCsr, storage.ReadOnly); err != nil {
		return 0, err
	}
	return len(a.csr.Ax), nil
}

// RowLength returns the number of stored entries of row i.
func (a *Matrix[T]) RowLength(i int) (int, error) {
	if i < 0 || i >= a.rows {
		return 0, errors.Wrapf(ErrOutOfRange, "row %d of %d", i, a.rows)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.validate(MatrixCpuCsr, storage.ReadOnly); err != nil {
		return 0, err
	}
	return int(a.csr.Ap[i+1] - a.csr.Ap[i]), nil
}

// Clear removes every stored entry.
func (a *Matrix[T]) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slots.Invalidate()
}

// Release drops a reference. The last reference frees device memory.
func (a *Matrix[T]) Release() {
	if !a.drop() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accCsr.release()
	a.dok, a.cooI, a.cooJ, a.cooX, a.csr = nil, nil, nil, nil, Csr[T]{}
}

func (a *Matrix[T]) upload(c Csr[T]) error {
	if a.acc == nil {
		return ErrNoAccelerator
	}
	var err error
	if a.accCsr.Ap, err = writeBuffer(a.acc, a.accCsr.Ap, accel.AsBytes(c.Ap)); err != nil {
		return err
	}
	if a.accCsr.Aj, err = writeBuffer(a.acc, a.accCsr.Aj, accel.AsBytes(c.Aj)); err != nil {
		return err
	}
	if a.accCsr.Ax, err = writeBuffer(a.acc, a.accCsr.Ax, accel.AsBytes(c.Ax)); err != nil {
		return err
	}
	a.accCsr.Nvals = len(c.Ax)
	return nil
}

func (a *Matrix[T]) download() error {
	if a.acc == nil {
		return ErrNoAccelerator
	}
	c := Csr[T]{
		Ap: make([]uint32, a.rows+1),
		Aj: make([]uint32, a.accCsr.Nvals),
		Ax: make([]T, a.accCsr.Nvals),
	}
	q := a.acc.DefaultQueue()
	for _, t := range []struct {
		buf accel.Buffer
		dst []byte
	}{
		{a.accCsr.Ap, accel.AsBytes(c.Ap)},
		{a.accCsr.Aj, accel.AsBytes(c.Aj)},
		{a.accCsr.Ax, accel.AsBytes(c.Ax)},
	} {
		if len(t.dst) == 0 {
			continue
		}
		if err := q.EnqueueRead(t.buf, 0, t.dst); err != nil {
			return err
		}
	}
	if err := q.Finish(); err != nil {
		return err
	}
	a.csr = c
	return nil
}

// Representation accessors. They are valid after a Validate of the matching
// format and until the next Validate of another format.

// Dok returns the dictionary-of-keys representation.
func (a *Matrix[T]) Dok() map[Cell]T { return a.dok }

// Coo returns the coordinate representation sorted by (row, column).
func (a *Matrix[T]) Coo() (I, J []uint32, X []T) { return a.cooI, a.cooJ, a.cooX }

// Csr returns the compressed sparse row representation.
func (a *Matrix[T]) Csr() Csr[T] { return a.csr }

// AccCsr returns the device compressed sparse row representation.
func (a *Matrix[T]) AccCsr() AccCsr { return a.accCsr }

// Compile-time interface check.
var _ Object = (*Matrix[float32])(nil)
