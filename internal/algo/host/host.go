// Package host implements the cpu backend executors. They operate on the
// host storage formats of the operands and finish before returning.
package host

import (
	"slices"

	"github.com/born-ml/sparse/internal/algo"
	"github.com/born-ml/sparse/internal/container"
	"github.com/born-ml/sparse/internal/engine"
	"github.com/born-ml/sparse/internal/parallel"
	"github.com/born-ml/sparse/internal/schedule"
	"github.com/born-ml/sparse/internal/storage"
	"github.com/born-ml/sparse/internal/types"
)

// rowConfig splits row loops of the matrix executors. Rows write disjoint outputs.
var rowConfig = parallel.DefaultConfig()

// RegisterAll registers the cpu executors of every operation and element type.
func RegisterAll(r *engine.Registry) error {
	for _, fn := range []func(*engine.Registry) error{
		register[int32], register[uint32], register[float32], register[float64],
	} {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func register[T types.Element](r *engine.Registry) error {
	t := types.Of[T]()
	for _, err := range []error{
		algo.Register(r, schedule.OpExtractRow, t, engine.BackendCPU, "extract a matrix row into a dense vector", extractRow[T]),
		algo.Register(r, schedule.OpExtractColumn, t, engine.BackendCPU, "extract a matrix column into a dense vector", extractColumn[T]),
		algo.Register(r, schedule.OpMap, t, engine.BackendCPU, "apply a unary operator to every element", vmap[T]),
		algo.Register(r, schedule.OpEAdd, t, engine.BackendCPU, "combine two vectors elementwise", eadd[T]),
		algo.Register(r, schedule.OpReduce, t, engine.BackendCPU, "fold a vector into a scalar", reduce[T]),
		algo.Register(r, schedule.OpMxV, t, engine.BackendCPU, "sparse matrix-vector product over a semiring", mxv[T]),
		algo.Register(r, schedule.OpReduceByRow, t, engine.BackendCPU, "fold every matrix row into a vector element", reduceByRow[T]),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// store writes a freshly computed dense result into r.
func store[T types.Element](r *container.Vector[T], values []T) error {
	if err := r.Validate(container.VectorCpuDense, storage.WriteDiscard); err != nil {
		return err
	}
	copy(r.Dense(), values)
	return nil
}

// denseOf returns the dense host values of v.
func denseOf[T types.Element](v *container.Vector[T]) ([]T, error) {
	if err := v.Validate(container.VectorCpuDense, storage.ReadOnly); err != nil {
		return nil, err
	}
	return v.Dense(), nil
}

func csrOf[T types.Element](m *container.Matrix[T]) (container.Csr[T], error) {
	if err := m.Validate(container.MatrixCpuCsr, storage.ReadOnly); err != nil {
		return container.Csr[T]{}, err
	}
	return m.Csr(), nil
}

func extractRow[T types.Element](_ *engine.DispatchContext, t *schedule.ExtractRow[T]) error {
	r, m := t.R(), t.M()
	if t.Index() < 0 || t.Index() >= m.Rows() {
		return algo.InvalidArgument(t.Name(), "row %d of %d", t.Index(), m.Rows())
	}
	if r.Size() != m.Cols() {
		return algo.InvalidArgument(t.Name(), "vector size %d, matrix has %d columns", r.Size(), m.Cols())
	}
	csr, err := csrOf(m)
	if err != nil {
		return err
	}
	if err := r.Validate(container.VectorCpuDense, storage.WriteDiscard); err != nil {
		return err
	}
	dense := r.Dense()
	for k := csr.Ap[t.Index()]; k < csr.Ap[t.Index()+1]; k++ {
		dense[csr.Aj[k]] = t.Op().Apply(csr.Ax[k])
	}
	return nil
}

func extractColumn[T types.Element](_ *engine.DispatchContext, t *schedule.ExtractColumn[T]) error {
	r, m := t.R(), t.M()
	if t.Index() < 0 || t.Index() >= m.Cols() {
		return algo.InvalidArgument(t.Name(), "column %d of %d", t.Index(), m.Cols())
	}
	if r.Size() != m.Rows() {
		return algo.InvalidArgument(t.Name(), "vector size %d, matrix has %d rows", r.Size(), m.Rows())
	}
	csr, err := csrOf(m)
	if err != nil {
		return err
	}
	if err := r.Validate(container.VectorCpuDense, storage.WriteDiscard); err != nil {
		return err
	}
	dense := r.Dense()
	col := uint32(t.Index())
	for i := 0; i < m.Rows(); i++ {
		row := csr.Aj[csr.Ap[i]:csr.Ap[i+1]]
		if k, ok := slices.BinarySearch(row, col); ok {
			dense[i] = t.Op().Apply(csr.Ax[int(csr.Ap[i])+k])
		}
	}
	return nil
}

func vmap[T types.Element](_ *engine.DispatchContext, t *schedule.Map[T]) error {
	if t.R().Size() != t.V().Size() {
		return algo.InvalidArgument(t.Name(), "sizes %d and %d differ", t.R().Size(), t.V().Size())
	}
	src, err := denseOf(t.V())
	if err != nil {
		return err
	}
	out := make([]T, len(src))
	for i, x := range src {
		out[i] = t.Op().Apply(x)
	}
	return store(t.R(), out)
}

func eadd[T types.Element](_ *engine.DispatchContext, t *schedule.EAdd[T]) error {
	n := t.R().Size()
	if t.A().Size() != n || t.B().Size() != n {
		return algo.InvalidArgument(t.Name(), "sizes %d, %d and %d differ", n, t.A().Size(), t.B().Size())
	}
	a, err := denseOf(t.A())
	if err != nil {
		return err
	}
	b, err := denseOf(t.B())
	if err != nil {
		return err
	}
	out := make([]T, n)
	for i := range out {
		out[i] = t.Op().Apply(a[i], b[i])
	}
	return store(t.R(), out)
}

func reduce[T types.Element](_ *engine.DispatchContext, t *schedule.Reduce[T]) error {
	src, err := denseOf(t.V())
	if err != nil {
		return err
	}
	acc := t.Init()
	for _, x := range src {
		acc = t.Op().Apply(acc, x)
	}
	t.R().Set(acc)
	return nil
}

func mxv[T types.Element](_ *engine.DispatchContext, t *schedule.MxV[T]) error {
	m := t.M()
	if t.R().Size() != m.Rows() || t.V().Size() != m.Cols() {
		return algo.InvalidArgument(t.Name(), "%dx%d matrix with vectors of size %d and %d",
			m.Rows(), m.Cols(), t.R().Size(), t.V().Size())
	}
	csr, err := csrOf(m)
	if err != nil {
		return err
	}
	v, err := denseOf(t.V())
	if err != nil {
		return err
	}
	out := make([]T, m.Rows())
	parallel.For(len(out), func(i int) {
		sum := t.Init()
		for k := csr.Ap[i]; k < csr.Ap[i+1]; k++ {
			sum = t.Add().Apply(sum, t.Multiply().Apply(csr.Ax[k], v[csr.Aj[k]]))
		}
		out[i] = sum
	}, rowConfig)
	return store(t.R(), out)
}

func reduceByRow[T types.Element](_ *engine.DispatchContext, t *schedule.ReduceByRow[T]) error {
	m := t.M()
	if t.R().Size() != m.Rows() {
		return algo.InvalidArgument(t.Name(), "vector size %d, matrix has %d rows", t.R().Size(), m.Rows())
	}
	csr, err := csrOf(m)
	if err != nil {
		return err
	}
	out := make([]T, m.Rows())
	parallel.For(len(out), func(i int) {
		sum := t.Init()
		for k := csr.Ap[i]; k < csr.Ap[i+1]; k++ {
			sum = t.Op().Apply(sum, csr.Ax[k])
		}
		out[i] = sum
	}, rowConfig)
	return store(t.R(), out)
}
