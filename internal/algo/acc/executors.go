package acc

import (
	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/algo"
	"github.com/born-ml/sparse/internal/container"
	"github.com/born-ml/sparse/internal/engine"
	"github.com/born-ml/sparse/internal/kernels"
	"github.com/born-ml/sparse/internal/schedule"
	"github.com/born-ml/sparse/internal/storage"
	"github.com/born-ml/sparse/internal/types"
)

// outputMode is the access mode of a result vector that may alias an input.
// Elementwise kernels read and write the same index, so aliasing is safe when
// the prior content is kept.
func outputMode(aliased bool) storage.Mode {
	if aliased {
		return storage.ReadWrite
	}
	return storage.WriteDiscard
}

func extractRow[T types.Element](ctx *engine.DispatchContext, t *schedule.ExtractRow[T]) error {
	r, m := t.R(), t.M()
	if t.Index() < 0 || t.Index() >= m.Rows() {
		return algo.InvalidArgument(t.Name(), "row %d of %d", t.Index(), m.Rows())
	}
	if r.Size() != m.Cols() {
		return algo.InvalidArgument(t.Name(), "vector size %d, matrix has %d columns", r.Size(), m.Cols())
	}
	if err := r.Validate(container.VectorAccDense, storage.WriteDiscard); err != nil {
		return err
	}
	if err := m.Validate(container.MatrixAccCsr, storage.ReadOnly); err != nil {
		return err
	}
	csr := m.AccCsr()

	// The row bounds decide the launch geometry, so wait for them.
	bounds := make([]uint32, 2)
	q := ctx.Accelerator().DefaultQueue()
	if err := q.EnqueueRead(csr.Ap, t.Index()*4, accel.AsBytes(bounds)); err != nil {
		return err
	}
	if err := q.Finish(); err != nil {
		return err
	}
	start, end := int(bounds[0]), int(bounds[1])

	k, err := kernel(ctx, kernels.ExtractRow, "extract_row", spec(kernels.OpApply, t.Op()))
	if err != nil {
		return err
	}
	return launch(ctx, k, end-start, start, r.AccDense(), csr.Ax, csr.Aj, uint32(end))
}

func vmap[T types.Element](ctx *engine.DispatchContext, t *schedule.Map[T]) error {
	r, v := t.R(), t.V()
	if r.Size() != v.Size() {
		return algo.InvalidArgument(t.Name(), "sizes %d and %d differ", r.Size(), v.Size())
	}
	if err := v.Validate(container.VectorAccDense, storage.ReadOnly); err != nil {
		return err
	}
	if err := r.Validate(container.VectorAccDense, outputMode(r == v)); err != nil {
		return err
	}
	k, err := kernel(ctx, kernels.Map, "map", spec(kernels.OpApply, t.Op()))
	if err != nil {
		return err
	}
	return launch(ctx, k, r.Size(), 0, r.AccDense(), v.AccDense(), uint32(r.Size()))
}

func eadd[T types.Element](ctx *engine.DispatchContext, t *schedule.EAdd[T]) error {
	r, a, b := t.R(), t.A(), t.B()
	n := r.Size()
	if a.Size() != n || b.Size() != n {
		return algo.InvalidArgument(t.Name(), "sizes %d, %d and %d differ", n, a.Size(), b.Size())
	}
	if err := a.Validate(container.VectorAccDense, storage.ReadOnly); err != nil {
		return err
	}
	if err := b.Validate(container.VectorAccDense, storage.ReadOnly); err != nil {
		return err
	}
	if err := r.Validate(container.VectorAccDense, outputMode(r == a || r == b)); err != nil {
		return err
	}
	k, err := kernel(ctx, kernels.EAdd, "eadd", spec(kernels.OpBinary, t.Op()))
	if err != nil {
		return err
	}
	return launch(ctx, k, n, 0, r.AccDense(), a.AccDense(), b.AccDense(), uint32(n))
}

// reduce folds per-group partials on the host, which needs them back: the
// executor waits for the device.
func reduce[T types.Element](ctx *engine.DispatchContext, t *schedule.Reduce[T]) error {
	v := t.V()
	if err := v.Validate(container.VectorAccDense, storage.ReadOnly); err != nil {
		return err
	}
	k, err := kernel(ctx, kernels.Reduce, "reduce", spec(kernels.OpReduce, t.Op()))
	if err != nil {
		return err
	}

	acc := ctx.Accelerator()
	geo := accel.Geometry(v.Size(), acc.DefaultWorkgroupSize(), 0)
	size := types.Of[T]().Size()
	partials, err := acc.Memory().Alloc(geo.Groups() * size)
	if err != nil {
		return err
	}
	defer partials.Release()
	flags, err := acc.Memory().Alloc(geo.Groups() * 4)
	if err != nil {
		return err
	}
	defer flags.Release()

	if err := launch(ctx, k, v.Size(), 0, partials, flags, v.AccDense(), uint32(v.Size())); err != nil {
		return err
	}
	hostPartials := make([]T, geo.Groups())
	hostFlags := make([]uint32, geo.Groups())
	q := acc.DefaultQueue()
	if err := q.EnqueueRead(partials, 0, accel.AsBytes(hostPartials)); err != nil {
		return err
	}
	if err := q.EnqueueRead(flags, 0, accel.AsBytes(hostFlags)); err != nil {
		return err
	}
	if err := q.Finish(); err != nil {
		return err
	}

	sum := t.Init()
	for g, p := range hostPartials {
		if hostFlags[g] != 0 {
			sum = t.Op().Apply(sum, p)
		}
	}
	t.R().Set(sum)
	return nil
}

func mxv[T types.Element](ctx *engine.DispatchContext, t *schedule.MxV[T]) error {
	r, m, v := t.R(), t.M(), t.V()
	if r.Size() != m.Rows() || v.Size() != m.Cols() {
		return algo.InvalidArgument(t.Name(), "%dx%d matrix with vectors of size %d and %d",
			m.Rows(), m.Cols(), r.Size(), v.Size())
	}
	if err := m.Validate(container.MatrixAccCsr, storage.ReadOnly); err != nil {
		return err
	}
	if err := v.Validate(container.VectorAccDense, storage.ReadOnly); err != nil {
		return err
	}
	k, err := kernel(ctx, kernels.MxV, "mxv",
		spec(kernels.OpMultiply, t.Multiply()),
		spec(kernels.OpReduce, t.Add()))
	if err != nil {
		return err
	}
	csr := m.AccCsr()
	acc := ctx.Accelerator()

	if r != v {
		if err := r.Validate(container.VectorAccDense, storage.WriteDiscard); err != nil {
			return err
		}
		return launch(ctx, k, m.Rows(), 0, r.AccDense(), csr.Ap, csr.Aj, csr.Ax, v.AccDense(), uint32(m.Rows()), t.Init())
	}

	// Rows read all of v while writing r, so an aliased result goes through
	// a scratch buffer.
	size := m.Rows() * types.Of[T]().Size()
	scratch, err := acc.Memory().Alloc(size)
	if err != nil {
		return err
	}
	defer scratch.Release()
	if err := launch(ctx, k, m.Rows(), 0, scratch, csr.Ap, csr.Aj, csr.Ax, v.AccDense(), uint32(m.Rows()), t.Init()); err != nil {
		return err
	}
	if err := r.Validate(container.VectorAccDense, storage.WriteDiscard); err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	return acc.DefaultQueue().EnqueueCopy(scratch, 0, r.AccDense(), 0, size)
}

func reduceByRow[T types.Element](ctx *engine.DispatchContext, t *schedule.ReduceByRow[T]) error {
	r, m := t.R(), t.M()
	if r.Size() != m.Rows() {
		return algo.InvalidArgument(t.Name(), "vector size %d, matrix has %d rows", r.Size(), m.Rows())
	}
	if err := m.Validate(container.MatrixAccCsr, storage.ReadOnly); err != nil {
		return err
	}
	if err := r.Validate(container.VectorAccDense, storage.WriteDiscard); err != nil {
		return err
	}
	k, err := kernel(ctx, kernels.ReduceByRow, "reduce_by_row", spec(kernels.OpReduce, t.Op()))
	if err != nil {
		return err
	}
	csr := m.AccCsr()
	return launch(ctx, k, m.Rows(), 0, r.AccDense(), csr.Ap, csr.Ax, uint32(m.Rows()), t.Init())
}
