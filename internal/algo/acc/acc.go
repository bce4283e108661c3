// Package acc implements the acc backend executors. They run kernels from
// internal/kernels on the library accelerator through the program cache and
// return once the work is enqueued.
package acc

import (
	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/algo"
	"github.com/born-ml/sparse/internal/engine"
	"github.com/born-ml/sparse/internal/kernels"
	"github.com/born-ml/sparse/internal/ops"
	"github.com/born-ml/sparse/internal/progcache"
	"github.com/born-ml/sparse/internal/schedule"
	"github.com/born-ml/sparse/internal/types"
)

// RegisterAll registers the acc executors of every supported operation and
// element type. m_extract_column has no device implementation.
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
		algo.Register(r, schedule.OpExtractRow, t, engine.BackendAcc, "extract a matrix row on the accelerator", extractRow[T]),
		algo.Register(r, schedule.OpMap, t, engine.BackendAcc, "apply a unary operator on the accelerator", vmap[T]),
		algo.Register(r, schedule.OpEAdd, t, engine.BackendAcc, "combine two vectors on the accelerator", eadd[T]),
		algo.Register(r, schedule.OpReduce, t, engine.BackendAcc, "fold a vector on the accelerator", reduce[T]),
		algo.Register(r, schedule.OpMxV, t, engine.BackendAcc, "sparse matrix-vector product on the accelerator", mxv[T]),
		algo.Register(r, schedule.OpReduceByRow, t, engine.BackendAcc, "fold matrix rows on the accelerator", reduceByRow[T]),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// kernel acquires the specialized program and creates an invocation of entry.
func kernel(ctx *engine.DispatchContext, program, entry string, specs ...progcache.Specialization) (accel.Kernel, error) {
	acc, cache := ctx.Accelerator(), ctx.Programs()
	if acc == nil || cache == nil {
		return nil, engine.Errorf(engine.StatusNoAcceleration, "%s: no accelerator", program)
	}
	p, ok := kernels.Lookup(program)
	if !ok {
		return nil, engine.Errorf(engine.StatusNotImplemented, "%s: no kernel program", program)
	}
	src, err := p.Source(acc.Dialect())
	if err != nil {
		return nil, engine.WithStatus(engine.StatusNotImplemented, err)
	}
	prog, err := cache.Acquire(progcache.Spec{Name: program, Type: ctx.Type, Ops: specs, Source: src})
	if err != nil {
		return nil, err
	}
	return prog.MakeKernel(entry)
}

// setArgs binds args in order.
func setArgs(k accel.Kernel, args ...any) error {
	for i, a := range args {
		if err := k.SetArg(i, a); err != nil {
			return err
		}
	}
	return nil
}

func spec(placeholder string, op ops.Op) progcache.Specialization {
	return progcache.Specialization{Placeholder: placeholder, Op: op}
}

// launch binds args and enqueues k over n items on the default queue.
func launch(ctx *engine.DispatchContext, k accel.Kernel, n, offset int, args ...any) error {
	if err := setArgs(k, args...); err != nil {
		return err
	}
	acc := ctx.Accelerator()
	r := accel.Geometry(n, acc.DefaultWorkgroupSize(), offset)
	return errors.Wrapf(acc.DefaultQueue().EnqueueKernel(k, r), "enqueue %s", k.Name())
}
