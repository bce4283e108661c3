package kernels

import (
	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/types"
)

func init() {
	registerHostFor[int32]()
	registerHostFor[uint32]()
	registerHostFor[float32]()
	registerHostFor[float64]()
}

func registerHostFor[T types.Element]() {
	t := types.Of[T]()
	RegisterHost(ExtractRow, "extract_row", t, hostExtractRowKernel[T])
	RegisterHost(Map, "map", t, hostMapKernel[T])
	RegisterHost(EAdd, "eadd", t, hostEAddKernel[T])
	RegisterHost(Reduce, "reduce", t, hostReduceKernel[T])
	RegisterHost(MxV, "mxv", t, hostMxVKernel[T])
	RegisterHost(ReduceByRow, "reduce_by_row", t, hostReduceByRowKernel[T])
}

// Args: r, Ax, Aj, end.
func hostExtractRowKernel[T types.Element](src accel.Source) (Func, error) {
	op, err := UnaryOp[T](src, OpApply)
	if err != nil {
		return nil, err
	}
	return func(g Group, args Args) error {
		r, err := Buf[T](args, 0)
		if err != nil {
			return err
		}
		ax, err := Buf[T](args, 1)
		if err != nil {
			return err
		}
		aj, err := Buf[uint32](args, 2)
		if err != nil {
			return err
		}
		end, err := Count(args, 3)
		if err != nil {
			return err
		}
		g.Lanes(end, func(k int) {
			r[aj[k]] = op.Apply(ax[k])
		})
		return nil
	}, nil
}

// Args: r, v, n.
func hostMapKernel[T types.Element](src accel.Source) (Func, error) {
	op, err := UnaryOp[T](src, OpApply)
	if err != nil {
		return nil, err
	}
	return func(g Group, args Args) error {
		r, err := Buf[T](args, 0)
		if err != nil {
			return err
		}
		v, err := Buf[T](args, 1)
		if err != nil {
			return err
		}
		n, err := Count(args, 2)
		if err != nil {
			return err
		}
		g.Lanes(n, func(i int) {
			r[i] = op.Apply(v[i])
		})
		return nil
	}, nil
}

// Args: r, a, b, n.
func hostEAddKernel[T types.Element](src accel.Source) (Func, error) {
	op, err := BinaryOp[T](src, OpBinary)
	if err != nil {
		return nil, err
	}
	return func(g Group, args Args) error {
		r, err := Buf[T](args, 0)
		if err != nil {
			return err
		}
		a, err := Buf[T](args, 1)
		if err != nil {
			return err
		}
		b, err := Buf[T](args, 2)
		if err != nil {
			return err
		}
		n, err := Count(args, 3)
		if err != nil {
			return err
		}
		g.Lanes(n, func(i int) {
			r[i] = op.Apply(a[i], b[i])
		})
		return nil
	}, nil
}

// Args: partials, flags, v, n. One partial per work-group.
func hostReduceKernel[T types.Element](src accel.Source) (Func, error) {
	op, err := BinaryOp[T](src, OpReduce)
	if err != nil {
		return nil, err
	}
	return func(g Group, args Args) error {
		partials, err := Buf[T](args, 0)
		if err != nil {
			return err
		}
		flags, err := Buf[uint32](args, 1)
		if err != nil {
			return err
		}
		v, err := Buf[T](args, 2)
		if err != nil {
			return err
		}
		n, err := Count(args, 3)
		if err != nil {
			return err
		}
		if g.ID >= len(partials) || g.ID >= len(flags) {
			return errors.Errorf("kernels: reduce group %d outside %d partials", g.ID, len(partials))
		}
		var sum T
		seen := false
		g.Lanes(n, func(i int) {
			if !seen {
				sum, seen = v[i], true
				return
			}
			sum = op.Apply(sum, v[i])
		})
		partials[g.ID] = sum
		flags[g.ID] = 0
		if seen {
			flags[g.ID] = 1
		}
		return nil
	}, nil
}

// Args: r, Ap, Aj, Ax, v, nrows, init.
func hostMxVKernel[T types.Element](src accel.Source) (Func, error) {
	mul, err := BinaryOp[T](src, OpMultiply)
	if err != nil {
		return nil, err
	}
	add, err := BinaryOp[T](src, OpReduce)
	if err != nil {
		return nil, err
	}
	return func(g Group, args Args) error {
		r, err := Buf[T](args, 0)
		if err != nil {
			return err
		}
		ap, err := Buf[uint32](args, 1)
		if err != nil {
			return err
		}
		aj, err := Buf[uint32](args, 2)
		if err != nil {
			return err
		}
		ax, err := Buf[T](args, 3)
		if err != nil {
			return err
		}
		v, err := Buf[T](args, 4)
		if err != nil {
			return err
		}
		nrows, err := Count(args, 5)
		if err != nil {
			return err
		}
		init, err := Scalar[T](args, 6)
		if err != nil {
			return err
		}
		g.Lanes(nrows, func(row int) {
			sum := init
			for k := ap[row]; k < ap[row+1]; k++ {
				sum = add.Apply(sum, mul.Apply(ax[k], v[aj[k]]))
			}
			r[row] = sum
		})
		return nil
	}, nil
}

// Args: r, Ap, Ax, nrows, init.
func hostReduceByRowKernel[T types.Element](src accel.Source) (Func, error) {
	op, err := BinaryOp[T](src, OpReduce)
	if err != nil {
		return nil, err
	}
	return func(g Group, args Args) error {
		r, err := Buf[T](args, 0)
		if err != nil {
			return err
		}
		ap, err := Buf[uint32](args, 1)
		if err != nil {
			return err
		}
		ax, err := Buf[T](args, 2)
		if err != nil {
			return err
		}
		nrows, err := Count(args, 3)
		if err != nil {
			return err
		}
		init, err := Scalar[T](args, 4)
		if err != nil {
			return err
		}
		g.Lanes(nrows, func(row int) {
			sum := init
			for k := ap[row]; k < ap[row+1]; k++ {
				sum = op.Apply(sum, ax[k])
			}
			r[row] = sum
		})
		return nil
	}, nil
}
