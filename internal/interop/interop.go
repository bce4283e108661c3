// Package interop converts between sparse containers and gonum dense types.
package interop

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/container"
)

// FromDense builds a sparse matrix from the nonzero elements of d.
func FromDense(d mat.Matrix, acc accel.Accelerator) (*container.Matrix[float64], error) {
	rows, cols := d.Dims()
	var I, J []uint32
	var X []float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if x := d.At(i, j); x != 0 {
				I, J, X = append(I, uint32(i)), append(J, uint32(j)), append(X, x)
			}
		}
	}
	m := container.NewMatrix[float64](rows, cols, acc)
	if err := m.Build(I, J, X); err != nil {
		m.Release()
		return nil, errors.Wrap(err, "interop: build")
	}
	return m, nil
}

// ToDense expands a sparse matrix into a gonum dense matrix. Unstored
// elements take the matrix fill value.
func ToDense(m *container.Matrix[float64]) (*mat.Dense, error) {
	I, J, X, err := m.Read()
	if err != nil {
		return nil, err
	}
	if m.Rows() == 0 || m.Cols() == 0 {
		return &mat.Dense{}, nil
	}
	d := mat.NewDense(m.Rows(), m.Cols(), nil)
	if fill := m.Fill(); fill != 0 {
		raw := d.RawMatrix().Data
		for k := range raw {
			raw[k] = fill
		}
	}
	for k, x := range X {
		d.Set(int(I[k]), int(J[k]), x)
	}
	return d, nil
}

// FromVecDense builds a sparse vector holding every element of v.
func FromVecDense(v mat.Vector, acc accel.Accelerator) (*container.Vector[float64], error) {
	n := v.Len()
	keys := make([]uint32, n)
	values := make([]float64, n)
	for i := range keys {
		keys[i], values[i] = uint32(i), v.AtVec(i)
	}
	r := container.NewVector[float64](n, acc)
	if err := r.Build(keys, values); err != nil {
		r.Release()
		return nil, errors.Wrap(err, "interop: build")
	}
	return r, nil
}

// ToVecDense copies a vector into a gonum dense vector.
func ToVecDense(v *container.Vector[float64]) (*mat.VecDense, error) {
	values, err := v.Values()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return &mat.VecDense{}, nil
	}
	return mat.NewVecDense(len(values), values), nil
}
