// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package sparse

import (
	"io"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/sparse/internal/interop"
	"github.com/born-ml/sparse/internal/mtx"
	"github.com/born-ml/sparse/internal/serialization"
)

// ReadMatrixMarket reads a Matrix Market coordinate file into a matrix on
// the library accelerator.
func ReadMatrixMarket[T Element](lib *Library, r io.Reader) (*Matrix[T], error) {
	return mtx.Load[T](r, lib.Accelerator())
}

// WriteMatrixMarket writes m as a "coordinate real general" Matrix Market file.
func WriteMatrixMarket[T Element](w io.Writer, m *Matrix[T]) error {
	return mtx.Store(w, m)
}

// SaveMatrix stores m in the .spm snapshot format. metadata may be nil.
func SaveMatrix[T Element](path string, m *Matrix[T], metadata map[string]string) error {
	return serialization.WriteFile(path, m, metadata)
}

// LoadMatrix memory-maps a .spm snapshot and loads it onto the library
// accelerator. The element type must match the one the file was saved with.
func LoadMatrix[T Element](lib *Library, path string) (*Matrix[T], error) {
	return serialization.ReadFile[T](path, lib.Accelerator())
}

// FromDense builds a matrix from the nonzero elements of a gonum matrix.
func FromDense(lib *Library, d mat.Matrix) (*Matrix[float64], error) {
	return interop.FromDense(d, lib.Accelerator())
}

// ToDense expands m into a gonum dense matrix.
func ToDense(m *Matrix[float64]) (*mat.Dense, error) {
	return interop.ToDense(m)
}
