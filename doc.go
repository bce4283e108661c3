// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package sparse is a sparse linear algebra runtime with pluggable accelerators.
//
// The package exposes:
//   - Vector, Matrix, Scalar: typed containers that keep host and device
//     formats (dictionary of keys, coordinate, dense, CSR) in sync on demand
//   - Tasks: m_extract_row, m_extract_column, v_map, v_eadd, v_reduce, mxv
//     and m_reduce_by_row, dispatched to a host or accelerator executor
//   - Operators: typed unary and binary function objects such as Plus or AInv
//   - I/O: Matrix Market files, .spm snapshots and gonum dense matrices
//
// Accelerators are selected by name: "cpu" is the software accelerator,
// "webgpu" runs WGSL kernels on the GPU (windows builds). The
// SPARSE_ACCELERATOR environment variable overrides the default; "none"
// disables acceleration.
//
// Example:
//
//	lib, err := sparse.New(sparse.WithAccelerator("cpu"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer lib.Release()
//
//	m := sparse.NewMatrix[float32](lib, 4, 4)
//	_ = m.Build([]uint32{0, 3}, []uint32{1, 2}, []float32{1.5, -2})
//	r := sparse.NewVector[float32](lib, 4)
//	err = sparse.Dispatch(lib, sparse.NewExtractRow(r, m, 3, sparse.Identity[float32]()))
package sparse
