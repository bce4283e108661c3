// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package sparse

import (
	"github.com/born-ml/sparse/internal/ops"
	"github.com/born-ml/sparse/internal/schedule"
)

// Task is an immutable operation with retained operands.
type Task = schedule.Task

// TaskOption configures a task.
type TaskOption = schedule.Option

// Placement constrains where a task runs.
type Placement = schedule.Placement

// Placements.
const (
	Auto        = schedule.Auto
	Host        = schedule.Host
	Accelerator = schedule.Accelerator
)

// On pins a task to a placement.
func On(p Placement) TaskOption { return schedule.On(p) }

// Unary is a typed function object T -> T.
type Unary[T Element] = ops.Unary[T]

// Binary is a typed function object (T, T) -> T.
type Binary[T Element] = ops.Binary[T]

// NewUnary creates a custom unary operator. body is its kernel expression in a.
func NewUnary[T Element](name, body string, fn func(a T) T) *Unary[T] {
	return ops.NewUnary(name, body, fn)
}

// NewBinary creates a custom binary operator. body is its kernel expression in a and b.
func NewBinary[T Element](name, body string, fn func(a, b T) T) *Binary[T] {
	return ops.NewBinary(name, body, fn)
}

// Built-in operators.

func Identity[T Element]() *Unary[T] { return ops.Identity[T]() }
func AInv[T Element]() *Unary[T]     { return ops.AInv[T]() }
func MInv[T Element]() *Unary[T]     { return ops.MInv[T]() }
func Abs[T Element]() *Unary[T]      { return ops.Abs[T]() }
func One[T Element]() *Unary[T]      { return ops.One[T]() }
func Zero[T Element]() *Unary[T]     { return ops.Zero[T]() }
func Plus[T Element]() *Binary[T]    { return ops.Plus[T]() }
func Minus[T Element]() *Binary[T]   { return ops.Minus[T]() }
func Mult[T Element]() *Binary[T]    { return ops.Mult[T]() }
func Div[T Element]() *Binary[T]     { return ops.Div[T]() }
func Min[T Element]() *Binary[T]     { return ops.Min[T]() }
func Max[T Element]() *Binary[T]     { return ops.Max[T]() }
func First[T Element]() *Binary[T]   { return ops.First[T]() }
func Second[T Element]() *Binary[T]  { return ops.Second[T]() }

// NewExtractRow creates r = op(M[index, :]).
func NewExtractRow[T Element](r *Vector[T], m *Matrix[T], index int, op *Unary[T], opts ...TaskOption) Task {
	return schedule.NewExtractRow(r, m, index, op, opts...)
}

// NewExtractColumn creates r = op(M[:, index]).
func NewExtractColumn[T Element](r *Vector[T], m *Matrix[T], index int, op *Unary[T], opts ...TaskOption) Task {
	return schedule.NewExtractColumn(r, m, index, op, opts...)
}

// NewMap creates r = op(v) elementwise. r may be v.
func NewMap[T Element](r, v *Vector[T], op *Unary[T], opts ...TaskOption) Task {
	return schedule.NewMap(r, v, op, opts...)
}

// NewEAdd creates r = op(a, b) elementwise. r may be a or b.
func NewEAdd[T Element](r, a, b *Vector[T], op *Binary[T], opts ...TaskOption) Task {
	return schedule.NewEAdd(r, a, b, op, opts...)
}

// NewReduce creates r = fold(op, init, v).
func NewReduce[T Element](r *Scalar[T], v *Vector[T], init T, op *Binary[T], opts ...TaskOption) Task {
	return schedule.NewReduce(r, v, init, op, opts...)
}

// NewMxV creates r[i] = add-fold of multiply(M[i, j], v[j]) over the stored j, starting at init.
func NewMxV[T Element](r *Vector[T], m *Matrix[T], v *Vector[T], multiply, add *Binary[T], init T, opts ...TaskOption) Task {
	return schedule.NewMxV(r, m, v, multiply, add, init, opts...)
}

// NewReduceByRow creates r[i] = fold(op, init, M[i, :]).
func NewReduceByRow[T Element](r *Vector[T], m *Matrix[T], op *Binary[T], init T, opts ...TaskOption) Task {
	return schedule.NewReduceByRow(r, m, op, init, opts...)
}

// Schedule runs ordered steps of tasks; tasks within a step run concurrently.
type Schedule = schedule.Schedule

// NewSchedule creates an empty schedule. Run it with lib.Dispatcher().
func NewSchedule() *Schedule { return schedule.New() }
