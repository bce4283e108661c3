package schedule

import (
	"github.com/born-ml/sparse/internal/container"
	"github.com/born-ml/sparse/internal/ops"
	"github.com/born-ml/sparse/internal/types"
)

// Operation names.
const (
	OpExtractRow    = "m_extract_row"
	OpExtractColumn = "m_extract_column"
	OpMap           = "v_map"
	OpEAdd          = "v_eadd"
	OpReduce        = "v_reduce"
	OpMxV           = "mxv"
	OpReduceByRow   = "m_reduce_by_row"
)

// ExtractRow writes r[j] = op(M[index, j]) for the stored entries of a row.
type ExtractRow[T types.Element] struct {
	base
	r     *container.Vector[T]
	m     *container.Matrix[T]
	index int
	op    *ops.Unary[T]
}

// NewExtractRow creates an m_extract_row task.
func NewExtractRow[T types.Element](r *container.Vector[T], m *container.Matrix[T], index int, op *ops.Unary[T], opts ...Option) *ExtractRow[T] {
	return &ExtractRow[T]{
		base:  newBase(OpExtractRow, types.Of[T](), opts, r, m),
		r:     r,
		m:     m,
		index: index,
		op:    op,
	}
}

func (t *ExtractRow[T]) R() *container.Vector[T] { return t.r }
func (t *ExtractRow[T]) M() *container.Matrix[T] { return t.m }
func (t *ExtractRow[T]) Index() int              { return t.index }
func (t *ExtractRow[T]) Op() *ops.Unary[T]       { return t.op }

// ExtractColumn writes r[i] = op(M[i, index]) for the stored entries of a column.
type ExtractColumn[T types.Element] struct {
	base
	r     *container.Vector[T]
	m     *container.Matrix[T]
	index int
	op    *ops.Unary[T]
}

// NewExtractColumn creates an m_extract_column task.
func NewExtractColumn[T types.Element](r *container.Vector[T], m *container.Matrix[T], index int, op *ops.Unary[T], opts ...Option) *ExtractColumn[T] {
	return &ExtractColumn[T]{
		base:  newBase(OpExtractColumn, types.Of[T](), opts, r, m),
		r:     r,
		m:     m,
		index: index,
		op:    op,
	}
}

func (t *ExtractColumn[T]) R() *container.Vector[T] { return t.r }
func (t *ExtractColumn[T]) M() *container.Matrix[T] { return t.m }
func (t *ExtractColumn[T]) Index() int              { return t.index }
func (t *ExtractColumn[T]) Op() *ops.Unary[T]       { return t.op }

// Map writes r[i] = op(v[i]).
type Map[T types.Element] struct {
	base
	r, v *container.Vector[T]
	op   *ops.Unary[T]
}

// NewMap creates a v_map task.
func NewMap[T types.Element](r, v *container.Vector[T], op *ops.Unary[T], opts ...Option) *Map[T] {
	return &Map[T]{base: newBase(OpMap, types.Of[T](), opts, r, v), r: r, v: v, op: op}
}

func (t *Map[T]) R() *container.Vector[T] { return t.r }
func (t *Map[T]) V() *container.Vector[T] { return t.v }
func (t *Map[T]) Op() *ops.Unary[T]       { return t.op }

// EAdd writes r[i] = op(a[i], b[i]).
type EAdd[T types.Element] struct {
	base
	r, a, b *container.Vector[T]
	op      *ops.Binary[T]
}

// NewEAdd creates a v_eadd task.
func NewEAdd[T types.Element](r, a, b *container.Vector[T], op *ops.Binary[T], opts ...Option) *EAdd[T] {
	return &EAdd[T]{base: newBase(OpEAdd, types.Of[T](), opts, r, a, b), r: r, a: a, b: b, op: op}
}

func (t *EAdd[T]) R() *container.Vector[T] { return t.r }
func (t *EAdd[T]) A() *container.Vector[T] { return t.a }
func (t *EAdd[T]) B() *container.Vector[T] { return t.b }
func (t *EAdd[T]) Op() *ops.Binary[T]      { return t.op }

// Reduce folds every element of v into r, starting from init.
type Reduce[T types.Element] struct {
	base
	r    *container.Scalar[T]
	v    *container.Vector[T]
	init T
	op   *ops.Binary[T]
}

// NewReduce creates a v_reduce task.
func NewReduce[T types.Element](r *container.Scalar[T], v *container.Vector[T], init T, op *ops.Binary[T], opts ...Option) *Reduce[T] {
	return &Reduce[T]{base: newBase(OpReduce, types.Of[T](), opts, r, v), r: r, v: v, init: init, op: op}
}

func (t *Reduce[T]) R() *container.Scalar[T] { return t.r }
func (t *Reduce[T]) V() *container.Vector[T] { return t.v }
func (t *Reduce[T]) Init() T                 { return t.init }
func (t *Reduce[T]) Op() *ops.Binary[T]      { return t.op }

// MxV writes r[i] = init add (M[i, j] multiply v[j]) over the stored entries of row i.
type MxV[T types.Element] struct {
	base
	r, v     *container.Vector[T]
	m        *container.Matrix[T]
	multiply *ops.Binary[T]
	add      *ops.Binary[T]
	init     T
}

// NewMxV creates an mxv task.
func NewMxV[T types.Element](r *container.Vector[T], m *container.Matrix[T], v *container.Vector[T], multiply, add *ops.Binary[T], init T, opts ...Option) *MxV[T] {
	return &MxV[T]{
		base:     newBase(OpMxV, types.Of[T](), opts, r, m, v),
		r:        r,
		m:        m,
		v:        v,
		multiply: multiply,
		add:      add,
		init:     init,
	}
}

func (t *MxV[T]) R() *container.Vector[T]  { return t.r }
func (t *MxV[T]) M() *container.Matrix[T]  { return t.m }
func (t *MxV[T]) V() *container.Vector[T]  { return t.v }
func (t *MxV[T]) Multiply() *ops.Binary[T] { return t.multiply }
func (t *MxV[T]) Add() *ops.Binary[T]      { return t.add }
func (t *MxV[T]) Init() T                  { return t.init }

// ReduceByRow writes r[i] = init op M[i, j] over the stored entries of row i.
type ReduceByRow[T types.Element] struct {
	base
	r    *container.Vector[T]
	m    *container.Matrix[T]
	op   *ops.Binary[T]
	init T
}

// NewReduceByRow creates an m_reduce_by_row task.
func NewReduceByRow[T types.Element](r *container.Vector[T], m *container.Matrix[T], op *ops.Binary[T], init T, opts ...Option) *ReduceByRow[T] {
	return &ReduceByRow[T]{base: newBase(OpReduceByRow, types.Of[T](), opts, r, m), r: r, m: m, op: op, init: init}
}

func (t *ReduceByRow[T]) R() *container.Vector[T] { return t.r }
func (t *ReduceByRow[T]) M() *container.Matrix[T] { return t.m }
func (t *ReduceByRow[T]) Op() *ops.Binary[T]      { return t.op }
func (t *ReduceByRow[T]) Init() T                 { return t.init }

// Compile-time interface checks.
var (
	_ Task = (*ExtractRow[float32])(nil)
	_ Task = (*ExtractColumn[float32])(nil)
	_ Task = (*Map[float32])(nil)
	_ Task = (*EAdd[float32])(nil)
	_ Task = (*Reduce[float32])(nil)
	_ Task = (*MxV[float32])(nil)
	_ Task = (*ReduceByRow[float32])(nil)
)
