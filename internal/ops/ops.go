// Package ops provides typed operator objects applied by executors.
//
// An operator carries two renditions of the same function: a Go function used by
// host executors and host kernels, and a kernel expression (Body) substituted into
// accelerator kernel templates. Bodies are written in terms of the operands a and b.
package ops

import (
	"fmt"
	"hash/fnv"

	"github.com/born-ml/sparse/internal/types"
)

// Op is the type-erased view of an operator used for kernel specialization.
type Op interface {
	// Name returns the operator name, e.g. "PLUS".
	Name() string
	// Key identifies the operator specialization: name, element type and a
	// hash of the body, so same-named operators with different bodies never
	// share a compiled program.
	Key() string
	// Type returns the element type the operator is specialized for.
	Type() *types.Type
	// Body returns the kernel expression of the operator.
	Body() string
	// Arity returns the number of operands.
	Arity() int
}

// Unary is a function object T -> T.
type Unary[T types.Element] struct {
	name string
	body string
	key  string
	fn   func(a T) T
}

// NewUnary creates a custom unary operator.
func NewUnary[T types.Element](name, body string, fn func(a T) T) *Unary[T] {
	return &Unary[T]{name: name, body: body, key: opKey[T](name, body), fn: fn}
}

// Name returns the operator name.
func (op *Unary[T]) Name() string { return op.name }

// Key returns the operator specialization key.
func (op *Unary[T]) Key() string { return op.key }

// Type returns the element type.
func (op *Unary[T]) Type() *types.Type { return types.Of[T]() }

// Body returns the kernel expression.
func (op *Unary[T]) Body() string { return op.body }

// Arity returns 1.
func (op *Unary[T]) Arity() int { return 1 }

// Apply evaluates the operator on the host.
func (op *Unary[T]) Apply(a T) T { return op.fn(a) }

// Binary is a function object (T, T) -> T.
type Binary[T types.Element] struct {
	name string
	body string
	key  string
	fn   func(a, b T) T
}

// NewBinary creates a custom binary operator.
func NewBinary[T types.Element](name, body string, fn func(a, b T) T) *Binary[T] {
	return &Binary[T]{name: name, body: body, key: opKey[T](name, body), fn: fn}
}

// Name returns the operator name.
func (op *Binary[T]) Name() string { return op.name }

// Key returns the operator specialization key.
func (op *Binary[T]) Key() string { return op.key }

// Type returns the element type.
func (op *Binary[T]) Type() *types.Type { return types.Of[T]() }

// Body returns the kernel expression.
func (op *Binary[T]) Body() string { return op.body }

// Arity returns 2.
func (op *Binary[T]) Arity() int { return 2 }

// Apply evaluates the operator on the host.
func (op *Binary[T]) Apply(a, b T) T { return op.fn(a, b) }

func opKey[T types.Element](name, body string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(body))
	return fmt.Sprintf("%s_%s_%08x", name, types.Of[T]().Code(), h.Sum32())
}

// Compile-time interface checks.
var (
	_ Op = (*Unary[float32])(nil)
	_ Op = (*Binary[float32])(nil)
)
