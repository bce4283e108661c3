package container

import (
	"sync"

	"github.com/born-ml/sparse/internal/types"
)

// Scalar is a typed single value, used as reduction result and task parameter.
type Scalar[T types.Element] struct {
	refCount

	mu    sync.Mutex
	value T
}

// NewScalar creates a scalar holding v.
func NewScalar[T types.Element](v T) *Scalar[T] {
	s := &Scalar[T]{value: v}
	s.init()
	return s
}

// Type returns the element type.
func (s *Scalar[T]) Type() *types.Type { return types.Of[T]() }

// Get returns the value.
func (s *Scalar[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set replaces the value.
func (s *Scalar[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
}

// Release drops a reference.
func (s *Scalar[T]) Release() { s.drop() }

// Compile-time interface check.
var _ Object = (*Scalar[float32])(nil)
