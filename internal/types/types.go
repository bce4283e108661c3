// Package types provides the runtime element type descriptors used by containers,
// operators, kernels and the algorithm registry.
package types

import "fmt"

// Element is a constraint for supported container element types.
// It uses Go generics to ensure compile-time type safety.
type Element interface {
	int32 | uint32 | float32 | float64
}

// Type describes an element type at runtime.
// Descriptors are process-wide singletons and are compared by pointer.
type Type struct {
	id   int
	size int
	name string
	code string
}

// Supported element types.
var (
	Int32   = &Type{id: 0, size: 4, name: "int32", code: "i32"}
	Uint32  = &Type{id: 1, size: 4, name: "uint32", code: "u32"}
	Float32 = &Type{id: 2, size: 4, name: "float32", code: "f32"}
	Float64 = &Type{id: 3, size: 8, name: "float64", code: "f64"}
)

var all = []*Type{Int32, Uint32, Float32, Float64}

// ID returns the unique type id.
func (t *Type) ID() int { return t.id }

// Size returns the byte size of one element.
func (t *Type) Size() int { return t.size }

// Name returns a human-readable name for the type.
func (t *Type) Name() string { return t.name }

// Code returns the code-generation tag substituted into kernel templates
// and used as the type component of registry and program cache keys.
func (t *Type) Code() string { return t.code }

// String implements fmt.Stringer.
func (t *Type) String() string { return t.name }

// All returns every supported type in id order.
func All() []*Type {
	return append([]*Type(nil), all...)
}

// ByCode looks up a descriptor by its code-generation tag.
func ByCode(code string) (*Type, bool) {
	for _, t := range all {
		if t.code == code {
			return t, true
		}
	}
	return nil, false
}

// Of returns the descriptor for the type parameter T.
func Of[T Element]() *Type {
	var zero T
	switch any(zero).(type) {
	case int32:
		return Int32
	case uint32:
		return Uint32
	case float32:
		return Float32
	case float64:
		return Float64
	default:
		panic(fmt.Sprintf("types: unsupported element type %T", zero))
	}
}
