package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf(t *testing.T) {
	assert.Same(t, Int32, Of[int32]())
	assert.Same(t, Uint32, Of[uint32]())
	assert.Same(t, Float32, Of[float32]())
	assert.Same(t, Float64, Of[float64]())
}

func TestDescriptors(t *testing.T) {
	tests := []struct {
		typ  *Type
		size int
		name string
		code string
	}{
		{Int32, 4, "int32", "i32"},
		{Uint32, 4, "uint32", "u32"},
		{Float32, 4, "float32", "f32"},
		{Float64, 8, "float64", "f64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.size, tt.typ.Size())
			assert.Equal(t, tt.name, tt.typ.Name())
			assert.Equal(t, tt.name, tt.typ.String())
			assert.Equal(t, tt.code, tt.typ.Code())
		})
	}
}

func TestByCode(t *testing.T) {
	typ, ok := ByCode("f32")
	require.True(t, ok)
	assert.Same(t, Float32, typ)

	_, ok = ByCode("bf16")
	assert.False(t, ok)
}

func TestAllUniqueIDs(t *testing.T) {
	seen := make(map[int]bool)
	for _, typ := range All() {
		assert.False(t, seen[typ.ID()], "duplicate id %d", typ.ID())
		seen[typ.ID()] = true
	}
	assert.Len(t, seen, 4)
}
