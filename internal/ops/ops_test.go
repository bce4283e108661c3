package ops

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/sparse/internal/types"
)

func TestUnaryBuiltins(t *testing.T) {
	assert.Equal(t, float32(3), Identity[float32]().Apply(3))
	assert.Equal(t, int32(-3), AInv[int32]().Apply(3))
	assert.Equal(t, float64(0.5), MInv[float64]().Apply(2))
	assert.Equal(t, int32(0), MInv[int32]().Apply(0))
	assert.Equal(t, int32(4), Abs[int32]().Apply(-4))
	assert.Equal(t, uint32(4), Abs[uint32]().Apply(4))
	assert.Equal(t, float32(1), One[float32]().Apply(42))
	assert.Equal(t, float32(0), Zero[float32]().Apply(42))
	assert.True(t, math.IsInf(float64(MInv[float32]().Apply(0)), 1))
}

func TestBinaryBuiltins(t *testing.T) {
	assert.Equal(t, int32(5), Plus[int32]().Apply(2, 3))
	assert.Equal(t, int32(-1), Minus[int32]().Apply(2, 3))
	assert.Equal(t, float32(6), Mult[float32]().Apply(2, 3))
	assert.Equal(t, uint32(0), Div[uint32]().Apply(7, 0))
	assert.Equal(t, uint32(3), Div[uint32]().Apply(7, 2))
	assert.Equal(t, float64(2), Min[float64]().Apply(2, 3))
	assert.Equal(t, float64(3), Max[float64]().Apply(2, 3))
	assert.Equal(t, int32(2), First[int32]().Apply(2, 3))
	assert.Equal(t, int32(3), Second[int32]().Apply(2, 3))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "PLUS_f32_665b103f", Plus[float32]().Key())
	assert.Equal(t, "PLUS_i32_665b103f", Plus[int32]().Key())
	assert.Equal(t, "IDENTITY_u32_e40c292c", Identity[uint32]().Key())
	assert.Same(t, types.Float64, Max[float64]().Type())
	assert.Equal(t, 1, Abs[float32]().Arity())
	assert.Equal(t, 2, Min[float32]().Arity())
}

func TestBodiesFollowType(t *testing.T) {
	assert.Equal(t, "-a", AInv[int32]().Body())
	assert.Equal(t, "0u - a", AInv[uint32]().Body())
	assert.Equal(t, "1 / a", MInv[float32]().Body())
	assert.Contains(t, Div[int32]().Body(), "select")
}

func TestCustomOperator(t *testing.T) {
	sq := NewUnary("SQR", "a * a", func(a float32) float32 { return a * a })
	assert.Equal(t, float32(9), sq.Apply(3))
	assert.Equal(t, "SQR_f32_2a7461ad", sq.Key())
	assert.Equal(t, "a * a", sq.Body())
}

func TestKeyFollowsBody(t *testing.T) {
	sq := NewUnary("F", "a * a", func(a float32) float32 { return a * a })
	dbl := NewUnary("F", "2 * a", func(a float32) float32 { return 2 * a })
	assert.Equal(t, sq.Name(), dbl.Name())
	assert.NotEqual(t, sq.Key(), dbl.Key())
	assert.Equal(t, sq.Key(), NewUnary("F", "a * a", func(a float32) float32 { return a * a }).Key())

	plus := NewBinary("F", "a + b", func(a, b int32) int32 { return a + b })
	assert.NotEqual(t, plus.Key(), NewBinary("F", "a", func(a, _ int32) int32 { return a }).Key())
}
