package ops

import "github.com/born-ml/sparse/internal/types"

// isInteger reports whether T is an integer element type.
func isInteger[T types.Element]() bool {
	var zero T
	switch any(zero).(type) {
	case int32, uint32:
		return true
	default:
		return false
	}
}

func isUnsigned[T types.Element]() bool {
	var zero T
	_, ok := any(zero).(uint32)
	return ok
}

// Identity returns a.
func Identity[T types.Element]() *Unary[T] {
	return NewUnary("IDENTITY", "a", func(a T) T { return a })
}

// AInv returns the additive inverse -a. Unsigned values wrap.
func AInv[T types.Element]() *Unary[T] {
	body := "-a"
	if isUnsigned[T]() {
		body = "0u - a"
	}
	return NewUnary("AINV", body, func(a T) T { return -a })
}

// MInv returns the multiplicative inverse 1/a.
// For integer types the inverse of zero is zero.
func MInv[T types.Element]() *Unary[T] {
	if isInteger[T]() {
		return NewUnary("MINV", "select(1 / a, 0, a == 0)", func(a T) T {
			if a == 0 {
				return 0
			}
			return 1 / a
		})
	}
	return NewUnary("MINV", "1 / a", func(a T) T { return 1 / a })
}

// Abs returns |a|.
func Abs[T types.Element]() *Unary[T] {
	return NewUnary("ABS", "abs(a)", func(a T) T {
		if a < 0 {
			return -a
		}
		return a
	})
}

// One returns 1 regardless of the operand.
func One[T types.Element]() *Unary[T] {
	return NewUnary("ONE", "1", func(T) T { return 1 })
}

// Zero returns 0 regardless of the operand.
func Zero[T types.Element]() *Unary[T] {
	return NewUnary("ZERO", "0", func(T) T { return 0 })
}

// Plus returns a + b.
func Plus[T types.Element]() *Binary[T] {
	return NewBinary("PLUS", "a + b", func(a, b T) T { return a + b })
}

// Minus returns a - b.
func Minus[T types.Element]() *Binary[T] {
	return NewBinary("MINUS", "a - b", func(a, b T) T { return a - b })
}

// Mult returns a * b.
func Mult[T types.Element]() *Binary[T] {
	return NewBinary("MULT", "a * b", func(a, b T) T { return a * b })
}

// Div returns a / b. For integer types division by zero yields zero.
func Div[T types.Element]() *Binary[T] {
	if isInteger[T]() {
		return NewBinary("DIV", "select(a / b, 0, b == 0)", func(a, b T) T {
			if b == 0 {
				return 0
			}
			return a / b
		})
	}
	return NewBinary("DIV", "a / b", func(a, b T) T { return a / b })
}

// Min returns the smaller operand.
func Min[T types.Element]() *Binary[T] {
	return NewBinary("MIN", "min(a, b)", func(a, b T) T { return min(a, b) })
}

// Max returns the larger operand.
func Max[T types.Element]() *Binary[T] {
	return NewBinary("MAX", "max(a, b)", func(a, b T) T { return max(a, b) })
}

// First returns a.
func First[T types.Element]() *Binary[T] {
	return NewBinary("FIRST", "a", func(a, _ T) T { return a })
}

// Second returns b.
func Second[T types.Element]() *Binary[T] {
	return NewBinary("SECOND", "b", func(_, b T) T { return b })
}
