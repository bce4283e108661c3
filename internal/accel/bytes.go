package accel

import (
	"math"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/types"
)

// AsBytes reinterprets a typed slice as bytes without copying.
func AsBytes[T types.Element](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	//nolint:gosec // unsafe.Slice for zero-copy conversion, length derived from len(s)
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}

// Slice reinterprets bytes as a typed slice without copying.
// The byte slice must be aligned for T; buffers allocated by this package are.
func Slice[T types.Element](b []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(b) < size {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy conversion, length derived from len(b)
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), len(b)/size)
}

// AlignedBytes allocates n zeroed bytes aligned to 8 bytes.
func AlignedBytes(n int) []byte {
	if n == 0 {
		return nil
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n) //nolint:gosec // backing array outlives the view
}

// ScalarArg converts a scalar kernel argument to T.
func ScalarArg[T types.Element](v any) (T, error) {
	switch x := v.(type) {
	case T:
		return x, nil
	case uint32:
		var zero T
		switch any(zero).(type) {
		case float32:
			return any(math.Float32frombits(x)).(T), nil
		default:
			return T(x), nil
		}
	default:
		var zero T
		return zero, errors.Errorf("accel: scalar argument %T is not %T", v, zero)
	}
}

// HostBuffer is a Buffer whose memory is directly addressable by the host.
// Host kernels of the software accelerator operate on HostBuffers.
type HostBuffer interface {
	Buffer
	Bytes() []byte
}
