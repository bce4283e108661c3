// Package kernels holds the kernel program templates for every accelerator
// dialect and the host kernel bodies executed by the software accelerator.
//
// Templates are text/template sources. Placeholders:
//
//	{{.TYPE}}            element type code (i32, u32, f32, f64)
//	{{.WORKGROUP_SIZE}}  accelerator default workgroup size
//	{{.OP_*}}            operator bodies (OP_APPLY, OP_BINARY, OP_REDUCE, OP_MULTIPLY)
package kernels

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/ops"
	"github.com/born-ml/sparse/internal/types"
)

// Program names. They double as registry operation names.
const (
	ExtractRow    = "m_extract_row"
	ExtractColumn = "m_extract_column"
	Map           = "v_map"
	EAdd          = "v_eadd"
	Reduce        = "v_reduce"
	MxV           = "mxv"
	ReduceByRow   = "m_reduce_by_row"
)

// Operator placeholders.
const (
	OpApply    = "OP_APPLY"
	OpBinary   = "OP_BINARY"
	OpReduce   = "OP_REDUCE"
	OpMultiply = "OP_MULTIPLY"
)

// Group is one work-group of a host kernel launch.
type Group struct {
	ID     int // work-group index
	Size   int // lanes per group
	Offset int // global id of lane 0 of group 0
	Global int // total lanes of the launch, the grid stride
}

// Lanes calls f for every global id owned by the group below bound,
// visiting the grid-stride positions of each lane.
func (g Group) Lanes(bound int, f func(gid int)) {
	for lane := 0; lane < g.Size; lane++ {
		for gid := g.Offset + g.ID*g.Size + lane; gid < bound; gid += g.Global {
			f(gid)
		}
	}
}

// Args are the bound arguments of a host kernel, indexed by argument position.
type Args []any

// Buf returns argument i as a typed view of a host buffer.
func Buf[T types.Element](args Args, i int) ([]T, error) {
	if i >= len(args) || args[i] == nil {
		return nil, errors.Errorf("kernels: argument %d not set", i)
	}
	b, ok := args[i].(accel.HostBuffer)
	if !ok {
		return nil, errors.Errorf("kernels: argument %d is %T, not a host buffer", i, args[i])
	}
	return accel.Slice[T](b.Bytes()), nil
}

// Scalar returns argument i as a scalar of type T.
func Scalar[T types.Element](args Args, i int) (T, error) {
	if i >= len(args) || args[i] == nil {
		var zero T
		return zero, errors.Errorf("kernels: argument %d not set", i)
	}
	return accel.ScalarArg[T](args[i])
}

// Count returns argument i as a non-negative element count.
func Count(args Args, i int) (int, error) {
	v, err := Scalar[uint32](args, i)
	return int(v), err
}

// Func is a host kernel body, invoked once per work-group.
type Func func(g Group, args Args) error

// Factory specializes a host kernel for the type and operators of a program.
type Factory func(src accel.Source) (Func, error)

type hostKey struct {
	program string
	entry   string
	code    string
}

var (
	hostMu    sync.RWMutex
	hostFuncs = make(map[hostKey]Factory)
)

// RegisterHost makes a host kernel factory available to the software accelerator.
func RegisterHost(program, entry string, t *types.Type, f Factory) {
	hostMu.Lock()
	defer hostMu.Unlock()
	hostFuncs[hostKey{program, entry, t.Code()}] = f
}

// LookupHost finds the host kernel factory of a program entry point.
func LookupHost(program, entry string, t *types.Type) (Factory, bool) {
	hostMu.RLock()
	defer hostMu.RUnlock()
	f, ok := hostFuncs[hostKey{program, entry, t.Code()}]
	return f, ok
}

// UnaryOp fetches a unary operator placeholder from a program source.
func UnaryOp[T types.Element](src accel.Source, placeholder string) (*ops.Unary[T], error) {
	op, ok := src.Ops[placeholder].(*ops.Unary[T])
	if !ok {
		return nil, errors.Errorf("kernels: %s of %s is %T, want unary %s", placeholder, src.Name, src.Ops[placeholder], types.Of[T]())
	}
	return op, nil
}

// BinaryOp fetches a binary operator placeholder from a program source.
func BinaryOp[T types.Element](src accel.Source, placeholder string) (*ops.Binary[T], error) {
	op, ok := src.Ops[placeholder].(*ops.Binary[T])
	if !ok {
		return nil, errors.Errorf("kernels: %s of %s is %T, want binary %s", placeholder, src.Name, src.Ops[placeholder], types.Of[T]())
	}
	return op, nil
}
