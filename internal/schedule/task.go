// Package schedule defines the task model: immutable descriptors of one
// operation invocation, consumed exactly once by a dispatcher.
package schedule

import (
	"fmt"
	"sync/atomic"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/container"
	"github.com/born-ml/sparse/internal/types"
)

// Placement constrains where a task may execute.
type Placement uint8

// Placements.
const (
	// Auto runs on the accelerator when an executor exists for it, else on the host.
	Auto Placement = iota
	// Host forces the host executors.
	Host
	// Accelerator forces the accelerator executors, without fallback.
	Accelerator
)

// String implements fmt.Stringer.
func (p Placement) String() string {
	switch p {
	case Auto:
		return "auto"
	case Host:
		return "host"
	case Accelerator:
		return "accelerator"
	default:
		return fmt.Sprintf("Placement(%d)", p)
	}
}

// Task describes one operation invocation.
type Task interface {
	// Name returns the operation name, e.g. "m_extract_row".
	Name() string
	// Type returns the element type of the operands.
	Type() *types.Type
	// Placement returns the placement constraint.
	Placement() Placement
	// Objects returns the container operands in argument order.
	Objects() []container.Object
	// Accelerator returns the accelerator shared by every operand, or nil.
	Accelerator() accel.Accelerator
	// Retain adds a reference to every operand.
	Retain()
	// Release drops the task's operand references. Only the first call has an effect.
	Release()
}

// Option configures a task at construction.
type Option func(*base)

// On sets the placement of a task.
func On(p Placement) Option {
	return func(b *base) { b.placement = p }
}

type accelerated interface {
	Accelerator() accel.Accelerator
}

// base holds what every task shares. Operands are retained on construction.
type base struct {
	name      string
	typ       *types.Type
	placement Placement
	objects   []container.Object
	released  int32 // set atomically
}

func newBase(name string, typ *types.Type, opts []Option, objects ...container.Object) base {
	b := base{name: name, typ: typ, objects: objects}
	for _, opt := range opts {
		opt(&b)
	}
	for _, o := range objects {
		o.Retain()
	}
	return b
}

func (b *base) Name() string                { return b.name }
func (b *base) Type() *types.Type           { return b.typ }
func (b *base) Placement() Placement        { return b.placement }
func (b *base) Objects() []container.Object { return append([]container.Object(nil), b.objects...) }
func (b *base) String() string              { return fmt.Sprintf("%s<%s>@%s", b.name, b.typ, b.placement) }

// Accelerator returns the accelerator shared by all device-capable operands.
func (b *base) Accelerator() accel.Accelerator {
	var acc accel.Accelerator
	for _, o := range b.objects {
		a, ok := o.(accelerated)
		if !ok {
			continue
		}
		switch {
		case a.Accelerator() == nil:
			return nil
		case acc == nil:
			acc = a.Accelerator()
		case acc != a.Accelerator():
			return nil
		}
	}
	return acc
}

func (b *base) Retain() {
	for _, o := range b.objects {
		o.Retain()
	}
}

func (b *base) Release() {
	if !atomic.CompareAndSwapInt32(&b.released, 0, 1) {
		return
	}
	for _, o := range b.objects {
		o.Release()
	}
}
