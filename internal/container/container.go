// Package container implements the typed containers operated on by tasks:
// Vector, Matrix and Scalar.
//
// Vectors and matrices keep several physical representations of the same
// logical value, one per storage format, and convert between them lazily
// through the storage state machine. Executors declare the format and access
// mode they need with Validate and then work on the representation directly.
//
// Containers are shared by reference counting: the creator holds the first
// reference, tasks retain their operands, and device buffers are released
// when the last reference goes away.
package container

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/types"
)

var (
	// ErrNoAccelerator is returned when a device format is requested on a
	// container created without an accelerator.
	ErrNoAccelerator = errors.New("container: no accelerator")
	// ErrReleased is returned by accesses after the final Release.
	ErrReleased = errors.New("container: use after release")
	// ErrOutOfRange is returned for indices outside the container shape.
	ErrOutOfRange = errors.New("container: index out of range")
	// ErrShape is returned for inconsistent build input.
	ErrShape = errors.New("container: shape mismatch")
)

// Object is a shared operand of a task.
type Object interface {
	// Type returns the element type.
	Type() *types.Type
	// Retain adds a reference.
	Retain()
	// Release drops a reference, freeing device memory on the last one.
	Release()
}

// refCount is the shared reference count embedded in every container.
type refCount struct {
	refs     atomic.Int32
	released atomic.Bool
}

func (r *refCount) init() { r.refs.Store(1) }

// Retain adds a reference.
func (r *refCount) Retain() {
	if r.refs.Add(1) <= 1 {
		panic("container: retain after release")
	}
}

// drop removes a reference and reports whether it was the last one.
func (r *refCount) drop() bool {
	n := r.refs.Add(-1)
	if n < 0 {
		panic("container: release without matching retain")
	}
	if n == 0 {
		r.released.Store(true)
		return true
	}
	return false
}

// RefCount returns the current number of references.
func (r *refCount) RefCount() int { return int(r.refs.Load()) }

func (r *refCount) alive() error {
	if r.released.Load() {
		return ErrReleased
	}
	return nil
}

func elemSize[T types.Element]() int { return types.Of[T]().Size() }

// writeBuffer stores data into buf, allocating or reallocating it when the
// size does not match. The write is ordered on the default queue.
func writeBuffer(acc accel.Accelerator, buf accel.Buffer, data []byte) (accel.Buffer, error) {
	size := max(len(data), 4)
	if buf == nil || buf.Size() != size {
		if buf != nil {
			buf.Release()
		}
		nb, err := acc.Memory().Alloc(size)
		if err != nil {
			return nil, err
		}
		buf = nb
	}
	if len(data) == 0 {
		return buf, nil
	}
	if err := acc.DefaultQueue().EnqueueWrite(buf, 0, data); err != nil {
		return nil, err
	}
	return buf, nil
}

// readBuffer copies len(dst) bytes of buf into dst and waits for the copy.
func readBuffer(acc accel.Accelerator, buf accel.Buffer, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	q := acc.DefaultQueue()
	if err := q.EnqueueRead(buf, 0, dst); err != nil {
		return err
	}
	return q.Finish()
}

func releaseBuffer(b *accel.Buffer) {
	if *b != nil {
		(*b).Release()
		*b = nil
	}
}
