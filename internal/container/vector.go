package container

import (
	"slices"
	"sync"

	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/storage"
	"github.com/born-ml/sparse/internal/types"
)

// Vector storage formats.
const (
	VectorCpuDok storage.Format = iota
	VectorCpuDense
	VectorCpuCoo
	VectorAccDense
)

var vectorManagers sync.Map // *types.Type -> *storage.Manager[*Vector[T]]

func vectorManager[T types.Element]() *storage.Manager[*Vector[T]] {
	if m, ok := vectorManagers.Load(types.Of[T]()); ok {
		return m.(*storage.Manager[*Vector[T]])
	}
	m := storage.NewManager[*Vector[T]]("cpu-dok", "cpu-dense", "cpu-coo", "acc-dense")

	m.SetReset(VectorCpuDok, func(v *Vector[T]) error {
		v.dok = make(map[uint32]T)
		return nil
	})
	m.SetReset(VectorCpuDense, func(v *Vector[T]) error {
		v.dense = filled(v.size, v.fill)
		return nil
	})
	m.SetReset(VectorCpuCoo, func(v *Vector[T]) error {
		v.cooI, v.cooX = nil, nil
		return nil
	})
	m.SetReset(VectorAccDense, func(v *Vector[T]) error {
		if v.acc == nil {
			return ErrNoAccelerator
		}
		buf, err := writeBuffer(v.acc, v.accDense, accel.AsBytes(filled(v.size, v.fill)))
		if err != nil {
			return err
		}
		v.accDense = buf
		return nil
	})

	m.SetConvert(VectorCpuDok, VectorCpuCoo, func(v *Vector[T]) error {
		keys := make([]uint32, 0, len(v.dok))
		for k := range v.dok {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		v.cooI = keys
		v.cooX = make([]T, len(keys))
		for i, k := range keys {
			v.cooX[i] = v.dok[k]
		}
		return nil
	})
	m.SetConvert(VectorCpuCoo, VectorCpuDok, func(v *Vector[T]) error {
		v.dok = make(map[uint32]T, len(v.cooI))
		for i, k := range v.cooI {
			v.dok[k] = v.cooX[i]
		}
		return nil
	})
	m.SetConvert(VectorCpuCoo, VectorCpuDense, func(v *Vector[T]) error {
		v.dense = filled(v.size, v.fill)
		for i, k := range v.cooI {
			v.dense[k] = v.cooX[i]
		}
		return nil
	})
	m.SetConvert(VectorCpuDense, VectorCpuCoo, func(v *Vector[T]) error {
		v.cooI, v.cooX = v.cooI[:0], v.cooX[:0]
		for i, x := range v.dense {
			if x != v.fill {
				v.cooI = append(v.cooI, uint32(i))
				v.cooX = append(v.cooX, x)
			}
		}
		return nil
	})
	m.SetConvert(VectorCpuDense, VectorAccDense, func(v *Vector[T]) error {
		if v.acc == nil {
			return ErrNoAccelerator
		}
		buf, err := writeBuffer(v.acc, v.accDense, accel.AsBytes(v.dense))
		if err != nil {
			return err
		}
		v.accDense = buf
		return nil
	})
	m.SetConvert(VectorAccDense, VectorCpuDense, func(v *Vector[T]) error {
		if v.acc == nil {
			return ErrNoAccelerator
		}
		dense := make([]T, v.size)
		if err := readBuffer(v.acc, v.accDense, accel.AsBytes(dense)); err != nil {
			return err
		}
		v.dense = dense
		return nil
	})

	actual, _ := vectorManagers.LoadOrStore(types.Of[T](), m)
	return actual.(*storage.Manager[*Vector[T]])
}

func filled[T types.Element](n int, fill T) []T {
	s := make([]T, n)
	if fill != 0 {
		for i := range s {
			s[i] = fill
		}
	}
	return s
}

// Vector is a typed vector of fixed size.
type Vector[T types.Element] struct {
	refCount

	mu    sync.Mutex
	acc   accel.Accelerator
	mgr   *storage.Manager[*Vector[T]]
	slots *storage.Slots
	size  int
	fill  T

	dok      map[uint32]T
	dense    []T
	cooI     []uint32
	cooX     []T
	accDense accel.Buffer
}

// NewVector creates a vector of n elements equal to the zero fill value.
// acc may be nil, in which case device formats are unavailable.
func NewVector[T types.Element](n int, acc accel.Accelerator) *Vector[T] {
	mgr := vectorManager[T]()
	v := &Vector[T]{acc: acc, mgr: mgr, slots: mgr.NewSlots(), size: n}
	v.init()
	return v
}

// Type returns the element type.
func (v *Vector[T]) Type() *types.Type { return types.Of[T]() }

// Size returns the number of elements.
func (v *Vector[T]) Size() int { return v.size }

// Accelerator returns the accelerator device formats live on, or nil.
func (v *Vector[T]) Accelerator() accel.Accelerator { return v.acc }

// Fill returns the value of elements that were never stored.
func (v *Vector[T]) Fill() T { return v.fill }

// SetFill changes the fill value. Content is discarded.
func (v *Vector[T]) SetFill(fill T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fill = fill
	v.slots.Invalidate()
}

// Slots exposes the format state, for diagnostics and tests.
func (v *Vector[T]) Slots() *storage.Slots { return v.slots }

// Validate prepares format f for an access in the given mode.
func (v *Vector[T]) Validate(f storage.Format, mode storage.Mode) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.validate(f, mode)
}

func (v *Vector[T]) validate(f storage.Format, mode storage.Mode) error {
	if err := v.alive(); err != nil {
		return err
	}
	if f == VectorAccDense && v.acc == nil {
		return ErrNoAccelerator
	}
	return v.mgr.Validate(v, v.slots, f, mode)
}

// Set stores x at index i.
func (v *Vector[T]) Set(i int, x T) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i < 0 || i >= v.size {
		return errors.Wrapf(ErrOutOfRange, "index %d of vector size %d", i, v.size)
	}
	if err := v.validate(VectorCpuDok, storage.ReadWrite); err != nil {
		return err
	}
	v.dok[uint32(i)] = x
	return nil
}

// Get returns the element at index i.
func (v *Vector[T]) Get(i int) (T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i < 0 || i >= v.size {
		return v.fill, errors.Wrapf(ErrOutOfRange, "index %d of vector size %d", i, v.size)
	}
	if err := v.validate(VectorCpuDok, storage.ReadOnly); err != nil {
		return v.fill, err
	}
	if x, ok := v.dok[uint32(i)]; ok {
		return x, nil
	}
	return v.fill, nil
}

// Build replaces the content with the given entries. Later duplicates win.
func (v *Vector[T]) Build(keys []uint32, values []T) error {
	if len(keys) != len(values) {
		return errors.Wrapf(ErrShape, "%d keys for %d values", len(keys), len(values))
	}
	for _, k := range keys {
		if int(k) >= v.size {
			return errors.Wrapf(ErrOutOfRange, "index %d of vector size %d", k, v.size)
		}
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validate(VectorCpuDok, storage.WriteDiscard); err != nil {
		return err
	}
	for i, k := range keys {
		v.dok[k] = values[i]
	}
	return nil
}

// Read returns copies of the stored entries in index order.
//
// After a dense write (every executor result is one) the entries are the
// elements that differ from the fill value. A row extracted with ZERO reads
// back with no keys even though the row has stored entries. Values equal to
// the fill that were stored with Build or Set are kept.
func (v *Vector[T]) Read() ([]uint32, []T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validate(VectorCpuCoo, storage.ReadOnly); err != nil {
		return nil, nil, err
	}
	return slices.Clone(v.cooI), slices.Clone(v.cooX), nil
}

// Values returns a dense copy of the vector.
func (v *Vector[T]) Values() ([]T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validate(VectorCpuDense, storage.ReadOnly); err != nil {
		return nil, err
	}
	return slices.Clone(v.dense), nil
}

// Clear resets every element to the fill value.
func (v *Vector[T]) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.slots.Invalidate()
}

// Release drops a reference. The last reference frees device memory.
func (v *Vector[T]) Release() {
	if !v.drop() {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	releaseBuffer(&v.accDense)
	v.dok, v.dense, v.cooI, v.cooX = nil, nil, nil, nil
}

// Representation accessors. They are valid after a Validate of the matching
// format and until the next Validate of another format.

// Dok returns the dictionary-of-keys representation.
func (v *Vector[T]) Dok() map[uint32]T { return v.dok }

// Dense returns the dense host representation.
func (v *Vector[T]) Dense() []T { return v.dense }

// Coo returns the coordinate representation: sorted indices and values.
func (v *Vector[T]) Coo() ([]uint32, []T) { return v.cooI, v.cooX }

// AccDense returns the dense device buffer.
func (v *Vector[T]) AccDense() accel.Buffer { return v.accDense }

// Compile-time interface check.
var _ Object = (*Vector[float32])(nil)
