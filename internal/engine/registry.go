package engine

import (
	"cmp"
	"slices"
	"sync"

	"github.com/pkg/errors"
)

// Backends an executor can be registered for.
const (
	// BackendCPU executors run on the host formats.
	BackendCPU = "cpu"
	// BackendAcc executors run kernels on the library accelerator.
	BackendAcc = "acc"
)

// ErrDuplicateExecutor is returned when a key is registered twice.
var ErrDuplicateExecutor = errors.New("engine: duplicate executor")

// Key identifies an executor: operation name, element type code, backend.
type Key struct {
	Op      string
	Type    string
	Backend string
}

// String implements fmt.Stringer.
func (k Key) String() string { return k.Op + "/" + k.Type + "/" + k.Backend }

// Executor implements one (operation, type, backend) specialization.
type Executor interface {
	// Name returns the executor name.
	Name() string
	// Description returns a human-readable description.
	Description() string
	// Execute runs the task of ctx. It enqueues device work without waiting
	// for it unless host logic needs a device-computed value.
	Execute(ctx *DispatchContext) error
}

// Registry maps keys to executors. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	executors map[Key]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[Key]Executor)}
}

// Register adds an executor. Registering an existing key fails with ErrDuplicateExecutor.
func (r *Registry) Register(key Key, e Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.executors[key]; ok {
		return errors.Wrapf(ErrDuplicateExecutor, "%s already served by %s", key, prev.Name())
	}
	r.executors[key] = e
	return nil
}

// MustRegister is like Register but panics on error.
// Use it for startup configuration only.
func (r *Registry) MustRegister(key Key, e Executor) {
	if err := r.Register(key, e); err != nil {
		panic(err)
	}
}

// Lookup returns the executor registered for key.
func (r *Registry) Lookup(key Key) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[key]
	return e, ok
}

// Has reports whether key is registered.
func (r *Registry) Has(key Key) bool {
	_, ok := r.Lookup(key)
	return ok
}

// Keys returns all registered keys in a stable order.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	keys := make([]Key, 0, len(r.executors))
	for k := range r.executors {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	slices.SortFunc(keys, func(a, b Key) int {
		return cmp.Or(cmp.Compare(a.Op, b.Op), cmp.Compare(a.Type, b.Type), cmp.Compare(a.Backend, b.Backend))
	})
	return keys
}

// Len returns the number of registered executors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.executors)
}
