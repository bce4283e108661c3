package engine

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/progcache"
	"github.com/born-ml/sparse/internal/schedule"
	"github.com/born-ml/sparse/internal/types"
)

// DispatchContext is the per-dispatch view handed to an executor.
type DispatchContext struct {
	Task    schedule.Task
	Backend string
	Type    *types.Type

	acc      accel.Accelerator
	programs *progcache.Cache
}

// Accelerator returns the library accelerator, nil when acceleration is off.
func (c *DispatchContext) Accelerator() accel.Accelerator { return c.acc }

// Programs returns the program cache of the library accelerator.
func (c *DispatchContext) Programs() *progcache.Cache { return c.programs }

// Dispatcher resolves tasks to executors and runs them.
type Dispatcher struct {
	registry *Registry
	acc      accel.Accelerator
	programs *progcache.Cache
}

// NewDispatcher creates a dispatcher. acc and programs may be nil.
func NewDispatcher(registry *Registry, acc accel.Accelerator, programs *progcache.Cache) *Dispatcher {
	return &Dispatcher{registry: registry, acc: acc, programs: programs}
}

// Resolve picks the registry key for a task.
//
// Host placement selects the cpu backend. Accelerator placement selects the
// acc backend with no fallback. Auto selects acc when the operands live on
// the library accelerator and an acc executor exists, cpu otherwise.
func (d *Dispatcher) Resolve(task schedule.Task) (Key, error) {
	cpuKey := Key{Op: task.Name(), Type: task.Type().Code(), Backend: BackendCPU}
	accKey := Key{Op: task.Name(), Type: task.Type().Code(), Backend: BackendAcc}

	switch task.Placement() {
	case schedule.Host:
		if !d.registry.Has(cpuKey) {
			return cpuKey, Errorf(StatusNotImplemented, "no executor for %s", cpuKey)
		}
		return cpuKey, nil
	case schedule.Accelerator:
		if !d.registry.Has(accKey) {
			return accKey, Errorf(StatusNotImplemented, "no executor for %s", accKey)
		}
		if d.acc == nil {
			return accKey, Errorf(StatusNoAcceleration, "%s: acceleration is disabled", task.Name())
		}
		if task.Accelerator() != d.acc {
			return accKey, Errorf(StatusNoAcceleration, "%s: operands are not resident on %s", task.Name(), d.acc.Name())
		}
		return accKey, nil
	default:
		if d.acc != nil && task.Accelerator() == d.acc && d.registry.Has(accKey) {
			return accKey, nil
		}
		if !d.registry.Has(cpuKey) {
			return cpuKey, Errorf(StatusNotImplemented, "no executor for %s", cpuKey)
		}
		return cpuKey, nil
	}
}

// Dispatch executes a task and consumes it: the task's operand references
// are released whatever the outcome.
func (d *Dispatcher) Dispatch(task schedule.Task) error {
	defer task.Release()

	key, err := d.Resolve(task)
	if err != nil {
		klog.V(2).Infof("engine: %s (%s): %v", task.Name(), task.Placement(), err)
		return err
	}
	exec, ok := d.registry.Lookup(key)
	if !ok {
		return Errorf(StatusNotImplemented, "no executor for %s", key)
	}
	klog.V(2).Infof("engine: %s (%s) -> %s", task.Name(), task.Placement(), exec.Name())

	ctx := &DispatchContext{
		Task:     task,
		Backend:  key.Backend,
		Type:     task.Type(),
		acc:      d.acc,
		programs: d.programs,
	}
	if err := exec.Execute(ctx); err != nil {
		var se *Error
		if errors.As(err, &se) {
			return errors.Wrap(err, exec.Name())
		}
		return WithStatus(StatusOf(err), errors.Wrap(err, exec.Name()))
	}
	return nil
}

// Synchronize waits for all device work enqueued on every queue.
func (d *Dispatcher) Synchronize() error {
	if d.acc == nil {
		return nil
	}
	for _, q := range d.acc.Queues() {
		if err := q.Finish(); err != nil {
			return WithStatus(StatusError, err)
		}
	}
	return nil
}

// Compile-time interface check.
var _ schedule.Dispatcher = (*Dispatcher)(nil)
