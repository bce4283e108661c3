// Package algo holds the plumbing shared by the executor packages: a generic
// executor bound to one task type and the registration helper.
//
// Executors live in algo/host (cpu backend) and algo/acc (acc backend).
package algo

import (
	"fmt"

	"github.com/born-ml/sparse/internal/engine"
	"github.com/born-ml/sparse/internal/schedule"
	"github.com/born-ml/sparse/internal/types"
)

// Executor runs tasks of concrete type K.
type Executor[K schedule.Task] struct {
	name string
	desc string
	run  func(ctx *engine.DispatchContext, task K) error
}

// Name returns the executor name.
func (e *Executor[K]) Name() string { return e.name }

// Description returns the executor description.
func (e *Executor[K]) Description() string { return e.desc }

// Execute runs the task of ctx.
func (e *Executor[K]) Execute(ctx *engine.DispatchContext) error {
	task, ok := ctx.Task.(K)
	if !ok {
		return engine.Errorf(engine.StatusInvalidArgument, "%s: unexpected task %T", e.name, ctx.Task)
	}
	return e.run(ctx, task)
}

// Register adds an executor for (op, t, backend) running fn.
func Register[K schedule.Task](r *engine.Registry, op string, t *types.Type, backend, desc string, fn func(*engine.DispatchContext, K) error) error {
	key := engine.Key{Op: op, Type: t.Code(), Backend: backend}
	return r.Register(key, &Executor[K]{
		name: fmt.Sprintf("%s/%s/%s", op, t.Code(), backend),
		desc: desc,
		run:  fn,
	})
}

// InvalidArgument creates an error with engine.StatusInvalidArgument.
func InvalidArgument(op, format string, args ...any) error {
	return engine.Errorf(engine.StatusInvalidArgument, op+": "+format, args...)
}
