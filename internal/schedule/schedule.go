package schedule

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Dispatcher executes tasks.
type Dispatcher interface {
	// Dispatch consumes and executes one task.
	Dispatch(t Task) error
	// Synchronize waits for all device work enqueued so far.
	Synchronize() error
}

// Schedule is an ordered list of steps. Tasks of one step are independent
// and dispatched concurrently; a step starts only after the previous step's
// device work completed.
type Schedule struct {
	steps [][]Task
}

// New creates an empty schedule.
func New() *Schedule { return &Schedule{} }

// Step appends a step made of independent tasks. The schedule takes
// ownership of the tasks.
func (s *Schedule) Step(tasks ...Task) *Schedule {
	s.steps = append(s.steps, tasks)
	return s
}

// Len returns the number of steps.
func (s *Schedule) Len() int { return len(s.steps) }

// Run dispatches every step in order. On the first failing step the
// remaining tasks are released without running and the error is returned.
func (s *Schedule) Run(ctx context.Context, d Dispatcher) error {
	for i, step := range s.steps {
		if err := ctx.Err(); err != nil {
			s.discard(i)
			return err
		}
		g, _ := errgroup.WithContext(ctx)
		for _, t := range step {
			g.Go(func() error {
				return errors.Wrapf(d.Dispatch(t), "step %d: %s", i, t.Name())
			})
		}
		if err := g.Wait(); err != nil {
			s.discard(i + 1)
			return err
		}
		if err := d.Synchronize(); err != nil {
			s.discard(i + 1)
			return errors.Wrapf(err, "step %d", i)
		}
	}
	s.steps = nil
	return nil
}

func (s *Schedule) discard(from int) {
	for _, step := range s.steps[from:] {
		for _, t := range step {
			t.Release()
		}
	}
	s.steps = nil
}
