package schedule

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparse/internal/backend/cpu"
	"github.com/born-ml/sparse/internal/container"
	"github.com/born-ml/sparse/internal/ops"
	"github.com/born-ml/sparse/internal/types"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	log   []string
	fail  string
	syncs int
}

func (d *recordingDispatcher) Dispatch(t Task) error {
	defer t.Release()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, t.Name())
	if t.Name() == d.fail {
		return errors.New("executor failed")
	}
	return nil
}

func (d *recordingDispatcher) Synchronize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syncs++
	d.log = append(d.log, "sync")
	return nil
}

func TestTaskRetainsOperands(t *testing.T) {
	r := container.NewVector[float32](4, nil)
	m := container.NewMatrix[float32](4, 4, nil)

	task := NewExtractRow(r, m, 2, ops.Identity[float32]())
	assert.Equal(t, 2, r.RefCount())
	assert.Equal(t, 2, m.RefCount())
	assert.Equal(t, OpExtractRow, task.Name())
	assert.Same(t, types.Float32, task.Type())
	assert.Equal(t, Auto, task.Placement())
	assert.Equal(t, 2, task.Index())
	assert.Len(t, task.Objects(), 2)

	task.Release()
	task.Release()
	assert.Equal(t, 1, r.RefCount())
	assert.Equal(t, 1, m.RefCount())
}

func TestTaskPlacementAndAccelerator(t *testing.T) {
	d := cpu.New(cpu.Config{WorkgroupSize: 4})
	defer d.Release()

	onDevice := container.NewVector[int32](3, d)
	onHost := container.NewVector[int32](3, nil)

	same := NewMap(onDevice, onDevice, ops.Abs[int32](), On(Accelerator))
	defer same.Release()
	assert.Equal(t, Accelerator, same.Placement())
	assert.Same(t, d, same.Accelerator())

	mixed := NewEAdd(onDevice, onDevice, onHost, ops.Plus[int32]())
	defer mixed.Release()
	assert.Nil(t, mixed.Accelerator())

	red := NewReduce(container.NewScalar[int32](0), onDevice, 0, ops.Plus[int32]())
	defer red.Release()
	assert.Same(t, d, red.Accelerator())
}

func TestScheduleStepsAreSynchronized(t *testing.T) {
	v := container.NewVector[float64](2, nil)
	d := &recordingDispatcher{}

	s := New().
		Step(NewMap(v, v, ops.Abs[float64]()), NewMap(v, v, ops.Abs[float64]())).
		Step(NewReduceByRow(v, container.NewMatrix[float64](2, 2, nil), ops.Plus[float64](), 0))
	require.Equal(t, 2, s.Len())

	require.NoError(t, s.Run(context.Background(), d))
	assert.Equal(t, []string{OpMap, OpMap, "sync", OpReduceByRow, "sync"}, d.log)
	assert.Equal(t, 1, v.RefCount())
}

func TestScheduleStopsOnError(t *testing.T) {
	v := container.NewVector[float64](2, nil)
	d := &recordingDispatcher{fail: OpMap}

	s := New().
		Step(NewMap(v, v, ops.Abs[float64]())).
		Step(NewMap(v, v, ops.AInv[float64]()))

	err := s.Run(context.Background(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0: v_map")
	assert.Equal(t, []string{OpMap}, d.log)
	assert.Equal(t, 1, v.RefCount(), "undispatched tasks release their operands")
}

func TestScheduleCanceled(t *testing.T) {
	v := container.NewVector[uint32](1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().Step(NewMap(v, v, ops.One[uint32]())).Run(ctx, &recordingDispatcher{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, v.RefCount())
}

func TestPlacementString(t *testing.T) {
	assert.Equal(t, "host", Host.String())
	assert.Equal(t, "Placement(9)", Placement(9).String())
}
