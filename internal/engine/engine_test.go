package engine

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparse/internal/backend/cpu"
	"github.com/born-ml/sparse/internal/container"
	"github.com/born-ml/sparse/internal/ops"
	"github.com/born-ml/sparse/internal/schedule"
)

type stubExecutor struct {
	name  string
	calls int
	last  *DispatchContext
	err   error
}

func (e *stubExecutor) Name() string        { return e.name }
func (e *stubExecutor) Description() string { return "stub " + e.name }
func (e *stubExecutor) Execute(ctx *DispatchContext) error {
	e.calls++
	e.last = ctx
	return e.err
}

func mapKey(backend string) Key {
	return Key{Op: schedule.OpMap, Type: "f32", Backend: backend}
}

func newLibrary(t *testing.T, opts ...Option) *Library {
	t.Helper()
	t.Setenv(EnvAccelerator, "")
	lib, err := New(append([]Option{WithAccelerator("cpu:wgs=4")}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Release() })
	return lib
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(mapKey(BackendCPU), &stubExecutor{name: "a"}))
	err := r.Register(mapKey(BackendCPU), &stubExecutor{name: "b"})
	assert.True(t, errors.Is(err, ErrDuplicateExecutor))
	assert.Panics(t, func() { r.MustRegister(mapKey(BackendCPU), &stubExecutor{name: "c"}) })

	e, ok := r.Lookup(mapKey(BackendCPU))
	require.True(t, ok)
	assert.Equal(t, "a", e.Name())
	assert.Equal(t, 1, r.Len())
}

func TestRegistryKeysSorted(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Key{"v_map", "i32", BackendCPU}, &stubExecutor{})
	r.MustRegister(Key{"mxv", "f32", BackendAcc}, &stubExecutor{})
	r.MustRegister(Key{"mxv", "f32", BackendCPU}, &stubExecutor{})
	assert.Equal(t, []Key{
		{"mxv", "f32", BackendAcc},
		{"mxv", "f32", BackendCPU},
		{"v_map", "i32", BackendCPU},
	}, r.Keys())
	assert.Equal(t, "mxv/f32/acc", r.Keys()[0].String())
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusOk, StatusOf(nil))
	assert.Equal(t, StatusError, StatusOf(errors.New("x")))
	assert.Equal(t, StatusNotImplemented, StatusOf(Errorf(StatusNotImplemented, "x")))
	assert.Equal(t, StatusInvalidArgument, StatusOf(errors.Wrap(container.ErrOutOfRange, "x")))
	assert.Equal(t, StatusNoAcceleration, StatusOf(container.ErrNoAccelerator))
	assert.Equal(t, StatusInvalidArgument, StatusOf(errors.Wrap(WithStatus(StatusInvalidArgument, errors.New("x")), "ctx")))
	assert.Nil(t, WithStatus(StatusError, nil))
	assert.Equal(t, "not implemented", StatusNotImplemented.String())
}

func TestDispatchAutoPrefersAccelerator(t *testing.T) {
	host, acc := &stubExecutor{name: "host"}, &stubExecutor{name: "acc"}
	lib := newLibrary(t, WithRegistrar(func(r *Registry) error {
		r.MustRegister(mapKey(BackendCPU), host)
		r.MustRegister(mapKey(BackendAcc), acc)
		return nil
	}))

	onDevice := container.NewVector[float32](4, lib.Accelerator())
	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewMap(onDevice, onDevice, ops.Abs[float32]())))
	assert.Equal(t, 1, acc.calls)
	assert.Equal(t, BackendAcc, acc.last.Backend)
	assert.Same(t, lib.Programs(), acc.last.Programs())
	assert.Equal(t, 1, onDevice.RefCount(), "dispatch releases the task")

	onHost := container.NewVector[float32](4, nil)
	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewMap(onHost, onHost, ops.Abs[float32]())))
	assert.Equal(t, 1, host.calls)

	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewMap(onDevice, onDevice, ops.Abs[float32](), schedule.On(schedule.Host))))
	assert.Equal(t, 2, host.calls)
}

func TestDispatchMissingExecutorHasNoSideEffects(t *testing.T) {
	host := &stubExecutor{name: "host"}
	lib := newLibrary(t, WithRegistrar(func(r *Registry) error {
		return r.Register(mapKey(BackendCPU), host)
	}))
	dev := lib.Accelerator().(*cpu.Device)
	before := dev.Stats()

	v := container.NewVector[float32](4, lib.Accelerator())
	err := lib.Dispatcher().Dispatch(schedule.NewMap(v, v, ops.Abs[float32](), schedule.On(schedule.Accelerator)))
	require.Error(t, err)
	assert.Equal(t, StatusNotImplemented, StatusOf(err))
	assert.Equal(t, 0, host.calls)
	assert.Equal(t, before, dev.Stats())
	assert.Equal(t, 1, v.RefCount())

	iv := container.NewVector[int32](4, nil)
	err = lib.Dispatcher().Dispatch(schedule.NewMap(iv, iv, ops.Abs[int32]()))
	assert.Equal(t, StatusNotImplemented, StatusOf(err))
}

func TestDispatchAcceleratorWithoutResidentOperands(t *testing.T) {
	lib := newLibrary(t, WithRegistrar(func(r *Registry) error {
		return r.Register(mapKey(BackendAcc), &stubExecutor{name: "acc"})
	}))
	v := container.NewVector[float32](4, nil)
	err := lib.Dispatcher().Dispatch(schedule.NewMap(v, v, ops.Abs[float32](), schedule.On(schedule.Accelerator)))
	assert.Equal(t, StatusNoAcceleration, StatusOf(err))
}

func TestDispatchExecutorError(t *testing.T) {
	host := &stubExecutor{name: "host", err: container.ErrShape}
	lib := newLibrary(t, WithNoAcceleration(), WithRegistrar(func(r *Registry) error {
		return r.Register(mapKey(BackendCPU), host)
	}))
	assert.Nil(t, lib.Accelerator())
	assert.Nil(t, lib.Programs())

	v := container.NewVector[float32](4, nil)
	err := lib.Dispatcher().Dispatch(schedule.NewMap(v, v, ops.Abs[float32]()))
	assert.Equal(t, StatusInvalidArgument, StatusOf(err))
	assert.Contains(t, err.Error(), "host")
	assert.NoError(t, lib.Synchronize())
}

func TestConfigPrecedence(t *testing.T) {
	t.Setenv(EnvAccelerator, "none")
	lib, err := New()
	require.NoError(t, err)
	assert.Nil(t, lib.Accelerator())

	t.Setenv(EnvAccelerator, "cpu:queues=2")
	lib, err = New(WithWorkgroupSize(8))
	require.NoError(t, err)
	defer lib.Release()
	assert.Equal(t, "cpu:queues=2,wgs=8", lib.Config().String())
	assert.Len(t, lib.Accelerator().Queues(), 2)
	assert.Equal(t, 8, lib.Accelerator().DefaultWorkgroupSize())

	t.Setenv(EnvAccelerator, "")
	_, err = New(WithAccelerator("quantum"))
	assert.Equal(t, StatusNoAcceleration, StatusOf(err))

	_, err = New(WithQueues(0))
	assert.Error(t, err)
}
