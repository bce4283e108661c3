//go:build windows

package webgpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/algo/acc"
	"github.com/born-ml/sparse/internal/algo/host"
	"github.com/born-ml/sparse/internal/backend/webgpu"
	"github.com/born-ml/sparse/internal/container"
	"github.com/born-ml/sparse/internal/engine"
	"github.com/born-ml/sparse/internal/ops"
	"github.com/born-ml/sparse/internal/progcache"
	"github.com/born-ml/sparse/internal/schedule"
)

func newDevice(t *testing.T) *webgpu.Device {
	t.Helper()
	if !webgpu.IsAvailable() {
		t.Skip("WebGPU not available")
	}
	dev, err := webgpu.New(webgpu.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(dev.Release)
	return dev
}

func TestConfigFromOptions(t *testing.T) {
	cfg, err := webgpu.ConfigFromOptions(accel.Options{"wgs": "64", "batch": "8"})
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.WorkgroupSize)
	assert.Equal(t, 8, cfg.MaxBatchSize)

	_, err = webgpu.ConfigFromOptions(accel.Options{"wgs": "48"})
	assert.Error(t, err)
}

func TestUploadAndRead(t *testing.T) {
	dev := newDevice(t)
	data := []float32{1, 2, 3, 4, 5}
	buf, err := dev.Memory().Upload(accel.AsBytes(data))
	require.NoError(t, err)
	defer buf.Release()

	q := dev.DefaultQueue()
	require.NoError(t, q.EnqueueWrite(buf, 4, accel.AsBytes([]float32{-2})))
	got := make([]float32, 5)
	require.NoError(t, q.EnqueueRead(buf, 0, accel.AsBytes(got)))
	require.NoError(t, q.Finish())
	assert.Equal(t, []float32{1, -2, 3, 4, 5}, got)
}

func TestUnalignedTransfer(t *testing.T) {
	dev := newDevice(t)
	buf, err := dev.Memory().Alloc(16)
	require.NoError(t, err)
	defer buf.Release()
	assert.Error(t, dev.DefaultQueue().EnqueueWrite(buf, 2, []byte{1, 2, 3, 4}))
}

func newLibrary(t *testing.T) *engine.Library {
	t.Helper()
	if !webgpu.IsAvailable() {
		t.Skip("WebGPU not available")
	}
	lib, err := engine.New(
		engine.WithAccelerator(webgpu.Name),
		engine.WithRegistrar(host.RegisterAll),
		engine.WithRegistrar(acc.RegisterAll),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Release() })
	return lib
}

func TestExtractRow(t *testing.T) {
	lib := newLibrary(t)
	m := container.NewMatrix[float32](4, 4, lib.Accelerator())
	require.NoError(t, m.Build(
		[]uint32{0, 0, 2, 3, 3, 3},
		[]uint32{0, 2, 1, 0, 1, 3},
		[]float32{1, 2, 3, 4, 5, 6},
	))

	r := container.NewVector[float32](4, lib.Accelerator())
	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewExtractRow(r, m, 3, ops.AInv[float32]())))
	keys, vals, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 3}, keys)
	assert.Equal(t, []float32{-4, -5, -6}, vals)
}

func TestFloat64IsRejected(t *testing.T) {
	lib := newLibrary(t)
	m := container.NewMatrix[float64](2, 2, lib.Accelerator())
	require.NoError(t, m.Set(0, 1, 3))
	r := container.NewVector[float64](2, lib.Accelerator())

	err := lib.Dispatcher().Dispatch(schedule.NewExtractRow(r, m, 0, ops.Identity[float64](), schedule.On(schedule.Accelerator)))
	assert.Equal(t, engine.StatusError, engine.StatusOf(err))
	assert.ErrorIs(t, err, progcache.ErrCompile)
}
