package acc_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/sparse/internal/algo/acc"
	"github.com/born-ml/sparse/internal/algo/host"
	"github.com/born-ml/sparse/internal/backend/cpu"
	"github.com/born-ml/sparse/internal/container"
	"github.com/born-ml/sparse/internal/engine"
	"github.com/born-ml/sparse/internal/ops"
	"github.com/born-ml/sparse/internal/schedule"
	"github.com/born-ml/sparse/internal/types"
)

func newLibrary(t *testing.T) (*engine.Library, *cpu.Device) {
	t.Helper()
	t.Setenv(engine.EnvAccelerator, "")
	lib, err := engine.New(
		engine.WithAccelerator("cpu:wgs=4"),
		engine.WithRegistrar(host.RegisterAll),
		engine.WithRegistrar(acc.RegisterAll),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Release() })
	dev, ok := lib.Accelerator().(*cpu.Device)
	require.True(t, ok)
	return lib, dev
}

// example builds the 4x4 matrix with row lengths [2, 0, 1, 3]:
//
//	[1 0 2 0]
//	[0 0 0 0]
//	[0 3 0 0]
//	[4 5 0 6]
func example[T types.Element](t *testing.T, lib *engine.Library) *container.Matrix[T] {
	t.Helper()
	m := container.NewMatrix[T](4, 4, lib.Accelerator())
	require.NoError(t, m.Build(
		[]uint32{0, 0, 2, 3, 3, 3},
		[]uint32{0, 2, 1, 0, 1, 3},
		[]T{1, 2, 3, 4, 5, 6},
	))
	return m
}

func vector[T types.Element](t *testing.T, lib *engine.Library, values ...T) *container.Vector[T] {
	t.Helper()
	v := container.NewVector[T](len(values), lib.Accelerator())
	keys := make([]uint32, len(values))
	for i := range keys {
		keys[i] = uint32(i)
	}
	require.NoError(t, v.Build(keys, values))
	return v
}

func TestRegisterAll(t *testing.T) {
	lib, _ := newLibrary(t)
	// 7 cpu and 6 acc executors per type.
	assert.Equal(t, 13*len(types.All()), lib.Registry().Len())
	assert.False(t, lib.Registry().Has(engine.Key{Op: schedule.OpExtractColumn, Type: "f32", Backend: engine.BackendAcc}))
}

func TestConcurrentDispatch(t *testing.T) {
	lib, _ := newLibrary(t)
	m := example[float32](t, lib)

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			r := container.NewVector[float32](4, lib.Accelerator())
			defer r.Release()
			for it := 0; it < 25; it++ {
				task := schedule.NewExtractRow(r, m, 3, ops.Identity[float32](), schedule.On(schedule.Accelerator))
				if err := lib.Dispatcher().Dispatch(task); err != nil {
					return err
				}
				got, err := r.Values()
				if err != nil {
					return err
				}
				if got[0] != 4 || got[1] != 5 || got[2] != 0 || got[3] != 6 {
					return errors.Errorf("worker %d iteration %d: %v", w, it, got)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestExtractRowEmptyRow(t *testing.T) {
	lib, _ := newLibrary(t)
	m := example[float32](t, lib)
	r := container.NewVector[float32](4, lib.Accelerator())

	err := lib.Dispatcher().Dispatch(schedule.NewExtractRow(r, m, 1, ops.Identity[float32](), schedule.On(schedule.Accelerator)))
	require.NoError(t, err)
	assert.Equal(t, engine.StatusOk, engine.StatusOf(err))

	keys, vals, err := r.Read()
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Empty(t, vals)
}

func TestExtractRowColumnOrder(t *testing.T) {
	lib, _ := newLibrary(t)
	m := example[int32](t, lib)
	r := container.NewVector[int32](4, lib.Accelerator())

	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewExtractRow(r, m, 3, ops.Identity[int32]())))
	keys, vals, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 3}, keys)
	assert.Equal(t, []int32{4, 5, 6}, vals)
}

func TestExtractRowCountMatchesRowLength(t *testing.T) {
	lib, _ := newLibrary(t)
	m := example[float64](t, lib)

	for i := 0; i < m.Rows(); i++ {
		r := container.NewVector[float64](4, lib.Accelerator())
		require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewExtractRow(r, m, i, ops.AInv[float64]())))
		keys, vals, err := r.Read()
		require.NoError(t, err)

		n, err := m.RowLength(i)
		require.NoError(t, err)
		assert.Len(t, keys, n, "row %d", i)
		for k, j := range keys {
			x, err := m.Get(i, int(j))
			require.NoError(t, err)
			assert.Equal(t, -x, vals[k], "row %d column %d", i, j)
		}
	}
}

func TestExtractRowMatchesHost(t *testing.T) {
	lib, _ := newLibrary(t)
	m := example[uint32](t, lib)

	for i := 0; i < m.Rows(); i++ {
		dev := container.NewVector[uint32](4, lib.Accelerator())
		ref := container.NewVector[uint32](4, nil)
		require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewExtractRow(dev, m, i, ops.AInv[uint32](), schedule.On(schedule.Accelerator))))
		require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewExtractRow(ref, m, i, ops.AInv[uint32](), schedule.On(schedule.Host))))

		want, err := ref.Values()
		require.NoError(t, err)
		got, err := dev.Values()
		require.NoError(t, err)
		assert.Equal(t, want, got, "row %d", i)
	}
}

func TestExtractRowBeyondGroupLimit(t *testing.T) {
	lib, _ := newLibrary(t)
	// 4 lanes times 1024 groups is less than the row length, so lanes stride.
	const n = 5000
	m := container.NewMatrix[float32](2, n, lib.Accelerator())
	I, J, X := make([]uint32, n), make([]uint32, n), make([]float32, n)
	for j := range J {
		I[j], J[j], X[j] = 1, uint32(j), float32(j+1)
	}
	require.NoError(t, m.Build(I, J, X))

	twice := ops.NewUnary("TWICE", "a * 2", func(a float32) float32 { return 2 * a })
	r := container.NewVector[float32](n, lib.Accelerator())
	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewExtractRow(r, m, 1, twice)))
	got, err := r.Values()
	require.NoError(t, err)
	for j, x := range got {
		if !assert.Equal(t, 2*float32(j+1), x, "column %d", j) {
			break
		}
	}
}

func TestExtractRowInvalidArguments(t *testing.T) {
	lib, dev := newLibrary(t)
	m := example[float32](t, lib)
	before := dev.Stats()

	err := lib.Dispatcher().Dispatch(schedule.NewExtractRow(container.NewVector[float32](4, lib.Accelerator()), m, -1, ops.Identity[float32]()))
	assert.Equal(t, engine.StatusInvalidArgument, engine.StatusOf(err))
	err = lib.Dispatcher().Dispatch(schedule.NewExtractRow(container.NewVector[float32](5, lib.Accelerator()), m, 0, ops.Identity[float32]()))
	assert.Equal(t, engine.StatusInvalidArgument, engine.StatusOf(err))

	assert.Equal(t, before.Kernels, dev.Stats().Kernels)
}

func TestProgramCacheReuse(t *testing.T) {
	lib, dev := newLibrary(t)
	m := example[float32](t, lib)

	for _, row := range []int{0, 3, 0} {
		r := container.NewVector[float32](4, lib.Accelerator())
		require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewExtractRow(r, m, row, ops.Abs[float32]())))
	}
	require.NoError(t, lib.Synchronize())

	stats := lib.Programs().Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, uint64(1), stats.Builds)
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), dev.Stats().Compiles)
	assert.Equal(t, uint64(3), dev.Stats().Kernels)

	// A different operator is a different specialization.
	r := container.NewVector[float32](4, lib.Accelerator())
	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewExtractRow(r, m, 0, ops.AInv[float32]())))
	assert.Equal(t, uint64(2), lib.Programs().Stats().Builds)
}

func TestSameNameDifferentBodies(t *testing.T) {
	lib, _ := newLibrary(t)
	m := example[float32](t, lib)
	double := ops.NewUnary("SCALE", "a * 2", func(a float32) float32 { return 2 * a })
	triple := ops.NewUnary("SCALE", "a * 3", func(a float32) float32 { return 3 * a })

	for _, tt := range []struct {
		op   *ops.Unary[float32]
		want []float32
	}{
		{double, []float32{8, 10, 0, 12}},
		{triple, []float32{12, 15, 0, 18}},
		{double, []float32{8, 10, 0, 12}},
	} {
		r := container.NewVector[float32](4, lib.Accelerator())
		require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewExtractRow(r, m, 3, tt.op, schedule.On(schedule.Accelerator))))
		got, err := r.Values()
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	assert.Equal(t, uint64(2), lib.Programs().Stats().Builds)
}

func TestExtractColumnHasNoDeviceExecutor(t *testing.T) {
	lib, dev := newLibrary(t)
	m := example[float32](t, lib)
	r := container.NewVector[float32](4, lib.Accelerator())
	require.NoError(t, lib.Synchronize())
	before := dev.Stats()

	err := lib.Dispatcher().Dispatch(schedule.NewExtractColumn(r, m, 0, ops.Identity[float32](), schedule.On(schedule.Accelerator)))
	assert.Equal(t, engine.StatusNotImplemented, engine.StatusOf(err))
	assert.Equal(t, before, dev.Stats())

	// Auto placement falls back to the host executor.
	r = container.NewVector[float32](4, lib.Accelerator())
	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewExtractColumn(r, m, 1, ops.Identity[float32]())))
	got, err := r.Values()
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 3, 5}, got)
}

func TestMap(t *testing.T) {
	lib, _ := newLibrary(t)
	v := vector[int32](t, lib, -3, 0, 7, -1, 2)

	r := container.NewVector[int32](5, lib.Accelerator())
	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewMap(r, v, ops.Abs[int32]())))
	got, err := r.Values()
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 0, 7, 1, 2}, got)

	// In place.
	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewMap(v, v, ops.AInv[int32]())))
	got, err = v.Values()
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 0, -7, 1, -2}, got)
}

func TestEAdd(t *testing.T) {
	lib, _ := newLibrary(t)
	a := vector[float64](t, lib, 1, 2, 3, 4, 5, 6, 7)
	b := vector[float64](t, lib, 7, 6, 5, 4, 3, 2, 1)

	r := container.NewVector[float64](7, lib.Accelerator())
	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewEAdd(r, a, b, ops.Max[float64]())))
	got, err := r.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 6, 5, 4, 5, 6, 7}, got)

	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewEAdd(a, a, b, ops.Plus[float64]())))
	got, err = a.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{8, 8, 8, 8, 8, 8, 8}, got)
}

func TestReduce(t *testing.T) {
	lib, _ := newLibrary(t)
	values := make([]uint32, 100)
	var want uint32 = 5
	for i := range values {
		values[i] = uint32(i)
		want += uint32(i)
	}
	v := vector(t, lib, values...)

	s := container.NewScalar[uint32](0)
	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewReduce(s, v, 5, ops.Plus[uint32]())))
	assert.Equal(t, want, s.Get())

	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewReduce(s, v, 0, ops.Max[uint32]())))
	assert.Equal(t, uint32(99), s.Get())
}

func TestMxVMatchesDense(t *testing.T) {
	lib, _ := newLibrary(t)
	m := example[float64](t, lib)
	x := []float64{1, -2, 0.5, 3}
	v := vector(t, lib, x...)

	r := container.NewVector[float64](4, lib.Accelerator())
	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewMxV(r, m, v, ops.Mult[float64](), ops.Plus[float64](), 0)))
	got, err := r.Values()
	require.NoError(t, err)

	dense := mat.NewDense(4, 4, []float64{
		1, 0, 2, 0,
		0, 0, 0, 0,
		0, 3, 0, 0,
		4, 5, 0, 6,
	})
	var want mat.VecDense
	want.MulVec(dense, mat.NewVecDense(4, x))
	assert.InDeltaSlice(t, want.RawVector().Data, got, 1e-12)

	// r aliases v.
	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewMxV(v, m, v, ops.Mult[float64](), ops.Plus[float64](), 0)))
	got, err = v.Values()
	require.NoError(t, err)
	assert.InDeltaSlice(t, want.RawVector().Data, got, 1e-12)
}

func TestMxVSemiring(t *testing.T) {
	lib, _ := newLibrary(t)
	m := example[int32](t, lib)
	v := vector[int32](t, lib, 10, 20, 30, 40)

	// Min-plus: r[i] = min over stored j of M[i][j] + v[j], starting at 1000.
	r := container.NewVector[int32](4, lib.Accelerator())
	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewMxV(r, m, v, ops.Plus[int32](), ops.Min[int32](), 1000)))
	got, err := r.Values()
	require.NoError(t, err)
	assert.Equal(t, []int32{11, 1000, 23, 14}, got)
}

func TestReduceByRow(t *testing.T) {
	lib, _ := newLibrary(t)
	m := example[float32](t, lib)

	r := container.NewVector[float32](4, lib.Accelerator())
	require.NoError(t, lib.Dispatcher().Dispatch(schedule.NewReduceByRow(r, m, ops.Plus[float32](), 0)))
	got, err := r.Values()
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 0, 3, 15}, got)
}

func TestPinnedToDeviceWithoutResidentOperands(t *testing.T) {
	lib, _ := newLibrary(t)
	m := container.NewMatrix[float32](2, 2, nil)
	r := container.NewVector[float32](2, nil)
	err := lib.Dispatcher().Dispatch(schedule.NewExtractRow(r, m, 0, ops.Identity[float32](), schedule.On(schedule.Accelerator)))
	assert.Equal(t, engine.StatusNoAcceleration, engine.StatusOf(err))
}
