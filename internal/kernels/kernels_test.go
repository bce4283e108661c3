package kernels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/ops"
	"github.com/born-ml/sparse/internal/types"
)

type hostBuf []byte

func (b hostBuf) Size() int     { return len(b) }
func (b hostBuf) Release()      {}
func (b hostBuf) Bytes() []byte { return b }

func bufOf[T types.Element](v ...T) hostBuf {
	b := accel.AlignedBytes(max(len(v)*types.Of[T]().Size(), 4))
	copy(accel.Slice[T](b), v)
	return b
}

// launch runs f over the geometry of n items the way the software accelerator does.
func launch(t *testing.T, f Func, n, wgs, offset int, args Args) {
	t.Helper()
	r := accel.Geometry(n, wgs, offset)
	for id := 0; id < r.Groups(); id++ {
		require.NoError(t, f(Group{ID: id, Size: r.Local, Offset: r.Offset, Global: r.Global}, args))
	}
}

func TestGroupLanesCoverRangeOnce(t *testing.T) {
	const n, wgs, offset = 1000, 4, 3
	r := accel.Geometry(n, wgs, offset)
	seen := make(map[int]int)
	for id := 0; id < r.Groups(); id++ {
		Group{ID: id, Size: r.Local, Offset: r.Offset, Global: r.Global}.Lanes(n, func(gid int) {
			seen[gid]++
		})
	}
	assert.Len(t, seen, n-offset)
	for gid, c := range seen {
		assert.GreaterOrEqual(t, gid, offset)
		assert.Equal(t, 1, c)
	}
}

func TestGroupLanesBeyondMaxGroups(t *testing.T) {
	const wgs = 2
	n := accel.MaxGroups*wgs*3 + 5
	r := accel.Geometry(n, wgs, 0)
	require.Equal(t, accel.MaxGroups, r.Groups())

	count := 0
	for id := 0; id < r.Groups(); id++ {
		Group{ID: id, Size: r.Local, Global: r.Global}.Lanes(n, func(int) { count++ })
	}
	assert.Equal(t, n, count)
}

func TestLookupPrograms(t *testing.T) {
	for _, name := range []string{ExtractRow, Map, EAdd, Reduce, MxV, ReduceByRow} {
		p, ok := Lookup(name)
		require.True(t, ok, name)
		for _, d := range []accel.Dialect{accel.DialectHost, accel.DialectWGSL} {
			src, err := p.Source(d)
			require.NoError(t, err)
			assert.Contains(t, src, "{{.TYPE}}")
			for _, ph := range p.Placeholders {
				assert.Contains(t, src, "{{."+ph+"}}", "%s %s", name, d)
			}
		}
		for _, ty := range types.All() {
			for _, e := range p.Entries {
				_, ok := LookupHost(name, e, ty)
				assert.True(t, ok, "%s/%s/%s", name, e, ty)
			}
		}
	}
	_, ok := Lookup(ExtractColumn)
	assert.False(t, ok)
}

func TestHostExtractRow(t *testing.T) {
	src := accel.Source{Name: ExtractRow, Type: types.Float32, Ops: map[string]ops.Op{OpApply: ops.AInv[float32]()}}
	f, err := hostExtractRowKernel[float32](src)
	require.NoError(t, err)

	r := bufOf[float32](0, 0, 0, 0)
	ax := bufOf[float32](1, 2, 3, 4, 5)
	aj := bufOf[uint32](0, 3, 1, 2, 3)
	// Row spans [2, 5).
	launch(t, f, 3, 2, 2, Args{r, ax, aj, uint32(5)})

	assert.Equal(t, []float32{0, -3, -4, -5}, accel.Slice[float32](r))
}

func TestHostKernelRejectsWrongOperator(t *testing.T) {
	src := accel.Source{Name: Map, Type: types.Int32, Ops: map[string]ops.Op{OpApply: ops.Plus[int32]()}}
	_, err := hostMapKernel[int32](src)
	assert.Error(t, err)
}

func TestHostMapAndEAdd(t *testing.T) {
	mapF, err := hostMapKernel[int32](accel.Source{Ops: map[string]ops.Op{OpApply: ops.Abs[int32]()}})
	require.NoError(t, err)
	r := bufOf[int32](0, 0, 0)
	launch(t, mapF, 3, 16, 0, Args{r, bufOf[int32](-1, 2, -3), uint32(3)})
	assert.Equal(t, []int32{1, 2, 3}, accel.Slice[int32](r))

	addF, err := hostEAddKernel[int32](accel.Source{Ops: map[string]ops.Op{OpBinary: ops.Max[int32]()}})
	require.NoError(t, err)
	launch(t, addF, 3, 16, 0, Args{r, bufOf[int32](5, 0, 1), bufOf[int32](4, 9, 2), uint32(3)})
	assert.Equal(t, []int32{5, 9, 2}, accel.Slice[int32](r))
}

func TestHostReducePartials(t *testing.T) {
	f, err := hostReduceKernel[float64](accel.Source{Ops: map[string]ops.Op{OpReduce: ops.Plus[float64]()}})
	require.NoError(t, err)

	values := make([]float64, 10)
	for i := range values {
		values[i] = float64(i + 1)
	}
	const wgs = 4
	geo := accel.Geometry(len(values), wgs, 0)
	partials := bufOf(make([]float64, geo.Groups())...)
	flags := bufOf(make([]uint32, geo.Groups())...)
	launch(t, f, len(values), wgs, 0, Args{partials, flags, bufOf(values...), uint32(len(values))})

	var sum float64
	for g, p := range accel.Slice[float64](partials) {
		if accel.Slice[uint32](flags)[g] != 0 {
			sum += p
		}
	}
	assert.Equal(t, 55.0, sum)
}

func TestHostMxVAndReduceByRow(t *testing.T) {
	// [[1 0 2]
	//  [0 0 0]
	//  [0 3 0]]
	ap := bufOf[uint32](0, 2, 2, 3)
	aj := bufOf[uint32](0, 2, 1)
	ax := bufOf[float32](1, 2, 3)

	mxv, err := hostMxVKernel[float32](accel.Source{Ops: map[string]ops.Op{
		OpMultiply: ops.Mult[float32](),
		OpReduce:   ops.Plus[float32](),
	}})
	require.NoError(t, err)
	r := bufOf[float32](9, 9, 9)
	launch(t, mxv, 3, 2, 0, Args{r, ap, aj, ax, bufOf[float32](1, 10, 100), uint32(3), float32(0)})
	assert.Equal(t, []float32{201, 0, 30}, accel.Slice[float32](r))

	byRow, err := hostReduceByRowKernel[float32](accel.Source{Ops: map[string]ops.Op{OpReduce: ops.Plus[float32]()}})
	require.NoError(t, err)
	launch(t, byRow, 3, 2, 0, Args{r, ap, ax, uint32(3), float32(1)})
	assert.Equal(t, []float32{4, 1, 4}, accel.Slice[float32](r))
}

func TestArgsErrors(t *testing.T) {
	_, err := Buf[float32](Args{}, 0)
	assert.Error(t, err)
	_, err = Buf[float32](Args{uint32(1)}, 0)
	assert.Error(t, err)
	_, err = Count(Args{"x"}, 0)
	assert.Error(t, err)
}
