package mtx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const example = `%%MatrixMarket matrix coordinate real general
% the 4x4 example with row lengths 2, 0, 1, 3
4 4 6
1 1 1.0
1 3 2.0
3 2 3.0
4 1 4.0
4 2 5.0
4 4 6.5
`

func TestRead(t *testing.T) {
	e, err := Read(strings.NewReader(example))
	require.NoError(t, err)
	assert.Equal(t, Header{Field: Real, Symmetry: General}, e.Header)
	assert.Equal(t, 4, e.Rows)
	assert.Equal(t, 4, e.Cols)
	assert.Equal(t, []uint32{0, 0, 2, 3, 3, 3}, e.I)
	assert.Equal(t, []uint32{0, 2, 1, 0, 1, 3}, e.J)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6.5}, e.X)
}

func TestReadSymmetricPattern(t *testing.T) {
	src := "%%MatrixMarket matrix coordinate pattern symmetric\n3 3 2\n1 1\n3 1\n"
	e, err := Read(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 2, 0}, e.I)
	assert.Equal(t, []uint32{0, 0, 2}, e.J)
	assert.Equal(t, []float64{1, 1, 1}, e.X)
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"empty", "", ErrHeader},
		{"banner", "%%Matrix matrix coordinate real general\n1 1 0\n", ErrHeader},
		{"array", "%%MatrixMarket matrix array real general\n1 1\n", ErrUnsupported},
		{"complex", "%%MatrixMarket matrix coordinate complex general\n1 1 0\n", ErrUnsupported},
		{"size", "%%MatrixMarket matrix coordinate real general\n1 x 0\n", ErrHeader},
		{"row range", "%%MatrixMarket matrix coordinate real general\n2 2 1\n3 1 1.0\n", ErrEntry},
		{"zero index", "%%MatrixMarket matrix coordinate real general\n2 2 1\n0 1 1.0\n", ErrEntry},
		{"missing value", "%%MatrixMarket matrix coordinate real general\n2 2 1\n1 1\n", ErrEntry},
		{"truncated", "%%MatrixMarket matrix coordinate integer general\n2 2 2\n1 1 4\n", ErrEntry},
		{"bad integer", "%%MatrixMarket matrix coordinate integer general\n2 2 1\n1 1 4.5\n", ErrEntry},
		{"symmetric rectangle", "%%MatrixMarket matrix coordinate real symmetric\n2 3 0\n", ErrHeader},
		{"too many entries", "%%MatrixMarket matrix coordinate real general\n2 2 999999999999999\n1 1 1\n", ErrHeader},
		{"too many symmetric entries", "%%MatrixMarket matrix coordinate real symmetric\n2 2 4\n1 1 1\n", ErrHeader},
		{"wide", "%%MatrixMarket matrix coordinate real general\n1 4294967296 0\n", ErrHeader},
		{"large and truncated", "%%MatrixMarket matrix coordinate real general\n2000000 2000000 999999999999\n1 1 1\n", ErrEntry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.src))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReadHostileSizeLine(t *testing.T) {
	for _, size := range []string{"2 2 999999999999999", "9223372036854775807 1 1", "3037000500 3037000500 9223372036854775807"} {
		src := "%%MatrixMarket matrix coordinate real symmetric\n" + size + "\n1 1 1\n"
		require.NotPanics(t, func() {
			_, err := Read(strings.NewReader(src))
			assert.Error(t, err)
		}, size)
	}
}

func TestLoadAndStore(t *testing.T) {
	m, err := Load[float32](strings.NewReader(example), nil)
	require.NoError(t, err)
	defer m.Release()

	n, err := m.RowLength(3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	x, err := m.Get(3, 3)
	require.NoError(t, err)
	assert.Equal(t, float32(6.5), x)

	var buf bytes.Buffer
	require.NoError(t, Store(&buf, m))
	assert.Equal(t, example[:45]+"\n"+strings.Join([]string{
		"4 4 6", "1 1 1", "1 3 2", "3 2 3", "4 1 4", "4 2 5", "4 4 6.5",
	}, "\n")+"\n", buf.String())

	again, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6.5}, again.X)
}

func TestLoadInteger(t *testing.T) {
	m, err := Load[int32](strings.NewReader("%%MatrixMarket matrix coordinate integer general\n2 2 1\n2 1 -7\n"), nil)
	require.NoError(t, err)
	x, err := m.Get(1, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(-7), x)
}
