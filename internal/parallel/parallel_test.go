package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
}

func TestFor_Sequential(t *testing.T) {
	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, Sequential())

	assert.Equal(t, int64(100), counter)
}

func TestFor_SmallChunk(t *testing.T) {
	// Small work units fall back to sequential.
	cfg := DefaultConfig()

	var counter int64
	n := cfg.MinChunkSize - 1

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
}

func TestForGroups_VisitsEveryGroupOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 8}
	seen := make([]int32, 37)

	err := ForGroups(len(seen), 16, func(g int) error {
		atomic.AddInt32(&seen[g], 1)
		return nil
	}, cfg)
	require.NoError(t, err)

	for g, n := range seen {
		assert.Equalf(t, int32(1), n, "group %d", g)
	}
}

func TestForGroups_FirstErrorInGroupOrder(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}
	errLow := errors.New("low")
	errHigh := errors.New("high")

	var ran int64
	err := ForGroups(100, 1, func(g int) error {
		atomic.AddInt64(&ran, 1)
		switch g {
		case 10:
			return errLow
		case 90:
			return errHigh
		}
		return nil
	}, cfg)

	assert.Same(t, errLow, err)
	assert.Equal(t, int64(100), ran)
}

func TestForGroups_Empty(t *testing.T) {
	called := false
	err := ForGroups(0, 64, func(int) error {
		called = true
		return nil
	}, DefaultConfig())
	require.NoError(t, err)
	assert.False(t, called)
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 10000

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, Sequential())
		}
	})
}
