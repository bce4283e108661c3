package storage

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fmtA Format = iota
	fmtB
	fmtC
	fmtD // isolated
)

// toy stores one value per format; conversions copy along the chain A <-> B <-> C.
type toy struct {
	vals   [4]int
	failBC bool
	log    []string
}

func newToyManager() *Manager[*toy] {
	m := NewManager[*toy]("A", "B", "C", "D")
	for f := fmtA; f <= fmtD; f++ {
		f := f
		m.SetReset(f, func(t *toy) error {
			t.vals[f] = 0
			t.log = append(t.log, "reset "+m.Name(f))
			return nil
		})
	}
	link := func(src, dst Format) {
		m.SetConvert(src, dst, func(t *toy) error {
			if t.failBC && src == fmtB && dst == fmtC {
				return errors.New("device lost")
			}
			t.vals[dst] = t.vals[src]
			t.log = append(t.log, m.Name(src)+"->"+m.Name(dst))
			return nil
		})
	}
	link(fmtA, fmtB)
	link(fmtB, fmtA)
	link(fmtB, fmtC)
	link(fmtC, fmtB)
	return m
}

func TestFreshReadOnlyResetsToFill(t *testing.T) {
	m := newToyManager()
	slots := m.NewSlots()
	v := &toy{vals: [4]int{7, 7, 7, 7}}

	require.NoError(t, m.Validate(v, slots, fmtB, ReadOnly))
	assert.Equal(t, 0, v.vals[fmtB])
	assert.Equal(t, Authoritative, slots.State(fmtB))
	assert.Equal(t, 0, slots.Conversions())
}

func TestReadOnlyIsIdempotent(t *testing.T) {
	m := newToyManager()
	slots := m.NewSlots()
	v := &toy{}

	require.NoError(t, m.Validate(v, slots, fmtA, WriteDiscard))
	v.vals[fmtA] = 42

	require.NoError(t, m.Validate(v, slots, fmtC, ReadOnly))
	require.NoError(t, m.Validate(v, slots, fmtC, ReadOnly))

	assert.Equal(t, 42, v.vals[fmtC])
	assert.Equal(t, 2, slots.Conversions()) // A->B, B->C once
	assert.Equal(t, Authoritative, slots.State(fmtA))
	assert.Equal(t, Valid, slots.State(fmtB))
	assert.Equal(t, Valid, slots.State(fmtC))
}

func TestWriteDiscardThenReadOtherFormat(t *testing.T) {
	m := newToyManager()
	slots := m.NewSlots()
	v := &toy{}

	// Old content in A, visible in B.
	require.NoError(t, m.Validate(v, slots, fmtA, WriteDiscard))
	v.vals[fmtA] = 1
	require.NoError(t, m.Validate(v, slots, fmtB, ReadOnly))
	require.Equal(t, 1, v.vals[fmtB])

	// New write into C invalidates A and B.
	require.NoError(t, m.Validate(v, slots, fmtC, WriteDiscard))
	v.vals[fmtC] = 2
	assert.Equal(t, Invalid, slots.State(fmtA))
	assert.Equal(t, Invalid, slots.State(fmtB))

	before := slots.Conversions()
	require.NoError(t, m.Validate(v, slots, fmtB, ReadOnly))
	assert.Equal(t, 1, slots.Conversions()-before)
	assert.Equal(t, 2, v.vals[fmtB])
}

func TestReadWriteTakesAuthority(t *testing.T) {
	m := newToyManager()
	slots := m.NewSlots()
	v := &toy{}

	require.NoError(t, m.Validate(v, slots, fmtA, WriteDiscard))
	v.vals[fmtA] = 5
	require.NoError(t, m.Validate(v, slots, fmtB, ReadWrite))
	v.vals[fmtB] = 6

	assert.Equal(t, Authoritative, slots.State(fmtB))
	assert.Equal(t, Invalid, slots.State(fmtA))
	auth, ok := slots.Authoritative()
	require.True(t, ok)
	assert.Equal(t, fmtB, auth)

	require.NoError(t, m.Validate(v, slots, fmtA, ReadOnly))
	assert.Equal(t, 6, v.vals[fmtA])
}

func TestAtMostOneAuthoritative(t *testing.T) {
	m := newToyManager()
	slots := m.NewSlots()
	v := &toy{}

	seq := []struct {
		f    Format
		mode Mode
	}{
		{fmtA, WriteDiscard}, {fmtC, ReadOnly}, {fmtB, ReadWrite},
		{fmtA, ReadOnly}, {fmtC, WriteDiscard}, {fmtA, ReadWrite},
	}
	for _, s := range seq {
		require.NoError(t, m.Validate(v, slots, s.f, s.mode))
		count := 0
		for f := fmtA; f <= fmtD; f++ {
			if slots.State(f) == Authoritative {
				count++
			}
		}
		assert.Equal(t, 1, count, "after %s %s", m.Name(s.f), s.mode)
	}
}

func TestNoPath(t *testing.T) {
	m := newToyManager()
	slots := m.NewSlots()
	v := &toy{}

	require.NoError(t, m.Validate(v, slots, fmtA, WriteDiscard))
	err := m.Validate(v, slots, fmtD, ReadOnly)
	assert.True(t, errors.Is(err, ErrNoPath))
	assert.Equal(t, Invalid, slots.State(fmtD))

	assert.True(t, errors.Is(m.Validate(v, slots, Format(9), ReadOnly), ErrUnknownFormat))
}

func TestFailedConversionLeavesStatesUnchanged(t *testing.T) {
	m := newToyManager()
	slots := m.NewSlots()
	v := &toy{failBC: true}

	require.NoError(t, m.Validate(v, slots, fmtA, WriteDiscard))
	err := m.Validate(v, slots, fmtC, ReadOnly)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device lost")

	assert.Equal(t, Authoritative, slots.State(fmtA))
	assert.Equal(t, Invalid, slots.State(fmtB))
	assert.Equal(t, Invalid, slots.State(fmtC))
}

func TestShortestPathPrefersNearestValid(t *testing.T) {
	m := newToyManager()
	slots := m.NewSlots()
	v := &toy{}

	require.NoError(t, m.Validate(v, slots, fmtA, WriteDiscard))
	require.NoError(t, m.Validate(v, slots, fmtB, ReadOnly))
	v.log = nil

	require.NoError(t, m.Validate(v, slots, fmtC, ReadOnly))
	assert.Equal(t, []string{"B->C"}, v.log)
}

func TestInvalidate(t *testing.T) {
	m := newToyManager()
	slots := m.NewSlots()
	v := &toy{}

	require.NoError(t, m.Validate(v, slots, fmtA, WriteDiscard))
	slots.Invalidate()
	_, ok := slots.Authoritative()
	assert.False(t, ok)

	v.vals[fmtB] = 9
	require.NoError(t, m.Validate(v, slots, fmtB, ReadOnly))
	assert.Equal(t, 0, v.vals[fmtB])
	assert.Equal(t, 2, slots.Resets())
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "authoritative", Authoritative.String())
	assert.Equal(t, "write-discard", WriteDiscard.String())
	assert.Equal(t, "Format(7)", newToyManager().Name(7))
}
