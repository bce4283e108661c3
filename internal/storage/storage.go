// Package storage implements the format/access state machine shared by all
// containers.
//
// A container holds one slot per storage format. Each slot is Invalid, Valid
// (consistent with the latest write) or Authoritative (holds the latest write).
// Accesses declare a format and a mode; the Manager resets or converts slots
// so that the requested format reflects the latest write before the access
// proceeds. Conversions follow the shortest path in the conversion graph.
package storage

import (
	"fmt"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Format identifies a storage format within one container kind.
type Format int

// State is the validity of one format slot.
type State uint8

// Slot states.
const (
	Invalid State = iota
	Valid
	Authoritative
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Invalid:
		return "invalid"
	case Valid:
		return "valid"
	case Authoritative:
		return "authoritative"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Mode is the declared intent of an access.
type Mode uint8

// Access modes.
const (
	// ReadOnly makes the format consistent without changing authority.
	ReadOnly Mode = iota
	// WriteDiscard resets the format without reading prior content and makes it authoritative.
	WriteDiscard
	// ReadWrite makes the format consistent and authoritative.
	ReadWrite
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case WriteDiscard:
		return "write-discard"
	case ReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

var (
	// ErrNoPath is returned when no conversion path reaches the requested format.
	ErrNoPath = errors.New("storage: no conversion path")
	// ErrUnknownFormat is returned for formats the manager does not declare.
	ErrUnknownFormat = errors.New("storage: unknown format")
)

// Slots is the per-container validity state. It is not safe for concurrent
// use; containers serialize validation.
type Slots struct {
	states      []State
	conversions int
	resets      int
}

// State returns the state of format f.
func (s *Slots) State(f Format) State {
	if int(f) < 0 || int(f) >= len(s.states) {
		return Invalid
	}
	return s.states[f]
}

// Authoritative returns the format holding the latest write.
func (s *Slots) Authoritative() (Format, bool) {
	for f, st := range s.states {
		if st == Authoritative {
			return Format(f), true
		}
	}
	return 0, false
}

// Conversions returns the number of conversion steps performed.
func (s *Slots) Conversions() int { return s.conversions }

// Resets returns the number of slot resets performed.
func (s *Slots) Resets() int { return s.resets }

// Invalidate marks every slot invalid, as for a container that was never written.
func (s *Slots) Invalidate() {
	for i := range s.states {
		s.states[i] = Invalid
	}
}

func (s *Slots) anyValid() bool {
	for _, st := range s.states {
		if st != Invalid {
			return true
		}
	}
	return false
}

func (s *Slots) makeAuthoritative(f Format) {
	for i := range s.states {
		s.states[i] = Invalid
	}
	s.states[f] = Authoritative
}

// ResetFunc initializes format f of container S to the fill value.
type ResetFunc[S any] func(s S) error

// ConvertFunc rewrites the destination format of S from the source format.
type ConvertFunc[S any] func(s S) error

type edge struct{ src, dst Format }

// Manager holds the reset and conversion routines of one container kind.
// A Manager is configured once and then shared read-only by all containers.
type Manager[S any] struct {
	names    []string
	resets   []ResetFunc[S]
	converts map[edge]ConvertFunc[S]
}

// NewManager creates a manager for formats 0..len(names)-1.
func NewManager[S any](names ...string) *Manager[S] {
	return &Manager[S]{
		names:    names,
		resets:   make([]ResetFunc[S], len(names)),
		converts: make(map[edge]ConvertFunc[S]),
	}
}

// NewSlots returns all-invalid slots for a new container.
func (m *Manager[S]) NewSlots() *Slots {
	return &Slots{states: make([]State, len(m.names))}
}

// Name returns the display name of f.
func (m *Manager[S]) Name(f Format) string {
	if int(f) < 0 || int(f) >= len(m.names) {
		return fmt.Sprintf("Format(%d)", f)
	}
	return m.names[f]
}

// SetReset registers the reset routine of f.
func (m *Manager[S]) SetReset(f Format, fn ResetFunc[S]) {
	m.resets[f] = fn
}

// SetConvert registers the conversion from src to dst.
func (m *Manager[S]) SetConvert(src, dst Format, fn ConvertFunc[S]) {
	m.converts[edge{src, dst}] = fn
}

// shortestPath returns the conversion steps ending in dst from the nearest
// format currently holding consistent content.
func (m *Manager[S]) shortestPath(slots *Slots, dst Format) ([]edge, error) {
	n := len(m.names)
	prev := make([]Format, n)
	seen := make([]bool, n)
	queue := make([]Format, 0, n)
	for f, st := range slots.states {
		if st != Invalid {
			seen[f] = true
			queue = append(queue, Format(f))
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == dst {
			break
		}
		for next := Format(0); int(next) < n; next++ {
			if seen[next] {
				continue
			}
			if _, ok := m.converts[edge{cur, next}]; !ok {
				continue
			}
			seen[next] = true
			prev[next] = cur
			queue = append(queue, next)
		}
	}
	if !seen[dst] {
		return nil, errors.Wrapf(ErrNoPath, "to %s", m.Name(dst))
	}
	var path []edge
	for f := dst; slots.states[f] == Invalid; f = prev[f] {
		path = append(path, edge{prev[f], f})
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Validate prepares format f of s for an access in the given mode.
//
// After a successful call f reflects the latest write. A container that was
// never written reads as the fill value. On error the slot states are left
// unchanged.
func (m *Manager[S]) Validate(s S, slots *Slots, f Format, mode Mode) error {
	if int(f) < 0 || int(f) >= len(m.names) {
		return errors.Wrapf(ErrUnknownFormat, "%d", f)
	}

	if mode == WriteDiscard {
		if err := m.reset(s, slots, f); err != nil {
			return err
		}
		slots.makeAuthoritative(f)
		return nil
	}

	if slots.states[f] == Invalid {
		if !slots.anyValid() {
			if err := m.reset(s, slots, f); err != nil {
				return err
			}
			slots.makeAuthoritative(f)
		} else if err := m.convertTo(s, slots, f); err != nil {
			return err
		}
	}

	if mode == ReadWrite {
		slots.makeAuthoritative(f)
	}
	return nil
}

func (m *Manager[S]) reset(s S, slots *Slots, f Format) error {
	fn := m.resets[f]
	if fn == nil {
		return errors.Errorf("storage: no reset routine for %s", m.Name(f))
	}
	if err := fn(s); err != nil {
		return errors.Wrapf(err, "storage: reset %s", m.Name(f))
	}
	slots.resets++
	return nil
}

func (m *Manager[S]) convertTo(s S, slots *Slots, f Format) error {
	steps, err := m.shortestPath(slots, f)
	if err != nil {
		return err
	}
	for _, e := range steps {
		klog.V(3).Infof("storage: convert %s -> %s", m.Name(e.src), m.Name(e.dst))
		if err := m.converts[e](s); err != nil {
			return errors.Wrapf(err, "storage: convert %s -> %s", m.Name(e.src), m.Name(e.dst))
		}
		slots.conversions++
	}
	for _, e := range steps {
		slots.states[e.dst] = Valid
	}
	return nil
}
