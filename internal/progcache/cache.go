// Package progcache compiles specialized kernel programs once per accelerator
// and shares the compiled handles across dispatches.
//
// Programs are keyed by template name, element type and operator keys, never
// by rendered text. A build that fails to render or compile poisons its key:
// every later Acquire of that key returns the same error without rebuilding.
package progcache

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"text/template"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/ops"
	"github.com/born-ml/sparse/internal/types"
)

var (
	// ErrRender is wrapped by template rendering failures.
	ErrRender = errors.New("progcache: render failed")
	// ErrCompile is wrapped by accelerator compile failures.
	ErrCompile = errors.New("progcache: compile failed")
	// ErrReleased is returned by Acquire after Release.
	ErrReleased = errors.New("progcache: cache released")
)

// Specialization binds an operator to a template placeholder.
type Specialization struct {
	Placeholder string
	Op          ops.Op
}

// Spec describes one program specialization.
type Spec struct {
	Name   string
	Type   *types.Type
	Ops    []Specialization
	Source string // template text in the accelerator dialect
}

// Key returns the cache key of the specialization.
func (s Spec) Key() string {
	var sb strings.Builder
	sb.WriteString(s.Name)
	sb.WriteByte('|')
	if s.Type != nil {
		sb.WriteString(s.Type.Code())
	}
	for _, sp := range s.Ops {
		sb.WriteByte('|')
		sb.WriteString(sp.Placeholder)
		sb.WriteByte('=')
		if sp.Op != nil {
			sb.WriteString(sp.Op.Key())
		}
	}
	return sb.String()
}

// Stats reports cache activity.
type Stats struct {
	Entries  int
	Builds   uint64
	Hits     uint64
	Failures uint64
}

type entry struct {
	prog accel.Program
	err  error
}

// Cache is the program cache of one accelerator. It is safe for concurrent use.
type Cache struct {
	acc accel.Accelerator

	mu       sync.RWMutex
	entries  map[string]*entry
	released bool
	group    singleflight.Group

	builds   atomic.Uint64
	hits     atomic.Uint64
	failures atomic.Uint64
}

// New creates an empty cache for acc.
func New(acc accel.Accelerator) *Cache {
	return &Cache{acc: acc, entries: make(map[string]*entry)}
}

// Accelerator returns the accelerator programs are compiled for.
func (c *Cache) Accelerator() accel.Accelerator { return c.acc }

func (c *Cache) lookup(key string) (*entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.released {
		return nil, false, ErrReleased
	}
	e, ok := c.entries[key]
	return e, ok, nil
}

// Acquire returns the compiled program for spec, building it on first use.
// Concurrent first acquires of one key share a single build.
func (c *Cache) Acquire(spec Spec) (accel.Program, error) {
	key := spec.Key()
	e, ok, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	if ok {
		c.hits.Add(1)
		return e.prog, e.err
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if e, ok, err := c.lookup(key); err != nil || ok {
			return e, err
		}
		e := c.build(spec)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.released {
			return nil, ErrReleased
		}
		c.entries[key] = e
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	e = v.(*entry)
	return e.prog, e.err
}

func (c *Cache) build(spec Spec) *entry {
	c.builds.Add(1)
	text, err := Render(spec, c.acc.DefaultWorkgroupSize())
	if err != nil {
		c.failures.Add(1)
		return &entry{err: err}
	}
	bound := make(map[string]ops.Op, len(spec.Ops))
	for _, sp := range spec.Ops {
		bound[sp.Placeholder] = sp.Op
	}
	prog, err := c.acc.Compile(accel.Source{Name: spec.Name, Text: text, Type: spec.Type, Ops: bound})
	if err != nil {
		c.failures.Add(1)
		klog.V(1).Infof("progcache: %s for %s failed: %v", spec.Key(), c.acc.Name(), err)
		return &entry{err: errors.Wrapf(ErrCompile, "%s: %v", spec.Key(), err)}
	}
	klog.V(1).Infof("progcache: built %s for %s", spec.Key(), c.acc.Name())
	return &entry{prog: prog}
}

// Render substitutes the specialization into the program template.
func Render(spec Spec, workgroupSize int) (string, error) {
	if spec.Type == nil {
		return "", errors.Wrapf(ErrRender, "%s: missing element type", spec.Name)
	}
	data := map[string]any{
		"TYPE":           spec.Type.Code(),
		"WORKGROUP_SIZE": strconv.Itoa(workgroupSize),
	}
	for _, sp := range spec.Ops {
		if sp.Op == nil {
			return "", errors.Wrapf(ErrRender, "%s: placeholder %s has no operator", spec.Name, sp.Placeholder)
		}
		if sp.Op.Type() != spec.Type {
			return "", errors.Wrapf(ErrRender, "%s: operator %s is %s, program is %s", spec.Name, sp.Op.Name(), sp.Op.Type(), spec.Type)
		}
		data[sp.Placeholder] = sp.Op.Body()
	}

	tmpl, err := template.New(spec.Name).Option("missingkey=error").Parse(spec.Source)
	if err != nil {
		return "", errors.Wrapf(ErrRender, "%s: %v", spec.Name, err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", errors.Wrapf(ErrRender, "%s: %v", spec.Name, err)
	}
	return sb.String(), nil
}

// Stats returns a snapshot of cache activity.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Entries:  n,
		Builds:   c.builds.Load(),
		Hits:     c.hits.Load(),
		Failures: c.failures.Load(),
	}
}

// Release drops every entry. Later acquires fail with ErrReleased.
func (c *Cache) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	c.entries = nil
}
