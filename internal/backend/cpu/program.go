package cpu

import (
	"bufio"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/kernels"
)

// ErrCompile is wrapped by every host program compile failure.
var ErrCompile = errors.New("cpu: compile failed")

// Program is a compiled host program: its entry points bound to host kernels.
type Program struct {
	name    string
	entries map[string]kernels.Func
}

// Name returns the program name.
func (p *Program) Name() string { return p.name }

// MakeKernel creates a kernel invocation for an entry point.
func (p *Program) MakeKernel(entry string) (accel.Kernel, error) {
	fn, ok := p.entries[entry]
	if !ok {
		return nil, errors.Errorf("cpu: program %s has no entry %q", p.name, entry)
	}
	return &Kernel{name: entry, fn: fn}, nil
}

// Kernel is a host kernel with its bound arguments.
type Kernel struct {
	name string
	fn   kernels.Func
	args kernels.Args
}

// Name returns the entry point name.
func (k *Kernel) Name() string { return k.name }

// SetArg binds argument index.
func (k *Kernel) SetArg(index int, value any) error {
	if index < 0 {
		return errors.Errorf("cpu: kernel %s: negative argument index %d", k.name, index)
	}
	switch value.(type) {
	case accel.Buffer, int32, uint32, float32, float64:
	default:
		return errors.Errorf("cpu: kernel %s: unsupported argument %d of type %T", k.name, index, value)
	}
	for len(k.args) <= index {
		k.args = append(k.args, nil)
	}
	k.args[index] = value
	return nil
}

// Compile parses a rendered host program and binds each declared kernel entry
// to its host implementation.
func (d *Device) Compile(src accel.Source) (accel.Program, error) {
	d.compiles.Add(1)
	if src.Type == nil {
		return nil, errors.Wrapf(ErrCompile, "%s: missing element type", src.Name)
	}
	if strings.Contains(src.Text, "{{") || strings.Contains(src.Text, "<no value>") {
		return nil, errors.Wrapf(ErrCompile, "%s: unsubstituted template text", src.Name)
	}

	p := &Program{name: src.Name, entries: make(map[string]kernels.Func)}
	sc := bufio.NewScanner(strings.NewReader(src.Text))
	for line := 1; sc.Scan(); line++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "program", "wgs", "op":
		case "type":
			if len(fields) != 2 || fields[1] != src.Type.Code() {
				return nil, errors.Wrapf(ErrCompile, "%s:%d: type line %q does not match %s", src.Name, line, sc.Text(), src.Type.Code())
			}
		case "kernel":
			if len(fields) != 2 {
				return nil, errors.Wrapf(ErrCompile, "%s:%d: malformed kernel line", src.Name, line)
			}
			entry := fields[1]
			factory, ok := kernels.LookupHost(src.Name, entry, src.Type)
			if !ok {
				return nil, errors.Wrapf(ErrCompile, "%s:%d: no host kernel %s for %s", src.Name, line, entry, src.Type)
			}
			fn, err := factory(src)
			if err != nil {
				return nil, errors.Wrapf(ErrCompile, "%s:%d: %v", src.Name, line, err)
			}
			p.entries[entry] = fn
		default:
			return nil, errors.Wrapf(ErrCompile, "%s:%d: unknown directive %q", src.Name, line, fields[0])
		}
	}
	if len(p.entries) == 0 {
		return nil, errors.Wrapf(ErrCompile, "%s: no kernel entries", src.Name)
	}
	return p, nil
}
