//go:build windows

package webgpu

import (
	"math"
	"regexp"
	"strings"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/sparse/internal/accel"
)

// ErrCompile is wrapped by every WGSL program compile failure.
var ErrCompile = errors.New("webgpu: compile failed")

var entryPoint = regexp.MustCompile(`@compute\s+@workgroup_size\([^)]*\)\s*fn\s+([A-Za-z_][A-Za-z0-9_]*)`)

// Program is a compiled WGSL shader module with one pipeline per entry point.
type Program struct {
	name      string
	shader    *wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
}

// Name returns the program name.
func (p *Program) Name() string { return p.name }

// MakeKernel creates a kernel invocation for an entry point.
func (p *Program) MakeKernel(entry string) (accel.Kernel, error) {
	pipeline, ok := p.pipelines[entry]
	if !ok {
		return nil, errors.Errorf("webgpu: program %s has no entry %q", p.name, entry)
	}
	return &Kernel{name: entry, pipeline: pipeline}, nil
}

func (p *Program) release() {
	for _, pl := range p.pipelines {
		pl.Release()
	}
	p.pipelines = nil
	if p.shader != nil {
		p.shader.Release()
		p.shader = nil
	}
}

// Compile compiles WGSL source and creates a compute pipeline with an
// automatic layout for every entry point.
func (d *Device) Compile(src accel.Source) (prog accel.Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			prog = nil
			err = errors.Wrapf(ErrCompile, "%s: %v", src.Name, r)
		}
	}()
	if src.Type == nil {
		return nil, errors.Wrapf(ErrCompile, "%s: missing element type", src.Name)
	}
	// WGSL storage buffers hold 32-bit scalars only.
	if src.Type.Size() != 4 {
		return nil, errors.Wrapf(ErrCompile, "%s: WGSL has no %s type", src.Name, src.Type)
	}
	if strings.Contains(src.Text, "{{") || strings.Contains(src.Text, "<no value>") {
		return nil, errors.Wrapf(ErrCompile, "%s: unsubstituted template text", src.Name)
	}
	matches := entryPoint.FindAllStringSubmatch(src.Text, -1)
	if len(matches) == 0 {
		return nil, errors.Wrapf(ErrCompile, "%s: no compute entry points", src.Name)
	}

	shader := d.device.CreateShaderModuleWGSL(src.Text)
	if shader == nil {
		return nil, errors.Wrapf(ErrCompile, "%s: shader module rejected", src.Name)
	}
	p := &Program{name: src.Name, shader: shader, pipelines: make(map[string]*wgpu.ComputePipeline)}
	for _, m := range matches {
		pipeline := d.device.CreateComputePipelineSimple(nil, shader, m[1])
		if pipeline == nil {
			p.release()
			return nil, errors.Wrapf(ErrCompile, "%s: pipeline for %s rejected", src.Name, m[1])
		}
		p.pipelines[m[1]] = pipeline
	}

	d.mu.Lock()
	d.programs = append(d.programs, p)
	d.mu.Unlock()
	klog.V(1).Infof("webgpu: compiled %s (%d entries)", src.Name, len(p.pipelines))
	return p, nil
}

// scalar is a scalar kernel argument as its 32-bit pattern.
type scalar uint32

// Kernel is a pipeline with its bound arguments.
type Kernel struct {
	name     string
	pipeline *wgpu.ComputePipeline
	args     []any
}

// Name returns the entry point name.
func (k *Kernel) Name() string { return k.name }

// SetArg binds argument index. Buffers bind at binding index; scalars are
// passed bit-cast in the params array.
func (k *Kernel) SetArg(index int, value any) error {
	if index < 0 || index >= paramsBinding {
		return errors.Errorf("webgpu: kernel %s: argument index %d out of range", k.name, index)
	}
	var arg any
	switch v := value.(type) {
	case accel.Buffer:
		arg = v
	case int32:
		arg = scalar(uint32(v))
	case uint32:
		arg = scalar(v)
	case float32:
		arg = scalar(math.Float32bits(v))
	case float64:
		return errors.Errorf("webgpu: kernel %s: float64 argument %d is not supported", k.name, index)
	default:
		return errors.Errorf("webgpu: kernel %s: unsupported argument %d of type %T", k.name, index, value)
	}
	for len(k.args) <= index {
		k.args = append(k.args, nil)
	}
	k.args[index] = arg
	return nil
}

// Compile-time interface checks.
var (
	_ accel.Program = (*Program)(nil)
	_ accel.Kernel  = (*Kernel)(nil)
)
