// Package cpu implements the software accelerator: a device whose in-order
// queues are drained by goroutines and whose kernels are Go functions
// launched work-group by work-group across all cores.
package cpu

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
	"k8s.io/klog/v2"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/parallel"
)

// Name is the accelerator name the software device registers under.
const Name = "cpu"

func init() {
	accel.Register(Name, func(opts accel.Options) (accel.Accelerator, error) {
		cfg, err := ConfigFromOptions(opts)
		if err != nil {
			return nil, err
		}
		return New(cfg), nil
	})
}

// Config configures the software accelerator.
type Config struct {
	WorkgroupSize int             // Lanes per work-group; 0 selects from CPU features.
	Queues        int             // Number of in-order queues; 0 means 1.
	Parallel      parallel.Config // Work-group fan-out.
}

// DefaultConfig returns the default configuration for this machine.
func DefaultConfig() Config {
	return Config{
		WorkgroupSize: DefaultWorkgroupSize(),
		Queues:        1,
		Parallel:      parallel.DefaultConfig(),
	}
}

// ConfigFromOptions builds a Config from "wgs" and "queues" options.
func ConfigFromOptions(opts accel.Options) (Config, error) {
	cfg := DefaultConfig()
	var err error
	if cfg.WorkgroupSize, err = opts.Int("wgs", cfg.WorkgroupSize); err != nil {
		return Config{}, err
	}
	if cfg.Queues, err = opts.Int("queues", cfg.Queues); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultWorkgroupSize picks the work-group width from the widest SIMD unit.
func DefaultWorkgroupSize() int {
	switch {
	case cpu.X86.HasAVX512F:
		return 64
	case cpu.X86.HasAVX2 && cpu.X86.HasFMA:
		return 32
	default:
		return 16
	}
}

// Stats counts the commands executed by the device.
type Stats struct {
	Kernels   uint64
	Transfers uint64
	Compiles  uint64
}

// Device is the software accelerator.
type Device struct {
	cfg    Config
	queues []*Queue
	memory *Memory

	kernels   atomic.Uint64
	transfers atomic.Uint64
	compiles  atomic.Uint64

	releaseOnce sync.Once
}

// New creates a software accelerator.
func New(cfg Config) *Device {
	if cfg.WorkgroupSize <= 0 {
		cfg.WorkgroupSize = DefaultWorkgroupSize()
	}
	if cfg.Queues <= 0 {
		cfg.Queues = 1
	}
	if cfg.Parallel.NumWorkers <= 0 {
		cfg.Parallel = parallel.DefaultConfig()
	}
	d := &Device{cfg: cfg, memory: &Memory{}}
	for i := 0; i < cfg.Queues; i++ {
		d.queues = append(d.queues, newQueue(d, i))
	}
	klog.V(1).Infof("cpu: created device (%s, wgs=%d, queues=%d)", features(), cfg.WorkgroupSize, cfg.Queues)
	return d
}

// Name returns "cpu".
func (d *Device) Name() string { return Name }

// Description returns the device description including detected CPU features.
func (d *Device) Description() string {
	return fmt.Sprintf("software accelerator on %d %s cores (%s)", runtime.NumCPU(), runtime.GOARCH, features())
}

// Dialect returns accel.DialectHost.
func (d *Device) Dialect() accel.Dialect { return accel.DialectHost }

// DefaultWorkgroupSize returns the configured work-group width.
func (d *Device) DefaultWorkgroupSize() int { return d.cfg.WorkgroupSize }

// DefaultQueue returns the first queue.
func (d *Device) DefaultQueue() accel.Queue { return d.queues[0] }

// Queues returns all queues.
func (d *Device) Queues() []accel.Queue {
	qs := make([]accel.Queue, len(d.queues))
	for i, q := range d.queues {
		qs[i] = q
	}
	return qs
}

// Memory returns the device memory context.
func (d *Device) Memory() accel.Memory { return d.memory }

// Stats returns the command counters.
func (d *Device) Stats() Stats {
	return Stats{
		Kernels:   d.kernels.Load(),
		Transfers: d.transfers.Load(),
		Compiles:  d.compiles.Load(),
	}
}

// Release drains and stops every queue.
func (d *Device) Release() {
	d.releaseOnce.Do(func() {
		for _, q := range d.queues {
			q.stop()
		}
	})
}

func features() string {
	return fmt.Sprintf("avx2=%v fma=%v avx512f=%v", cpu.X86.HasAVX2, cpu.X86.HasFMA, cpu.X86.HasAVX512F)
}

// Compile-time interface check.
var _ accel.Accelerator = (*Device)(nil)
