//go:build windows

// Package webgpu implements the WebGPU accelerator.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
// Kernels are WGSL programs; every launch is recorded into a command batch
// that is submitted by Finish, which is also where readbacks complete.
package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/sparse/internal/accel"
)

// Name is the accelerator name the WebGPU device registers under.
const Name = "webgpu"

// DefaultWorkgroupSize is the default number of invocations per workgroup.
// Reduction kernels require a power of two.
const DefaultWorkgroupSize = 256

func init() {
	accel.Register(Name, func(opts accel.Options) (accel.Accelerator, error) {
		cfg, err := ConfigFromOptions(opts)
		if err != nil {
			return nil, err
		}
		return New(cfg)
	})
}

// Config configures the WebGPU accelerator.
type Config struct {
	WorkgroupSize int // Invocations per workgroup, a power of two.
	MaxBatchSize  int // Kernel launches recorded before an automatic submit; 0 = no limit.
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{WorkgroupSize: DefaultWorkgroupSize, MaxBatchSize: 64}
}

// ConfigFromOptions builds a Config from "wgs" and "batch" options.
func ConfigFromOptions(opts accel.Options) (Config, error) {
	cfg := DefaultConfig()
	var err error
	if cfg.WorkgroupSize, err = opts.Int("wgs", cfg.WorkgroupSize); err != nil {
		return Config{}, err
	}
	if cfg.WorkgroupSize&(cfg.WorkgroupSize-1) != 0 {
		return Config{}, errors.Errorf("webgpu: workgroup size %d is not a power of two", cfg.WorkgroupSize)
	}
	if cfg.MaxBatchSize, err = opts.Int("batch", cfg.MaxBatchSize); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Device is a WebGPU adapter and its logical device.
type Device struct {
	cfg Config

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device

	adapterInfo *wgpu.AdapterInfo

	queue  *Queue
	memory *Memory
	pool   *BufferPool

	mu       sync.Mutex
	programs []*Program

	releaseOnce sync.Once
}

// New creates a WebGPU accelerator.
// Returns an error if WebGPU is not available or initialization fails.
func New(cfg Config) (dev *Device, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			dev = nil
			err = errors.Errorf("webgpu: native library not available: %v", r)
		}
	}()
	if cfg.WorkgroupSize <= 0 {
		cfg.WorkgroupSize = DefaultWorkgroupSize
	}

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, errors.Wrap(adapterErr, "webgpu: failed to request adapter")
	}
	adapterInfo := adapter.GetInfo()

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(deviceErr, "webgpu: failed to request device")
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.New("webgpu: failed to get queue")
	}

	d := &Device{
		cfg:         cfg,
		instance:    instance,
		adapter:     adapter,
		device:      device,
		adapterInfo: &adapterInfo,
		pool:        NewBufferPool(device),
	}
	d.memory = &Memory{dev: d}
	d.queue = newQueue(d, queue)
	klog.V(1).Infof("webgpu: created device (%s, wgs=%d)", d.Description(), cfg.WorkgroupSize)
	return d, nil
}

// Name returns "webgpu".
func (d *Device) Name() string { return Name }

// Description names the adapter.
func (d *Device) Description() string {
	if d.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", d.adapterInfo.Name, d.adapterInfo.VendorName)
	}
	return "WebGPU"
}

// Dialect returns WGSL.
func (d *Device) Dialect() accel.Dialect { return accel.DialectWGSL }

// DefaultWorkgroupSize returns the configured workgroup size.
func (d *Device) DefaultWorkgroupSize() int { return d.cfg.WorkgroupSize }

// DefaultQueue returns the device queue.
func (d *Device) DefaultQueue() accel.Queue { return d.queue }

// Queues returns the single device queue.
func (d *Device) Queues() []accel.Queue { return []accel.Queue{d.queue} }

// Memory returns the device memory context.
func (d *Device) Memory() accel.Memory { return d.memory }

// AdapterInfo returns information about the GPU adapter.
func (d *Device) AdapterInfo() *wgpu.AdapterInfo { return d.adapterInfo }

// Release waits for pending work and releases all WebGPU resources.
func (d *Device) Release() {
	d.releaseOnce.Do(func() {
		if err := d.queue.Finish(); err != nil {
			klog.Warningf("webgpu: pending work failed during release: %v", err)
		}
		d.mu.Lock()
		for _, p := range d.programs {
			p.release()
		}
		d.programs = nil
		d.mu.Unlock()

		d.pool.Clear()
		d.queue.release()
		d.device.Release()
		d.adapter.Release()
		d.instance.Release()
	})
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// ListAdapters returns information about the available GPU adapters.
func ListAdapters() (adapters []*wgpu.AdapterInfo, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			adapters = nil
			err = errors.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	// WebGPU has no adapter enumeration; report the default one.
	adapter, adapterErr := instance.RequestAdapter(nil)
	if adapterErr != nil {
		return nil, errors.Wrap(adapterErr, "webgpu: no adapters available")
	}
	defer adapter.Release()

	info := adapter.GetInfo()
	return []*wgpu.AdapterInfo{&info}, nil
}

// Compile-time interface check.
var _ accel.Accelerator = (*Device)(nil)
