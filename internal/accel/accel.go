// Package accel defines the accelerator abstraction consumed by executors:
// devices, in-order command queues, device memory, compiled programs and kernels.
//
// Implementations:
//   - cpu: software device executing host kernels on goroutines (internal/backend/cpu)
//   - webgpu: GPU device via go-webgpu, WGSL kernels (internal/backend/webgpu, windows)
package accel

import (
	"github.com/born-ml/sparse/internal/ops"
	"github.com/born-ml/sparse/internal/types"
)

// Dialect names the kernel language an accelerator compiles.
type Dialect string

// Supported kernel dialects.
const (
	DialectHost Dialect = "host"
	DialectWGSL Dialect = "wgsl"
)

// Accelerator represents a compute device with its queues and memory context.
// An Accelerator is created once per physical device and released at shutdown.
type Accelerator interface {
	// Name returns the short accelerator name, e.g. "cpu" or "webgpu".
	Name() string
	// Description returns a longer human-readable device description.
	Description() string
	// Dialect returns the kernel language accepted by Compile.
	Dialect() Dialect
	// DefaultWorkgroupSize returns the preferred number of lanes per work-group.
	DefaultWorkgroupSize() int
	// DefaultQueue returns the queue executors enqueue on.
	DefaultQueue() Queue
	// Queues returns every queue of the device, the default one first.
	Queues() []Queue
	// Memory returns the device memory context.
	Memory() Memory
	// Compile builds a program from rendered kernel source.
	Compile(src Source) (Program, error)
	// Release releases all device resources.
	Release()
}

// Memory allocates device buffers.
type Memory interface {
	// Alloc allocates a zero-filled buffer of size bytes.
	Alloc(size int) (Buffer, error)
	// Upload allocates a buffer initialized with a copy of data.
	Upload(data []byte) (Buffer, error)
}

// Buffer is a region of device memory.
type Buffer interface {
	// Size returns the buffer size in bytes.
	Size() int
	// Release returns the buffer to the device.
	Release()
}

// Queue is an in-order command queue.
// Enqueue methods return once the command is recorded; commands execute in
// submission order. Finish is the only call that waits for the device.
type Queue interface {
	// EnqueueWrite copies data into dst at offset. The data is copied before the call returns.
	EnqueueWrite(dst Buffer, offset int, data []byte) error
	// EnqueueRead copies len(dst) bytes from src at offset into dst.
	// dst must not be read before a following Finish returns.
	EnqueueRead(src Buffer, offset int, dst []byte) error
	// EnqueueCopy copies size bytes between device buffers.
	EnqueueCopy(src Buffer, srcOffset int, dst Buffer, dstOffset int, size int) error
	// EnqueueKernel launches kernel over the given range.
	EnqueueKernel(kernel Kernel, r Range) error
	// Finish blocks until all previously enqueued commands completed.
	Finish() error
}

// Source is a rendered kernel program ready for compilation.
type Source struct {
	// Name is the kernel template name, e.g. "m_extract_row".
	Name string
	// Text is the rendered program text in the accelerator dialect.
	Text string
	// Type is the element type specialization.
	Type *types.Type
	// Ops maps each operator placeholder to its operator.
	Ops map[string]ops.Op
}

// Program is a compiled program.
type Program interface {
	// Name returns the program name.
	Name() string
	// MakeKernel creates a fresh kernel invocation for an entry point.
	MakeKernel(entry string) (Kernel, error)
}

// Kernel is one invocation of a program entry point with bound arguments.
// A Kernel must not be shared between concurrent launches.
type Kernel interface {
	// Name returns the entry point name.
	Name() string
	// SetArg binds argument index to a Buffer or a scalar of an element type.
	SetArg(index int, value any) error
}
