//go:build windows

package webgpu

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/accel"
)

// storageUsage is the usage of every buffer handed to executors.
const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// align4 rounds n up to the 4-byte granularity WebGPU copies require.
func align4(n int) int { return (n + 3) &^ 3 }

// Buffer is a storage buffer on the device.
type Buffer struct {
	buf      *wgpu.Buffer
	size     int
	dev      *Device
	released atomic.Bool
}

// Size returns the requested size in bytes.
func (b *Buffer) Size() int { return b.size }

// Release returns the buffer to the device. Commands already recorded that
// use the buffer still complete: the WebGPU buffer is released by the next
// queue submission.
func (b *Buffer) Release() {
	if b.released.Swap(true) {
		return
	}
	b.dev.memory.trackRelease(uint64(align4(b.size)))
	b.dev.queue.deferRelease(b.buf)
}

func deviceBuffer(b accel.Buffer) (*Buffer, error) {
	db, ok := b.(*Buffer)
	if !ok {
		return nil, errors.Errorf("webgpu: buffer %T does not belong to the WebGPU accelerator", b)
	}
	if db.released.Load() {
		return nil, errors.New("webgpu: use of released buffer")
	}
	return db, nil
}

// MemoryStats represents GPU memory usage statistics.
type MemoryStats struct {
	// Bytes currently allocated
	AllocatedBytes uint64
	// Peak memory usage in bytes
	PeakMemoryBytes uint64
	// Number of currently active buffers
	ActiveBuffers int64
	// Staging buffer pool statistics
	PoolHits      uint64
	PoolMisses    uint64
	PooledBuffers int
}

// Memory allocates storage buffers.
type Memory struct {
	dev *Device

	mu            sync.Mutex
	allocated     uint64
	peak          uint64
	activeBuffers int64
}

// Alloc allocates a zero-filled storage buffer. WebGPU zero-initializes new buffers.
func (m *Memory) Alloc(size int) (accel.Buffer, error) {
	if size < 0 {
		return nil, errors.Errorf("webgpu: negative buffer size %d", size)
	}
	if size == 0 {
		size = 4
	}
	aligned := uint64(align4(size))
	buf := m.dev.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: storageUsage,
		Size:  aligned,
	})
	if buf == nil {
		return nil, errors.Errorf("webgpu: failed to allocate %d bytes", aligned)
	}
	m.trackAlloc(aligned)
	return &Buffer{buf: buf, size: size, dev: m.dev}, nil
}

// Upload allocates a storage buffer initialized with a copy of data.
func (m *Memory) Upload(data []byte) (accel.Buffer, error) {
	size := len(data)
	if size == 0 {
		size = 4
	}
	aligned := uint64(align4(size))
	buf := m.dev.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            storageUsage,
		Size:             aligned,
		MappedAtCreation: wgpu.True,
	})
	if buf == nil {
		return nil, errors.Errorf("webgpu: failed to allocate %d bytes", aligned)
	}
	mappedPtr := buf.GetMappedRange(0, aligned)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mapped := unsafe.Slice((*byte)(mappedPtr), aligned)
	copy(mapped, data)
	buf.Unmap()
	m.trackAlloc(aligned)
	return &Buffer{buf: buf, size: size, dev: m.dev}, nil
}

// Stats returns current GPU memory usage statistics.
func (m *Memory) Stats() MemoryStats {
	m.mu.Lock()
	s := MemoryStats{AllocatedBytes: m.allocated, PeakMemoryBytes: m.peak, ActiveBuffers: m.activeBuffers}
	m.mu.Unlock()
	_, _, s.PoolHits, s.PoolMisses, s.PooledBuffers = m.dev.pool.Stats()
	return s
}

func (m *Memory) trackAlloc(size uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocated += size
	m.activeBuffers++
	if m.allocated > m.peak {
		m.peak = m.allocated
	}
}

func (m *Memory) trackRelease(size uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allocated >= size {
		m.allocated -= size
	}
	m.activeBuffers--
}
