//go:build windows

package webgpu

import (
	"math/bits"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

// stagingUsage is the usage of readback staging buffers.
const stagingUsage = wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst

const (
	minStagingSize   = 256 // Smallest size class in bytes
	maxPooledPerSize = 16  // Buffers kept per size class
)

// BufferPool recycles readback staging buffers. Buffers are grouped by
// power-of-two size class so a buffer serves any read up to its class size.
type BufferPool struct {
	device *wgpu.Device

	mu      sync.Mutex
	classes map[uint64][]*wgpu.Buffer

	// Statistics
	totalAllocated uint64
	totalReleased  uint64
	poolHits       uint64
	poolMisses     uint64
}

// NewBufferPool creates a staging buffer pool for the given device.
func NewBufferPool(device *wgpu.Device) *BufferPool {
	return &BufferPool{device: device, classes: make(map[uint64][]*wgpu.Buffer)}
}

// sizeClass returns the smallest power of two >= size, at least minStagingSize.
func sizeClass(size uint64) uint64 {
	if size <= minStagingSize {
		return minStagingSize
	}
	return 1 << bits.Len64(size-1)
}

// Acquire returns an unmapped staging buffer of at least size bytes and its class size.
func (p *BufferPool) Acquire(size uint64) (*wgpu.Buffer, uint64) {
	class := sizeClass(size)

	p.mu.Lock()
	defer p.mu.Unlock()
	if free := p.classes[class]; len(free) > 0 {
		buf := free[len(free)-1]
		p.classes[class] = free[:len(free)-1]
		p.poolHits++
		return buf, class
	}
	p.poolMisses++
	p.totalAllocated++
	return p.device.CreateBuffer(&wgpu.BufferDescriptor{Usage: stagingUsage, Size: class}), class
}

// Release returns an unmapped staging buffer to its class.
// If the class is full, the buffer is released immediately.
func (p *BufferPool) Release(buf *wgpu.Buffer, class uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalReleased++
	if len(p.classes[class]) >= maxPooledPerSize {
		buf.Release()
		return
	}
	p.classes[class] = append(p.classes[class], buf)
}

// Clear releases all pooled buffers.
func (p *BufferPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for class, free := range p.classes {
		for _, buf := range free {
			buf.Release()
		}
		delete(p.classes, class)
	}
}

// Stats returns statistics about buffer pool usage.
func (p *BufferPool) Stats() (allocated, released, hits, misses uint64, pooledCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, free := range p.classes {
		pooledCount += len(free)
	}
	return p.totalAllocated, p.totalReleased, p.poolHits, p.poolMisses, pooledCount
}
