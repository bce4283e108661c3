//go:build windows

package webgpu

import (
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/accel"
)

// paramsBinding is the binding of the u32 params array: launch offset,
// launch size, then the scalar arguments at 2+index.
const paramsBinding = 8

// ErrQueueClosed is returned when enqueuing on a released device.
var ErrQueueClosed = errors.New("webgpu: queue closed")

// pendingRead is a readback waiting for the next Finish.
type pendingRead struct {
	staging *wgpu.Buffer
	class   uint64
	size    uint64
	dst     []byte
}

// Queue records commands into one command encoder and submits them as a
// batch. Readbacks are copied into pooled staging buffers and mapped by Finish.
type Queue struct {
	dev   *Device
	queue *wgpu.Queue

	mu       sync.Mutex
	closed   bool
	encoder  *wgpu.CommandEncoder
	launches int
	reads    []pendingRead

	// Released once the commands using them are submitted.
	buffers []*wgpu.Buffer
	groups  []*wgpu.BindGroup
}

func newQueue(d *Device, q *wgpu.Queue) *Queue {
	return &Queue{dev: d, queue: q}
}

func (q *Queue) encoderLocked() *wgpu.CommandEncoder {
	if q.encoder == nil {
		q.encoder = q.dev.device.CreateCommandEncoder(nil)
	}
	return q.encoder
}

// flushLocked submits the recorded commands and releases the resources
// that were only kept alive for them.
func (q *Queue) flushLocked() {
	if q.encoder != nil {
		cmdBuffer := q.encoder.Finish(nil)
		q.queue.Submit(cmdBuffer)
		q.encoder = nil
		q.launches = 0
	}
	for _, g := range q.groups {
		g.Release()
	}
	for _, b := range q.buffers {
		b.Release()
	}
	q.groups, q.buffers = q.groups[:0], q.buffers[:0]
}

// deferRelease releases buf after the commands recorded so far are submitted.
func (q *Queue) deferRelease(buf *wgpu.Buffer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.encoder == nil || q.closed {
		buf.Release()
		return
	}
	q.buffers = append(q.buffers, buf)
}

// checkTransfer validates a transfer of size bytes at offset against b.
// Offsets must be 4-byte aligned; an unaligned size is only allowed at the
// end of the buffer, where the allocation padding absorbs it.
func checkTransfer(b *Buffer, offset, size int) (uint64, error) {
	if offset < 0 || size < 0 || offset+size > b.size {
		return 0, errors.Errorf("webgpu: range [%d, %d) outside buffer of %d bytes", offset, offset+size, b.size)
	}
	if offset%4 != 0 || (size%4 != 0 && offset+size != b.size) {
		return 0, errors.Errorf("webgpu: unaligned transfer of %d bytes at offset %d", size, offset)
	}
	return uint64(align4(size)), nil
}

// EnqueueWrite copies data into dst at offset through a staging buffer.
func (q *Queue) EnqueueWrite(dst accel.Buffer, offset int, data []byte) error {
	b, err := deviceBuffer(dst)
	if err != nil {
		return err
	}
	size, err := checkTransfer(b, offset, len(data))
	if err != nil || size == 0 {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	staging := q.dev.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), size), data)
	staging.Unmap()

	q.encoderLocked().CopyBufferToBuffer(staging, 0, b.buf, uint64(offset), size)
	q.buffers = append(q.buffers, staging)
	return nil
}

// EnqueueRead records a copy of src into a staging buffer. dst is filled by
// the next Finish.
func (q *Queue) EnqueueRead(src accel.Buffer, offset int, dst []byte) error {
	b, err := deviceBuffer(src)
	if err != nil {
		return err
	}
	size, err := checkTransfer(b, offset, len(dst))
	if err != nil || size == 0 {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	staging, class := q.dev.pool.Acquire(size)
	q.encoderLocked().CopyBufferToBuffer(b.buf, uint64(offset), staging, 0, size)
	q.reads = append(q.reads, pendingRead{staging: staging, class: class, size: size, dst: dst})
	return nil
}

// EnqueueCopy copies size bytes between device buffers.
func (q *Queue) EnqueueCopy(src accel.Buffer, srcOffset int, dst accel.Buffer, dstOffset int, size int) error {
	s, err := deviceBuffer(src)
	if err != nil {
		return err
	}
	d, err := deviceBuffer(dst)
	if err != nil {
		return err
	}
	n, err := checkTransfer(s, srcOffset, size)
	if err != nil {
		return err
	}
	if _, err := checkTransfer(d, dstOffset, size); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.encoderLocked().CopyBufferToBuffer(s.buf, uint64(srcOffset), d.buf, uint64(dstOffset), n)
	return nil
}

// EnqueueKernel records a compute pass of k over r. Arguments are bound at
// enqueue time.
func (q *Queue) EnqueueKernel(k accel.Kernel, r accel.Range) error {
	wk, ok := k.(*Kernel)
	if !ok {
		return errors.Errorf("webgpu: kernel %T was not built by the WebGPU accelerator", k)
	}
	if r.Local != q.dev.cfg.WorkgroupSize || r.Global%r.Local != 0 {
		return errors.Errorf("webgpu: launch range %+v does not match workgroup size %d", r, q.dev.cfg.WorkgroupSize)
	}

	params := make([]uint32, 2+len(wk.args))
	params[0], params[1] = uint32(r.Offset), uint32(r.Global)
	var entries []wgpu.BindGroupEntry
	for i, a := range wk.args {
		switch v := a.(type) {
		case accel.Buffer:
			b, err := deviceBuffer(v)
			if err != nil {
				return errors.Wrapf(err, "webgpu: kernel %s argument %d", wk.name, i)
			}
			entries = append(entries, wgpu.BufferBindingEntry(uint32(i), b.buf, 0, uint64(align4(b.size))))
		case scalar:
			params[2+i] = uint32(v)
		default:
			return errors.Errorf("webgpu: kernel %s argument %d is not set", wk.name, i)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	paramsBytes := accel.AsBytes(params)
	paramsSize := uint64(len(paramsBytes))
	paramsBuf := q.dev.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage,
		Size:             paramsSize,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := paramsBuf.GetMappedRange(0, paramsSize)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), paramsSize), paramsBytes)
	paramsBuf.Unmap()
	q.buffers = append(q.buffers, paramsBuf)
	entries = append(entries, wgpu.BufferBindingEntry(paramsBinding, paramsBuf, 0, paramsSize))

	bindGroupLayout := wk.pipeline.GetBindGroupLayout(0)
	bindGroup := q.dev.device.CreateBindGroupSimple(bindGroupLayout, entries)
	q.groups = append(q.groups, bindGroup)

	computePass := q.encoderLocked().BeginComputePass(nil)
	computePass.SetPipeline(wk.pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	//nolint:gosec // G115: Groups() is clamped to accel.MaxGroups
	computePass.DispatchWorkgroups(uint32(r.Groups()), 1, 1)
	computePass.End()

	q.launches++
	if limit := q.dev.cfg.MaxBatchSize; limit > 0 && q.launches >= limit {
		q.flushLocked()
	}
	return nil
}

// Finish submits the recorded commands, waits for them by mapping the
// pending readbacks and copies the read data out.
func (q *Queue) Finish() (err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("webgpu: device fault: %v", r)
		}
	}()
	if q.closed {
		return nil
	}
	q.flushLocked()

	reads := q.reads
	q.reads = nil
	for _, rd := range reads {
		if mapErr := rd.staging.MapAsync(q.dev.device, wgpu.MapModeRead, 0, rd.size); mapErr != nil {
			if err == nil {
				err = errors.Wrap(mapErr, "webgpu: failed to map staging buffer")
			}
			rd.staging.Release()
			continue
		}
		mappedPtr := rd.staging.GetMappedRange(0, rd.size)
		//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
		copy(rd.dst, unsafe.Slice((*byte)(mappedPtr), rd.size))
		rd.staging.Unmap()
		q.dev.pool.Release(rd.staging, rd.class)
	}
	return err
}

func (q *Queue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.flushLocked()
	for _, rd := range q.reads {
		rd.staging.Release()
	}
	q.reads = nil
	q.closed = true
	q.queue.Release()
}

// Compile-time interface check.
var _ accel.Queue = (*Queue)(nil)
