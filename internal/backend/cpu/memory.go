package cpu

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/accel"
)

// minBufferSize keeps zero-length allocations addressable.
const minBufferSize = 4

// Buffer is host memory owned by the software accelerator.
type Buffer struct {
	data     []byte
	released atomic.Bool
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() int { return len(b.data) }

// Bytes returns the buffer memory.
func (b *Buffer) Bytes() []byte { return b.data }

// Release drops the buffer memory.
func (b *Buffer) Release() {
	b.released.Store(true)
}

// Released reports whether Release was called.
func (b *Buffer) Released() bool { return b.released.Load() }

// Memory allocates software accelerator buffers.
type Memory struct {
	allocated atomic.Int64
}

// Alloc allocates a zero-filled buffer.
func (m *Memory) Alloc(size int) (accel.Buffer, error) {
	if size < 0 {
		return nil, errors.Errorf("cpu: negative buffer size %d", size)
	}
	size = max(size, minBufferSize)
	m.allocated.Add(int64(size))
	return &Buffer{data: accel.AlignedBytes(size)}, nil
}

// Upload allocates a buffer holding a copy of data.
func (m *Memory) Upload(data []byte) (accel.Buffer, error) {
	buf, err := m.Alloc(len(data))
	if err != nil {
		return nil, err
	}
	copy(buf.(*Buffer).data, data)
	return buf, nil
}

// Allocated returns the total number of bytes allocated so far.
func (m *Memory) Allocated() int64 { return m.allocated.Load() }

func hostBuffer(b accel.Buffer) (*Buffer, error) {
	hb, ok := b.(*Buffer)
	if !ok {
		return nil, errors.Errorf("cpu: buffer %T does not belong to the software accelerator", b)
	}
	if hb.Released() {
		return nil, errors.New("cpu: use of released buffer")
	}
	return hb, nil
}

func checkRange(b *Buffer, offset, size int) error {
	if offset < 0 || size < 0 || offset+size > len(b.data) {
		return errors.Errorf("cpu: range [%d, %d) outside buffer of %d bytes", offset, offset+size, len(b.data))
	}
	return nil
}
