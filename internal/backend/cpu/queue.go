package cpu

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/born-ml/sparse/internal/accel"
	"github.com/born-ml/sparse/internal/kernels"
	"github.com/born-ml/sparse/internal/parallel"
)

// queueDepth bounds the number of recorded but not yet executed commands.
const queueDepth = 256

// ErrQueueClosed is returned when enqueuing on a released device.
var ErrQueueClosed = errors.New("cpu: queue closed")

// Queue is an in-order command queue drained by a dedicated goroutine.
// Every command carries a sequence number; Finish enqueues a marker and
// reports the device errors of commands sequenced before it.
type Queue struct {
	id     int
	device *Device

	mu     sync.RWMutex
	closed bool
	seqMu  sync.Mutex
	seq    uint64
	tasks  chan command
	done   chan struct{}

	errMu   sync.Mutex
	errs    []seqError
	fences  int    // Finish calls waiting on their marker
	covered uint64 // highest marker a Finish has returned from
}

type command struct {
	seq uint64
	fn  func() error
}

type seqError struct {
	seq uint64
	err error
}

func newQueue(d *Device, id int) *Queue {
	q := &Queue{
		id:     id,
		device: d,
		tasks:  make(chan command, queueDepth),
		done:   make(chan struct{}),
	}
	go q.worker()
	return q
}

func (q *Queue) worker() {
	for c := range q.tasks {
		q.run(c)
	}
	close(q.done)
}

// run executes one command, turning a panicking kernel into a device error.
func (q *Queue) run(c command) {
	defer func() {
		if r := recover(); r != nil {
			q.fail(c.seq, errors.Errorf("cpu: queue %d: device fault: %v", q.id, r))
		}
	}()
	if err := c.fn(); err != nil {
		q.fail(c.seq, errors.Wrapf(err, "cpu: queue %d", q.id))
	}
}

func (q *Queue) fail(seq uint64, err error) {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	q.errs = append(q.errs, seqError{seq: seq, err: err})
}

// submit records fn and returns its sequence number.
func (q *Queue) submit(fn func() error) (uint64, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return 0, ErrQueueClosed
	}
	// Sequence numbers follow channel order.
	q.seqMu.Lock()
	defer q.seqMu.Unlock()
	q.seq++
	q.tasks <- command{seq: q.seq, fn: fn}
	return q.seq, nil
}

func (q *Queue) enqueue(fn func() error) error {
	_, err := q.submit(fn)
	return err
}

func (q *Queue) stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	<-q.done
}

// String implements fmt.Stringer.
func (q *Queue) String() string { return fmt.Sprintf("cpu queue %d", q.id) }

// EnqueueWrite copies data into dst at offset once earlier commands completed.
func (q *Queue) EnqueueWrite(dst accel.Buffer, offset int, data []byte) error {
	b, err := hostBuffer(dst)
	if err != nil {
		return err
	}
	if err := checkRange(b, offset, len(data)); err != nil {
		return err
	}
	staged := append([]byte(nil), data...)
	return q.enqueue(func() error {
		q.device.transfers.Add(1)
		copy(b.data[offset:], staged)
		return nil
	})
}

// EnqueueRead copies len(dst) bytes of src at offset into dst.
func (q *Queue) EnqueueRead(src accel.Buffer, offset int, dst []byte) error {
	b, err := hostBuffer(src)
	if err != nil {
		return err
	}
	if err := checkRange(b, offset, len(dst)); err != nil {
		return err
	}
	return q.enqueue(func() error {
		q.device.transfers.Add(1)
		copy(dst, b.data[offset:offset+len(dst)])
		return nil
	})
}

// EnqueueCopy copies size bytes between buffers.
func (q *Queue) EnqueueCopy(src accel.Buffer, srcOffset int, dst accel.Buffer, dstOffset int, size int) error {
	s, err := hostBuffer(src)
	if err != nil {
		return err
	}
	d, err := hostBuffer(dst)
	if err != nil {
		return err
	}
	if err := checkRange(s, srcOffset, size); err != nil {
		return err
	}
	if err := checkRange(d, dstOffset, size); err != nil {
		return err
	}
	return q.enqueue(func() error {
		q.device.transfers.Add(1)
		copy(d.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
		return nil
	})
}

// EnqueueKernel launches a kernel over r. Arguments are captured at enqueue time.
func (q *Queue) EnqueueKernel(k accel.Kernel, r accel.Range) error {
	hk, ok := k.(*Kernel)
	if !ok {
		return errors.Errorf("cpu: kernel %T was not built by the software accelerator", k)
	}
	if r.Local <= 0 || r.Global%r.Local != 0 {
		return errors.Errorf("cpu: invalid launch range %+v", r)
	}
	args := append(kernels.Args(nil), hk.args...)
	for i, a := range args {
		if b, ok := a.(accel.Buffer); ok {
			if _, err := hostBuffer(b); err != nil {
				return errors.Wrapf(err, "cpu: kernel %s argument %d", hk.name, i)
			}
		}
	}
	cfg := q.device.cfg.Parallel
	name, fn := hk.name, hk.fn
	return q.enqueue(func() error {
		q.device.kernels.Add(1)
		return parallel.ForGroups(r.Groups(), r.Local, func(g int) (err error) {
			// Groups run on worker goroutines; a fault must not take the process down.
			defer func() {
				if p := recover(); p != nil {
					err = errors.Errorf("kernel %s group %d: device fault: %v", name, g, p)
				}
			}()
			return fn(kernels.Group{ID: g, Size: r.Local, Offset: r.Offset, Global: r.Global}, args)
		}, cfg)
	})
}

// Finish blocks until every command enqueued before it ran and reports the
// first device error among them. Concurrent Finish calls on one queue each
// wait for their own marker. Errors are dropped once no Finish is waiting.
func (q *Queue) Finish() error {
	q.errMu.Lock()
	q.fences++
	q.errMu.Unlock()

	reached := make(chan struct{})
	marker, err := q.submit(func() error {
		close(reached)
		return nil
	})
	if err != nil {
		// A closed queue has drained; report what is left.
		marker = ^uint64(0)
	} else {
		<-reached
	}

	q.errMu.Lock()
	defer q.errMu.Unlock()
	q.fences--
	q.covered = max(q.covered, marker)
	var first error
	kept := q.errs[:0]
	for _, e := range q.errs {
		if e.seq < marker && first == nil {
			first = e.err
		}
		if q.fences == 0 && e.seq < q.covered {
			continue
		}
		kept = append(kept, e)
	}
	q.errs = kept
	return first
}

// Compile-time interface check.
var _ accel.Queue = (*Queue)(nil)
