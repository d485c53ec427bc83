package queue

import (
	"sync/atomic"
	"unsafe"

	"lattice/pkg/smr"
)

// segPair is the queue's (enqueue_segment, dequeue_segment) pair. The
// reference implementation CASes both pointers together as one 128-bit
// word; Go has no such primitive, so the pair is held behind a single
// atomic pointer to an immutable segPair value instead; updating either
// segment means installing a whole new segPair via CAS on that pointer.
type segPair struct {
	enqueue *segment
	dequeue *segment
}

// Queue is an unbounded, wait-free FIFO built from linked, fixed-size
// segments. Enqueue never fails; Dequeue reports found=false only when
// the queue is logically empty at its linearization point.
type Queue struct {
	mgr *smr.Manager
	cfg Config

	segments unsafe.Pointer // *segPair, atomic

	helpNeeded int64 // atomic
	length     int64 // atomic
}

// NewQueue creates an empty queue. A zero-value Config is replaced with
// DefaultConfig.
func NewQueue(mgr *smr.Manager, cfg Config) (*Queue, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	size := uint64(1) << cfg.SegmentSizeLog
	initial := newSegment(size)
	mgr.AllocCommitted(initial)

	q := &Queue{mgr: mgr, cfg: cfg}
	atomic.StorePointer(&q.segments, unsafe.Pointer(&segPair{enqueue: initial, dequeue: initial}))
	return q, nil
}

func (q *Queue) loadSegments() *segPair {
	return (*segPair)(atomic.LoadPointer(&q.segments))
}

func (q *Queue) casSegments(old, new *segPair) bool {
	return atomic.CompareAndSwapPointer(&q.segments, unsafe.Pointer(old), unsafe.Pointer(new))
}

// handle registers (idempotently) threadKey with the manager.
func (q *Queue) handle(threadKey int64) (*smr.Handle, error) {
	return q.mgr.Register(threadKey)
}

// Len returns the queue's approximate length: an atomic counter updated
// on every successful enqueue and dequeue, exact at quiescence.
func (q *Queue) Len() int64 {
	return atomic.LoadInt64(&q.length)
}

// Enqueue appends item to the queue. It never fails.
func (q *Queue) Enqueue(threadKey int64, item interface{}) {
	h, err := q.handle(threadKey)
	if err != nil {
		return
	}
	h.StartBasicOp()
	defer h.EndOp()

	step := uint64(1)
	needHelp := false

	segs := q.loadSegments()
	seg := segs.enqueue
	curIx := seg.faaEnqueueIndex(step)

	for {
		for curIx < seg.size {
			if seg.tryClaimCell(curIx, item) {
				if needHelp {
					atomic.AddInt64(&q.helpNeeded, -1)
				}
				atomic.AddInt64(&q.length, 1)
				return
			}
			step <<= 1
			curIx = seg.faaEnqueueIndex(step)
		}

		// seg is full (or was raced past full); figure out how big the
		// successor segment should be, allocate it, and try to link it
		// in. Check first whether another thread already advanced the
		// enqueue segment out from under us.
		var newSize uint64
		if step >= q.cfg.HelpThreshold && !needHelp {
			needHelp = true
			atomic.AddInt64(&q.helpNeeded, 1)

			segs = q.loadSegments()
			if segs.enqueue != seg {
				seg = segs.enqueue
				curIx = seg.faaEnqueueIndex(step)
				continue
			}
			newSize = seg.size << 1
		} else {
			segs = q.loadSegments()
			if segs.enqueue != seg {
				seg = segs.enqueue
				curIx = seg.faaEnqueueIndex(step)
				continue
			}
			if atomic.LoadInt64(&q.helpNeeded) > 0 {
				newSize = seg.size << 1
			} else {
				newSize = uint64(1) << q.cfg.SegmentSizeLog
			}
		}

		newSeg := newSegment(newSize)
		q.mgr.AllocCommitted(newSeg)
		newSeg.seedCellZero(item)
		atomic.StoreUint64(&newSeg.enqueueIndex, 1)

		needToEnqueue := false
		if !seg.casNext(nil, newSeg) {
			q.mgr.RetireUnused(newSeg)
			newSeg = seg.loadNext()
			needToEnqueue = true
		}

		candidate := &segPair{enqueue: newSeg, dequeue: segs.dequeue}
		for !q.casSegments(segs, candidate) {
			if segs.enqueue != seg {
				break
			}
			segs = q.loadSegments()
			candidate = &segPair{enqueue: newSeg, dequeue: segs.dequeue}
		}

		if !needToEnqueue {
			if needHelp {
				atomic.AddInt64(&q.helpNeeded, -1)
			}
			atomic.AddInt64(&q.length, 1)
			return
		}

		seg = newSeg
		curIx = seg.faaEnqueueIndex(step)
	}
}

// Dequeue removes and returns the oldest item in the queue. found is
// false iff the queue was logically empty at the linearization point.
func (q *Queue) Dequeue(threadKey int64) (item interface{}, found bool) {
	h, err := q.handle(threadKey)
	if err != nil {
		return nil, false
	}
	h.StartBasicOp()
	defer h.EndOp()

	segs := q.loadSegments()
	seg := segs.dequeue

dequeueLoop:
	for {
		for {
			curIx := seg.loadDequeueIndex()
			headIx := seg.loadEnqueueIndex()

			if curIx >= seg.size {
				break
			}
			if curIx >= headIx {
				return nil, false
			}

			curIx = seg.faaDequeueIndex()
			if curIx >= seg.size {
				break
			}

			val, poisoned := seg.tryPoisonCell(curIx)
			if poisoned {
				continue
			}
			atomic.AddInt64(&q.length, -1)
			return val, true
		}

		newSeg := seg.loadNext()
		if newSeg == nil {
			return nil, false
		}

		candidate := &segPair{enqueue: segs.enqueue, dequeue: newSeg}
		for !q.casSegments(segs, candidate) {
			cur := q.loadSegments()
			if cur.dequeue != seg {
				seg = cur.dequeue
				segs = cur
				continue dequeueLoop
			}
			segs = cur
			candidate = &segPair{enqueue: segs.enqueue, dequeue: newSeg}
		}

		q.mgr.Retire(threadKey, seg)
		segs = candidate
		seg = newSeg
	}
}
