package queue

import (
	"sync/atomic"
	"unsafe"

	"lattice/pkg/smr"
)

// Cell states. A cell transitions only EMPTY -> USED (an enqueuer won it)
// or EMPTY -> TOOSLOW (a dequeuer poisoned it ahead of a slow enqueuer);
// once non-EMPTY it never changes again.
const (
	cellEmpty uint32 = iota
	cellUsed
	cellTooSlow
)

// boxedItem heap-allocates an enqueued value so a cell can publish it via
// a single atomic pointer store, independent of the state CAS that
// arbitrates whether the enqueue or a racing dequeue's poison wins the
// cell. This sidesteps the lack of a 128-bit (state, item) CAS: the item
// is made visible strictly before the state transition that reveals it,
// and Go's sequentially-consistent atomics give every other goroutine
// that same order.
type boxedItem struct {
	item interface{}
}

type cell struct {
	state   uint32 // atomic
	itemPtr unsafe.Pointer
}

// segment is one fixed-size link in the queue's chain. Indices only ever
// grow; once both enqueueIndex and dequeueIndex have crossed size, the
// segment is sealed and retired.
type segment struct {
	smr.Header

	size  uint64
	cells []cell

	enqueueIndex uint64 // atomic
	dequeueIndex uint64 // atomic

	next unsafe.Pointer // *segment, atomic
}

func newSegment(size uint64) *segment {
	return &segment{size: size, cells: make([]cell, size)}
}

func (s *segment) faaEnqueueIndex(step uint64) uint64 {
	return atomic.AddUint64(&s.enqueueIndex, step) - step
}

func (s *segment) faaDequeueIndex() uint64 {
	return atomic.AddUint64(&s.dequeueIndex, 1) - 1
}

func (s *segment) loadEnqueueIndex() uint64 { return atomic.LoadUint64(&s.enqueueIndex) }
func (s *segment) loadDequeueIndex() uint64 { return atomic.LoadUint64(&s.dequeueIndex) }

func (s *segment) loadNext() *segment {
	return (*segment)(atomic.LoadPointer(&s.next))
}

func (s *segment) casNext(old, new *segment) bool {
	return atomic.CompareAndSwapPointer(&s.next, unsafe.Pointer(old), unsafe.Pointer(new))
}

// tryClaimCell attempts the EMPTY -> USED transition at index i, publishing
// item first. ok reports whether this call won the cell.
func (s *segment) tryClaimCell(i uint64, item interface{}) (ok bool) {
	c := &s.cells[i]
	atomic.StorePointer(&c.itemPtr, unsafe.Pointer(&boxedItem{item: item}))
	return atomic.CompareAndSwapUint32(&c.state, cellEmpty, cellUsed)
}

// seedCellZero installs item into cell 0 of a brand new segment
// unconditionally; no dequeuer can have reached a segment before its
// enqueueIndex publishes, so no CAS is needed here (mirroring the
// reference implementation's unconditional store into cell 0).
func (s *segment) seedCellZero(item interface{}) {
	s.cells[0].itemPtr = unsafe.Pointer(&boxedItem{item: item})
	s.cells[0].state = cellUsed
}

// tryPoisonCell attempts the EMPTY -> TOOSLOW transition at index i. If it
// loses, the cell already holds an enqueued item, which is returned.
func (s *segment) tryPoisonCell(i uint64) (item interface{}, poisoned bool) {
	c := &s.cells[i]
	if atomic.CompareAndSwapUint32(&c.state, cellEmpty, cellTooSlow) {
		return nil, true
	}
	box := (*boxedItem)(atomic.LoadPointer(&c.itemPtr))
	return box.item, false
}
