package hashtable

import (
	"sync/atomic"
	"unsafe"

	"lattice/pkg/smr"
)

// store is a power-of-two bucket array plus the bookkeeping migration
// needs. A table holds at most two live stores at once: storeCurrent and,
// while a migration is in flight, its storeNext. store embeds smr.Header
// so a retired store can be reclaimed through the same epoch-guarded path
// as any other record once no reader could still be mid-traversal of it.
type store struct {
	smr.Header

	buckets []bucket

	lastSlot  uint64 // capacity - 1
	threshold uint64 // used+del count that triggers migration

	usedCount int64 // atomic
	delCount  int64 // atomic

	storeNext unsafe.Pointer // *store, atomic
}

func newStore(capacity int, migLoadPct int) *store {
	s := &store{
		buckets:   make([]bucket, capacity),
		lastSlot:  uint64(capacity - 1),
		threshold: uint64(capacity) * uint64(migLoadPct) / 100,
	}
	return s
}

func (s *store) capacity() int { return len(s.buckets) }

func (s *store) bucketAt(slot uint64) *bucket { return &s.buckets[slot&s.lastSlot] }

func (s *store) loadUsed() int64 { return atomic.LoadInt64(&s.usedCount) }
func (s *store) loadDel() int64  { return atomic.LoadInt64(&s.delCount) }

func (s *store) addUsed(n int64) { atomic.AddInt64(&s.usedCount, n) }
func (s *store) addDel(n int64)  { atomic.AddInt64(&s.delCount, n) }

func (s *store) loadNext() *store {
	return (*store)(atomic.LoadPointer(&s.storeNext))
}

func (s *store) casNext(old, new *store) bool {
	return atomic.CompareAndSwapPointer(&s.storeNext, unsafe.Pointer(old), unsafe.Pointer(new))
}

// needsMigration reports whether the store has crossed its load threshold.
func (s *store) needsMigration() bool {
	return uint64(s.loadUsed()+s.loadDel()) >= s.threshold
}
