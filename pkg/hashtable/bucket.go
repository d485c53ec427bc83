package hashtable

import (
	"runtime"
	"sync/atomic"
	"unsafe"
)

// Bucket claim states. Go has no native 128-bit CAS, so claiming a bucket
// is split into two atomic steps guarded by a tag: a thread first wins the
// claim with a CAS on state, then publishes the full 128-bit hash before
// flipping the tag to published. Any other thread that observes the
// claiming state briefly spins (the window between the two stores is a
// couple of instructions) rather than ever writing hv itself.
const (
	bucketEmpty uint32 = iota
	bucketClaiming
	bucketPublished
)

type bucket struct {
	state uint32 // atomic, one of the bucket* constants
	hv    Hash128

	createEpoch uint64 // epoch at which this bucket's key was first claimed

	head unsafe.Pointer // *record, atomic; frozenSentinel during migration
}

// tryClaim attempts to claim this bucket for hv. It returns (true, true)
// if this call won the claim, (true, false) if the bucket already holds
// hv, or (false, false) if the bucket holds a different hash (the caller
// should probe the next slot).
func (b *bucket) tryClaim(hv Hash128, epoch uint64) (ok bool, claimedByUs bool) {
	if atomic.CompareAndSwapUint32(&b.state, bucketEmpty, bucketClaiming) {
		b.hv = hv
		b.createEpoch = epoch
		atomic.StoreUint32(&b.state, bucketPublished)
		return true, true
	}

	for {
		s := atomic.LoadUint32(&b.state)
		if s == bucketPublished {
			break
		}
		runtime.Gosched()
	}
	if b.hv == hv {
		return true, false
	}
	return false, false
}

func (b *bucket) isUsed() bool {
	return atomic.LoadUint32(&b.state) == bucketPublished
}

func (b *bucket) loadHead() *record {
	return (*record)(atomic.LoadPointer(&b.head))
}

func (b *bucket) casHead(old, new *record) bool {
	return atomic.CompareAndSwapPointer(&b.head, unsafe.Pointer(old), unsafe.Pointer(new))
}

// freeze marks the bucket as moving, blocking any further head CAS from
// succeeding until migration publishes the successor store. It returns the
// record list as it stood at the moment of freezing, which is what
// migration walks to populate the successor store.
func (b *bucket) freeze() *record {
	for {
		old := b.loadHead()
		if isFrozen(old) {
			// Another thread already froze this bucket and we have no
			// way to recover the pre-freeze list from the sentinel
			// alone; the thread that froze it received the list and
			// migrates it.
			return nil
		}
		if b.casHead(old, frozenSentinel) {
			return old
		}
	}
}

func (b *bucket) isFrozen() bool {
	return isFrozen(b.loadHead())
}
