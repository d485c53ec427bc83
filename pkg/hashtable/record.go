package hashtable

import (
	"sync/atomic"
	"unsafe"

	"lattice/pkg/smr"
)

type recordFlag uint32

const (
	flagUsed recordFlag = iota
	flagDeleted
)

// record is one write to one bucket. Records form a singly linked list,
// newest at the head; next threads the list, and smr.Header carries
// the epoch metadata that makes the list linearizable.
type record struct {
	smr.Header
	item interface{}
	flag recordFlag
	next unsafe.Pointer // *record, atomic
}

func newRecord(item interface{}, flag recordFlag, next *record) *record {
	return &record{item: item, flag: flag, next: unsafe.Pointer(next)}
}

func (r *record) loadNext() *record {
	return (*record)(atomic.LoadPointer(&r.next))
}

// frozenSentinel marks a bucket's head as frozen during migration: its
// address is unique and is never a valid *record produced by newRecord,
// so a pointer-equality check distinguishes it from any real record.
var frozenSentinel = &record{}

func isFrozen(r *record) bool { return r == frozenSentinel }
