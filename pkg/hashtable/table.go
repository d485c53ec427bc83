package hashtable

import (
	"sort"
	"sync/atomic"
	"unsafe"

	"lattice/pkg/smr"
)

// Table is a concurrent, linearizable, ordered dictionary keyed by
// caller-supplied 128-bit hash values. It never blocks: every operation
// makes progress through the SMR epoch protocol and a migrating bucket
// store.
//
// The reference library registers a thread's reservation slot implicitly
// from thread-local storage, which Go has no equivalent of. Every Table
// method instead takes an explicit threadKey, which the caller picks once
// per goroutine (a goroutine ID library, a pool-slot index, or any stable
// int64 works) and reuses for the goroutine's lifetime.
type Table struct {
	mgr *smr.Manager
	cfg Config

	current unsafe.Pointer // *store, atomic
}

// NewTable creates an empty table. A zero-value Config is replaced with
// DefaultConfig.
func NewTable(mgr *smr.Manager, cfg Config) (*Table, error) {
	cfg = cfg.withDefaults()
	if !isPowerOfTwo(cfg.InitialCapacity) || cfg.InitialCapacity < minCapacity {
		return nil, ErrCapacityOutOfRange
	}
	s := newStore(cfg.InitialCapacity, cfg.MigLoadPct)
	t := &Table{mgr: mgr, cfg: cfg}
	atomic.StorePointer(&t.current, unsafe.Pointer(s))
	return t, nil
}

func (t *Table) loadCurrent() *store {
	return (*store)(atomic.LoadPointer(&t.current))
}

func (t *Table) casCurrent(old, new *store) bool {
	return atomic.CompareAndSwapPointer(&t.current, unsafe.Pointer(old), unsafe.Pointer(new))
}

// handle registers (idempotently) threadKey with the manager and returns
// its reservation handle.
func (t *Table) handle(threadKey int64) (*smr.Handle, error) {
	return t.mgr.Register(threadKey)
}

// Get returns the item stored for hv, or found=false if hv is absent or
// its most recent write (at the current linearization point) was a
// delete.
func (t *Table) Get(threadKey int64, hv Hash128) (item interface{}, found bool) {
	h, err := t.handle(threadKey)
	if err != nil {
		return nil, false
	}
	epoch := h.StartLinearizedOp()
	defer h.EndOp()

	s := t.currentForRead()
	b, ok := t.findBucket(s, hv)
	if !ok {
		return nil, false
	}
	r := t.visibleRecord(b, epoch)
	if r == nil || r.flag == flagDeleted {
		return nil, false
	}
	return r.item, true
}

// currentForRead follows storeNext to the newest store reachable from the
// published current store, so readers racing a migration always see the
// freshest data without having to wait for Publish.
func (t *Table) currentForRead() *store {
	s := t.loadCurrent()
	for {
		n := s.loadNext()
		if n == nil {
			return s
		}
		s = n
	}
}

// findBucket linear-probes s for hv without claiming anything.
func (t *Table) findBucket(s *store, hv Hash128) (*bucket, bool) {
	cap64 := uint64(s.capacity())
	start := hv.probeSeed()
	for i := uint64(0); i < cap64; i++ {
		b := s.bucketAt(start + i)
		if !b.isUsed() {
			return nil, false
		}
		if b.hv == hv {
			return b, true
		}
	}
	return nil, false
}

// visibleRecord walks b's record list (helping commit as it goes) for the first
// record whose write epoch is at or below epoch.
func (t *Table) visibleRecord(b *bucket, epoch uint64) *record {
	for r := b.loadHead(); r != nil && !isFrozen(r); r = r.loadNext() {
		t.mgr.HelpCommit(r)
		if r.WriteEpoch() != 0 && r.WriteEpoch() <= epoch {
			return r
		}
	}
	return nil
}

// Put installs item for hv. If hv is already present and overwriteOK is
// false, the existing item is left untouched and was_present reports
// true. Otherwise the new item becomes the visible value and the
// previously visible item (if any) is returned.
func (t *Table) Put(threadKey int64, hv Hash128, item interface{}, overwriteOK bool) (old interface{}, wasPresent bool) {
	h, err := t.handle(threadKey)
	if err != nil {
		return nil, false
	}
	h.StartBasicOp()
	defer h.EndOp()

	for {
		s := t.currentForRead()
		b, isNew, migrated := t.acquireBucket(threadKey, s, hv)
		if migrated {
			continue
		}

		if !isNew && !overwriteOK {
			epoch := h.StartLinearizedOp()
			cur := t.visibleRecord(b, epoch)
			if cur != nil && cur.flag != flagDeleted {
				return cur.item, true
			}
		}

		prevItem, wasPresentBefore, needsRetry := t.installRecord(b, item, flagUsed, isNew)
		if needsRetry {
			continue
		}
		return prevItem, wasPresentBefore
	}
}

// installRecord races to push a new record onto b's history list. A losing
// install was never observable by any reader, so its record is retired
// unused; installRecord then allocates a fresh record and retries the CAS
// against the new head (a lock-free retry, not the wait-free "pseudo-earlier
// commit" rule). needsRetry is true only when the bucket was found frozen
// (a migration is in progress) and the whole operation must restart
// against the successor store.
func (t *Table) installRecord(b *bucket, item interface{}, flag recordFlag, isNewBucket bool) (prevItem interface{}, wasPresent bool, needsRetry bool) {
	r := newRecord(item, flag, nil)
	t.mgr.Alloc(r)
	for {
		head := b.loadHead()
		if isFrozen(head) {
			t.mgr.RetireUnused(r)
			return nil, false, true
		}
		if head != nil {
			t.mgr.HelpCommit(head)
		}
		r.next = unsafe.Pointer(head)
		if b.casHead(head, r) {
			t.mgr.CommitWrite(r)
			switch {
			case isNewBucket:
				r.SetCreateEpoch(b.createEpoch)
			case head != nil:
				r.SetCreateEpoch(head.CreateEpoch())
			}
			if head != nil && head.flag != flagDeleted {
				return head.item, true, false
			}
			return nil, false, false
		}
		t.mgr.RetireUnused(r)
		r = newRecord(item, flag, nil)
		t.mgr.Alloc(r)
	}
}

// Remove deletes hv if present, returning the item that was visible
// immediately beforehand.
func (t *Table) Remove(threadKey int64, hv Hash128) (old interface{}, wasPresent bool) {
	h, err := t.handle(threadKey)
	if err != nil {
		return nil, false
	}
	h.StartBasicOp()
	defer h.EndOp()

	for {
		s := t.currentForRead()
		b, ok := t.findBucket(s, hv)
		if !ok {
			return nil, false
		}

		r := newRecord(nil, flagDeleted, nil)
		t.mgr.Alloc(r)
		retry := false
		done := false
		for !done {
			head := b.loadHead()
			if isFrozen(head) {
				t.mgr.RetireUnused(r)
				retry = true
				break
			}
			if head != nil {
				t.mgr.HelpCommit(head)
				if head.flag == flagDeleted {
					t.mgr.RetireUnused(r)
					return nil, false
				}
			}
			r.next = unsafe.Pointer(head)
			if b.casHead(head, r) {
				t.mgr.CommitWrite(r)
				if head != nil {
					r.SetCreateEpoch(head.CreateEpoch())
				}
				s.addDel(1)
				if head != nil {
					old, wasPresent = head.item, true
				}
				done = true
				continue
			}
			t.mgr.RetireUnused(r)
			r = newRecord(nil, flagDeleted, nil)
			t.mgr.Alloc(r)
		}
		if retry {
			continue
		}
		return old, wasPresent
	}
}

// Len returns used_count - del_count from the current store: an
// approximation that matches the linearizable view size only at
// quiescence.
func (t *Table) Len() uint64 {
	s := t.currentForRead()
	used := s.loadUsed()
	del := s.loadDel()
	if used < del {
		return 0
	}
	return uint64(used - del)
}

// Entry is one observed (hash, item) pair returned by View, ordered by
// the epoch at which its key was first claimed.
type Entry struct {
	Hash      Hash128
	Item      interface{}
	SortEpoch uint64
}

// View returns a linearizable, ordered snapshot of every key visible at
// the epoch of the call, sorted by creation order (not last-write order):
// inserting h1,h2,h3 and later updating h2 still yields h1,h2,h3.
func (t *Table) View(threadKey int64) []Entry {
	h, err := t.handle(threadKey)
	if err != nil {
		return nil
	}
	epoch := h.StartLinearizedOp()
	defer h.EndOp()

	s := t.currentForRead()
	entries := make([]Entry, 0, s.capacity())
	for i := range s.buckets {
		b := &s.buckets[i]
		if !b.isUsed() {
			continue
		}
		r := t.visibleRecord(b, epoch)
		if r == nil || r.flag == flagDeleted {
			continue
		}
		entries = append(entries, Entry{Hash: b.hv, Item: r.item, SortEpoch: b.createEpoch})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].SortEpoch < entries[j].SortEpoch })
	return entries
}
