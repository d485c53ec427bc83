package hashtable

import "unsafe"

// claimBucket linear-probes s starting from hv's probe seed, claiming the
// first empty slot it finds or recognizing a slot already claimed for hv.
// It returns ok=false only when the probe exhausts the whole store without
// finding either, which acquireBucket treats as "trigger migration and
// retry", since a correctly sized store never fills past its threshold.
func (t *Table) claimBucket(s *store, hv Hash128, epoch uint64) (b *bucket, claimedByUs bool, ok bool) {
	cap64 := uint64(s.capacity())
	start := hv.probeSeed()
	for i := uint64(0); i < cap64; i++ {
		cand := s.bucketAt(start + i)
		claimed, byUs := cand.tryClaim(hv, epoch)
		if !claimed {
			continue // slot holds a different hash; keep probing
		}
		return cand, byUs, true
	}
	return nil, false, false
}

// acquireBucket finds or claims the bucket for hv in the table's current
// store, triggering and helping a migration first if the store has
// crossed its load threshold (or if linear probing failed to find a free
// slot, which implies the threshold check raced a burst of concurrent
// claims). migrated is true whenever the caller must reload the current
// store and retry the whole operation.
func (t *Table) acquireBucket(threadKey int64, s *store, hv Hash128) (b *bucket, isNew bool, migrated bool) {
	if s.needsMigration() {
		t.migrate(threadKey, s)
		return nil, false, true
	}

	epoch := t.mgr.CurrentEpoch()
	cand, byUs, ok := t.claimBucket(s, hv, epoch)
	if !ok {
		t.migrate(threadKey, s)
		return nil, false, true
	}
	if s.loadNext() != nil {
		// A migration started concurrently with our claim; our bucket
		// (freshly claimed or not) may already be behind the helper
		// sweep. Let the caller re-resolve against the successor rather
		// than risk a claim the migration never sees.
		t.migrate(threadKey, s)
		return nil, false, true
	}
	if byUs {
		s.addUsed(1)
	}
	return cand, byUs, false
}

// migrate grows (or resizes in place) the table's store and relocates
// every live entry from old into the successor, publishing it as the new
// current store. Any number of goroutines may call migrate concurrently
// for the same old store; they cooperate via CAS on storeNext and
// storeCurrent; exactly one of them performs the Publish CAS, and it
// retires old.
func (t *Table) migrate(threadKey int64, old *store) {
	next := old.loadNext()
	if next == nil {
		live := old.loadUsed() - old.loadDel()
		newCap := old.capacity()
		if live > int64(old.capacity())*int64(t.cfg.MigGrowPct)/100 {
			newCap *= 2
		}
		if newCap < minCapacity {
			newCap = minCapacity
		}
		candidate := newStore(newCap, t.cfg.MigLoadPct)
		if old.casNext(nil, candidate) {
			next = candidate
		} else {
			next = old.loadNext()
		}
	}

	t.helpMigrate(threadKey, old, next)

	if t.loadCurrent() == old && t.casCurrent(old, next) {
		t.mgr.Retire(threadKey, old)
	}
}

// helpMigrate relocates every non-deleted bucket of old into next. It is
// safe to call redundantly: freeze is a no-op on an already-frozen bucket,
// and installing into next is itself a CAS race any number of helpers can
// enter.
func (t *Table) helpMigrate(threadKey int64, old, next *store) {
	for i := range old.buckets {
		b := &old.buckets[i]
		if !b.isUsed() {
			continue
		}

		liveHead := b.freeze()
		if liveHead == nil {
			// Already frozen by another helper; nothing left for us to
			// read from this bucket.
			continue
		}

		t.mgr.HelpCommit(liveHead)
		if liveHead.flag == flagDeleted {
			continue
		}

		t.installMigrated(threadKey, next, b.hv, b.createEpoch, liveHead.item)
	}
}

// installMigrated writes one collapsed record, discarding history below
// the migration point, into next's bucket for hv. If next has itself
// started a nested migration concurrently with our claim, the bucket
// installMigrated just claimed (or found already claimed) may sit outside
// the window next's own helpMigrate pass swept, so it recurses into next's
// successor instead of writing a copy that successor's migration would
// never see, mirroring the same recheck acquireBucket performs for
// ordinary reads and writes.
func (t *Table) installMigrated(threadKey int64, next *store, hv Hash128, createEpoch uint64, item interface{}) {
	b, byUs, ok := t.claimBucket(next, hv, createEpoch)
	if !ok {
		// next itself is already over threshold and full; force its
		// migration and hand the entry to its successor.
		t.migrate(threadKey, next)
		if successor := next.loadNext(); successor != nil {
			t.installMigrated(threadKey, successor, hv, createEpoch, item)
		}
		return
	}
	if successor := next.loadNext(); successor != nil {
		t.installMigrated(threadKey, successor, hv, createEpoch, item)
		return
	}
	if byUs {
		next.addUsed(1)
	}

	r := newRecord(item, flagUsed, nil)
	t.mgr.AllocCommitted(r)
	r.SetCreateEpoch(createEpoch)

	for {
		head := b.loadHead()
		if isFrozen(head) {
			t.mgr.RetireUnused(r)
			return
		}
		if head != nil {
			// Another helper already migrated this key into next, or a
			// concurrent writer raced ahead of us against next directly;
			// our collapsed copy is redundant.
			t.mgr.RetireUnused(r)
			return
		}
		r.next = unsafe.Pointer(head)
		if b.casHead(head, r) {
			return
		}
	}
}
