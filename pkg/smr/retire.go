package smr

import "sync/atomic"

// retireList is a thread-local singly linked list of retired records,
// threaded through Header.retireNext so no auxiliary allocation is needed
// to track them.
type retireList struct {
	head  *Header
	count int
}

func (m *Manager) listFor(threadKey int64) *retireList {
	m.retireMu.Lock()
	defer m.retireMu.Unlock()
	l, ok := m.lists[threadKey]
	if !ok {
		l = &retireList{}
		m.lists[threadKey] = l
	}
	return l
}

// Alloc prepares r for use: its write epoch is left at zero, meaning
// "uncommitted; readers must help". Call CommitWrite once r is linked
// into visible structure.
func (m *Manager) Alloc(r Retirable) {
	h := r.smrHeader()
	h.createEpoch = 0
	atomic.StoreUint64(&h.writeEpoch, 0)
	m.counts.inc(ctrMallocs)
	m.budget.trackAlloc()
}

// AllocCommitted prepares r and immediately stamps it with the current
// epoch, for callers (like a brand new queue segment) that know no
// linearization race is possible.
func (m *Manager) AllocCommitted(r Retirable) {
	h := r.smrHeader()
	e := atomic.LoadUint64(&m.epoch)
	h.createEpoch = e
	atomic.StoreUint64(&h.writeEpoch, e)
	m.counts.inc(ctrMallocs)
	m.budget.trackAlloc()
}

// CommitWrite stamps r with a fresh, globally unique epoch, bumping the
// global epoch to produce it. If another thread has already helped commit
// r (see HelpCommit), the CAS silently loses and that's fine: r already
// carries a definite epoch before any reader could observe it.
func (m *Manager) CommitWrite(r Retirable) {
	h := r.smrHeader()
	cur := atomic.AddUint64(&m.epoch, 1)
	atomic.CompareAndSwapUint64(&h.writeEpoch, 0, cur)
	m.counts.inc(ctrCommit)
}

// HelpCommit is called by a reader that finds a record with no commit
// epoch yet. It performs the same bump-and-CAS as CommitWrite; the race is
// fine because the CAS has a single winner and every reader is forced to
// see a definite epoch before proceeding.
func (m *Manager) HelpCommit(r Retirable) {
	if r == nil {
		return
	}
	h := r.smrHeader()
	if atomic.LoadUint64(&h.writeEpoch) != 0 {
		return
	}
	cur := atomic.AddUint64(&m.epoch, 1)
	atomic.CompareAndSwapUint64(&h.writeEpoch, 0, cur)
	m.counts.inc(ctrCommitHelp)
}

// Retire hands r to the reclamation subsystem. It is unsafe to touch r
// through any other reference from this point on; once no reservation
// could still observe it, scan (run automatically every 2^RetireFreqLog
// retires, or on demand via ScanAndFree) drops the last reference so the
// garbage collector can reclaim it.
func (m *Manager) Retire(threadKey int64, r Retirable) {
	if r == nil {
		return
	}
	h := r.smrHeader()
	h.retireEpoch = atomic.LoadUint64(&m.epoch)
	atomic.StoreUint32(&h.retired, 1)

	l := m.listFor(threadKey)
	h.setNextRetired(l.head)
	l.head = h
	l.count++

	m.budget.trackRetire()
	m.counts.inc(ctrRetire)

	if l.count&(m.cfg.retireFreq()-1) == 0 {
		m.scanAndFree(l)
	}
}

// RetireUnused frees r immediately. Callers use this only when they are
// certain no other thread could possibly have observed r, the classic
// case being a CAS loser that published nothing before losing the race.
func (m *Manager) RetireUnused(r Retirable) {
	if r == nil {
		return
	}
	h := r.smrHeader()
	atomic.StoreUint32(&h.freed, 1)
	// r never went onto a retire list, so only the live count drops.
	atomic.AddInt64(&m.budget.liveRecords, -1)
	m.counts.inc(ctrRetireUnused)
	m.counts.inc(ctrFrees)
}

// ScanAndFree walks the caller's retire list and frees every record whose
// retire epoch is strictly below the minimum reservation across all
// registered threads. It runs automatically every 2^RetireFreqLog retires,
// but callers may invoke it directly (for instance while draining a
// structure at shutdown) to force progress.
func (m *Manager) ScanAndFree(threadKey int64) int {
	return m.scanAndFree(m.listFor(threadKey))
}

func (m *Manager) scanAndFree(l *retireList) int {
	min := m.minReservation()

	freed := 0
	var kept *Header
	cur := l.head
	for cur != nil {
		next := cur.nextRetired()
		if cur.retireEpoch < min {
			atomic.StoreUint32(&cur.freed, 1)
			cur.setNextRetired(nil)
			m.budget.trackFree()
			freed++
		} else {
			cur.setNextRetired(kept)
			kept = cur
		}
		cur = next
	}
	l.head = kept
	l.count = 0
	m.counts.add(ctrFreed, uint64(freed))
	m.counts.add(ctrFrees, uint64(freed))
	return freed
}

// CleanUpBeforeExit flushes the calling thread's retire list, advancing
// the epoch as necessary to force progress, and releases its reservation
// slot. Every thread that used the Manager must call this before exiting.
func (m *Manager) CleanUpBeforeExit(threadKey int64) {
	l := m.listFor(threadKey)
	for l.head != nil {
		atomic.AddUint64(&m.epoch, 1)
		if m.scanAndFree(l) == 0 && l.head != nil {
			// Every remaining record is still within some reservation's
			// window; there is nothing more this thread can do but let
			// go of its own reservation so the holder can make progress.
			break
		}
	}
	m.retireMu.Lock()
	delete(m.lists, threadKey)
	m.retireMu.Unlock()

	m.Release(threadKey)
}
