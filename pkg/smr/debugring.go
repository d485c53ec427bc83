package smr

import (
	"runtime"
	"strings"
	"sync/atomic"
)

// debugRingSize must be a power of two so the sequence-to-slot mapping can
// use a bitmask instead of a modulo.
const debugRingSize = 4096

type debugRecord struct {
	sequence uint64
	thread   int64
	msg      string
}

// DebugRing is a bounded, lock-free ring buffer of recent textual events,
// useful when chasing down a reordering under heavy contention. It is not
// required for correctness and costs three atomic adds per event (the
// sequence number plus the slot's seqlock twice) when enabled; when
// disabled, Event is a no-op.
type DebugRing struct {
	enabled  uint32
	sequence uint64
	records  [debugRingSize]debugRecord
	mu       [debugRingSize]uint32 // per-slot seqlock: odd while a write is in flight
}

// NewDebugRing creates a ring buffer, initially disabled.
func NewDebugRing() *DebugRing {
	return &DebugRing{}
}

// Enable turns on event recording.
func (d *DebugRing) Enable() { atomic.StoreUint32(&d.enabled, 1) }

// Disable turns off event recording; Event becomes a no-op.
func (d *DebugRing) Disable() { atomic.StoreUint32(&d.enabled, 0) }

// Event records msg for threadKey if the ring is enabled.
func (d *DebugRing) Event(threadKey int64, msg string) {
	if atomic.LoadUint32(&d.enabled) == 0 {
		return
	}
	seq := atomic.AddUint64(&d.sequence, 1) - 1
	idx := seq & (debugRingSize - 1)
	slot := &d.mu[idx]
	atomic.AddUint32(slot, 1) // odd: write in flight
	d.records[idx] = debugRecord{sequence: seq, thread: threadKey, msg: msg}
	atomic.AddUint32(slot, 1) // even: write visible
}

// readSlot performs a seqlock read of records[idx], retrying whenever a
// writer is in the middle of updating that slot concurrently.
func (d *DebugRing) readSlot(idx uint64) debugRecord {
	slot := &d.mu[idx]
	for {
		v1 := atomic.LoadUint32(slot)
		if v1&1 != 0 {
			runtime.Gosched()
			continue
		}
		r := d.records[idx]
		if atomic.LoadUint32(slot) == v1 {
			return r
		}
	}
}

// Dump returns up to n of the most recently recorded events, newest last.
func (d *DebugRing) Dump(n int) []string {
	seq := atomic.LoadUint64(&d.sequence)
	if n <= 0 || n > debugRingSize {
		n = debugRingSize
	}
	if uint64(n) > seq {
		n = int(seq)
	}
	out := make([]string, 0, n)
	for i := n; i > 0; i-- {
		idx := (seq - uint64(i)) & (debugRingSize - 1)
		out = append(out, d.readSlot(idx).msg)
	}
	return out
}

// Grep returns every currently buffered event containing substr.
func (d *DebugRing) Grep(substr string) []string {
	all := d.Dump(debugRingSize)
	var out []string
	for _, m := range all {
		if strings.Contains(m, substr) {
			out = append(out, m)
		}
	}
	return out
}
