package smr

import (
	"sync"
	"testing"
)

type testRecord struct {
	Header
	val int
}

func TestRegisterReusesSlotForSameKey(t *testing.T) {
	m := NewManager(DefaultConfig())
	h1, err := m.Register(1)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	h2, err := m.Register(1)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if h1.slot != h2.slot {
		t.Errorf("expected same slot for repeated Register(1), got %d and %d", h1.slot, h2.slot)
	}
}

func TestRegisterExhaustion(t *testing.T) {
	m := NewManager(Config{Tmax: 2})
	if _, err := m.Register(1); err != nil {
		t.Fatalf("Register(1): %v", err)
	}
	if _, err := m.Register(2); err != nil {
		t.Fatalf("Register(2): %v", err)
	}
	if _, err := m.Register(3); err != ErrTooManyThreads {
		t.Errorf("expected ErrTooManyThreads, got %v", err)
	}
}

func TestReleaseFreesSlotForReuse(t *testing.T) {
	m := NewManager(Config{Tmax: 1})
	h, err := m.Register(1)
	if err != nil {
		t.Fatalf("Register(1): %v", err)
	}
	h.EndOp()
	m.Release(1)

	h2, err := m.Register(2)
	if err != nil {
		t.Fatalf("Register(2) after release: %v", err)
	}
	if h2.slot != h.slot {
		t.Errorf("expected slot reuse, got %d want %d", h2.slot, h.slot)
	}
}

func TestCommitWriteStampsEpochOnce(t *testing.T) {
	m := NewManager(DefaultConfig())
	r := &testRecord{val: 1}
	m.Alloc(r)
	if r.WriteEpoch() != 0 {
		t.Fatalf("expected uncommitted write epoch of 0, got %d", r.WriteEpoch())
	}

	m.CommitWrite(r)
	first := r.WriteEpoch()
	if first == 0 {
		t.Fatal("expected CommitWrite to stamp a non-zero epoch")
	}

	m.CommitWrite(r)
	if r.WriteEpoch() != first {
		t.Errorf("expected second CommitWrite to be a no-op, got %d want %d", r.WriteEpoch(), first)
	}
}

func TestHelpCommitAgreesWithCommitWrite(t *testing.T) {
	m := NewManager(DefaultConfig())
	r := &testRecord{val: 1}
	m.Alloc(r)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); m.CommitWrite(r) }()
	go func() { defer wg.Done(); m.HelpCommit(r) }()
	wg.Wait()

	if r.WriteEpoch() == 0 {
		t.Error("expected record to carry a definite write epoch after racing commit/help-commit")
	}
}

func TestRetireDoesNotFreeWhileReserved(t *testing.T) {
	m := NewManager(DefaultConfig())
	reader, err := m.Register(1)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	reader.StartLinearizedOp()

	r := &testRecord{val: 1}
	m.AllocCommitted(r)
	m.Retire(2, r)
	m.ScanAndFree(2)

	if r.IsFreed() {
		t.Error("expected record to survive scan while a reader still holds an overlapping reservation")
	}

	reader.EndOp()
	m.ScanAndFree(2)
	if !r.IsFreed() {
		t.Error("expected record to be freed once the blocking reservation ended")
	}
}

func TestRetireUnusedFreesImmediately(t *testing.T) {
	m := NewManager(DefaultConfig())
	r := &testRecord{val: 1}
	m.Alloc(r)
	m.RetireUnused(r)
	if !r.IsFreed() {
		t.Error("expected RetireUnused to free immediately")
	}
}

func TestConcurrentRegisterRetireScan(t *testing.T) {
	m := NewManager(Config{Tmax: 64, RetireFreqLog: 2})
	const n = 50

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(key int64) {
			defer wg.Done()
			h, err := m.Register(key)
			if err != nil {
				t.Errorf("Register(%d): %v", key, err)
				return
			}
			for j := 0; j < 20; j++ {
				h.StartBasicOp()
				r := &testRecord{val: j}
				m.AllocCommitted(r)
				m.Retire(key, r)
				h.EndOp()
			}
			m.CleanUpBeforeExit(key)
		}(int64(i))
	}
	wg.Wait()

	snap := m.Counters().AllTime()
	if snap.Tallies["mallocs"] == 0 {
		t.Error("expected non-zero malloc tally after concurrent workload")
	}
}

func TestCountersDeltaSinceLastCall(t *testing.T) {
	m := NewManager(DefaultConfig())
	r := &testRecord{val: 1}
	m.Alloc(r)
	m.RetireUnused(r)

	delta := m.Counters().DeltaSinceLastCall()
	if delta.Tallies["mallocs"] != 1 {
		t.Errorf("expected 1 malloc in first delta, got %d", delta.Tallies["mallocs"])
	}

	again := m.Counters().DeltaSinceLastCall()
	if again.Tallies["mallocs"] != 0 {
		t.Errorf("expected 0 mallocs in second delta, got %d", again.Tallies["mallocs"])
	}
}

func TestBudgetStats(t *testing.T) {
	m := NewManager(Config{ArenaBytes: 1 << 20})
	r := &testRecord{val: 1}
	m.Alloc(r)

	stats := m.Stats()
	if stats.LiveRecords != 1 {
		t.Errorf("expected 1 live record, got %d", stats.LiveRecords)
	}

	m.RetireUnused(r)
	stats = m.Stats()
	if stats.LiveRecords != 0 {
		t.Errorf("expected 0 live records after free, got %d", stats.LiveRecords)
	}
}

func TestDebugRingDisabledByDefault(t *testing.T) {
	ring := NewDebugRing()
	ring.Event(1, "hello")
	if got := ring.Dump(10); len(got) != 0 {
		t.Errorf("expected no events while disabled, got %v", got)
	}

	ring.Enable()
	ring.Event(1, "hello world")
	ring.Event(2, "goodbye")
	got := ring.Grep("world")
	if len(got) != 1 || got[0] != "hello world" {
		t.Errorf("Grep(%q) = %v, want one match", "world", got)
	}
}

func TestDebugRingConcurrentWritesNeverTornRead(t *testing.T) {
	ring := NewDebugRing()
	ring.Enable()

	const writers = 16
	const eventsPerWriter = 2000 // several full wraps of the ring

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < eventsPerWriter; i++ {
				ring.Event(int64(w), "writer-event")
			}
		}(w)
	}

	var readerWG sync.WaitGroup
	readerWG.Add(1)
	go func() {
		defer readerWG.Done()
		for i := 0; i < 200; i++ {
			for _, msg := range ring.Dump(debugRingSize) {
				if msg != "writer-event" {
					t.Errorf("observed torn/garbled event read: %q", msg)
					return
				}
			}
		}
	}()

	wg.Wait()
	readerWG.Wait()
}
