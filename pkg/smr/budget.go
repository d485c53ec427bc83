package smr

import "sync/atomic"

// Budget tracks how many records a Manager has allocated, retired, and
// freed against a configured byte ceiling. It does not enforce the
// ceiling (this library never blocks or evicts by policy; reclamation is
// epoch-driven, not LRU-driven); it only reports pressure so a host
// process can throttle producers or alert on unbounded retire-list growth.
type Budget struct {
	limitBytes  int64
	liveRecords int64 // atomic: allocated minus freed
	retired     int64 // atomic: currently on some retire list
}

// approxRecordBytes is a conservative per-record overhead estimate (the
// Header plus typical small payload) used only for pressure reporting;
// it is not an accounting of actual Go allocator bytes.
const approxRecordBytes = 64

func newBudget(limitBytes int64) *Budget {
	return &Budget{limitBytes: limitBytes}
}

func (b *Budget) trackAlloc() {
	atomic.AddInt64(&b.liveRecords, 1)
}

func (b *Budget) trackRetire() {
	atomic.AddInt64(&b.retired, 1)
}

func (b *Budget) trackFree() {
	atomic.AddInt64(&b.liveRecords, -1)
	atomic.AddInt64(&b.retired, -1)
}

// BudgetStats is a snapshot of reclamation pressure.
type BudgetStats struct {
	LimitBytes       int64
	EstimatedBytes   int64
	LiveRecords      int64
	PendingRetires   int64
	IsUnderPressure  bool
}

// Stats reports the current estimate against the configured limit.
func (m *Manager) Stats() BudgetStats {
	live := atomic.LoadInt64(&m.budget.liveRecords)
	pending := atomic.LoadInt64(&m.budget.retired)
	est := live * approxRecordBytes
	return BudgetStats{
		LimitBytes:      m.budget.limitBytes,
		EstimatedBytes:  est,
		LiveRecords:     live,
		PendingRetires:  pending,
		IsUnderPressure: m.budget.limitBytes > 0 && est >= m.budget.limitBytes*8/10,
	}
}
