package hashtable

import (
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"lattice/pkg/smr"
)

func newTestTable(t *testing.T, cfg Config) *Table {
	t.Helper()
	mgr := smr.NewManager(smr.DefaultConfig())
	tbl, err := NewTable(mgr, cfg)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl
}

func TestPutGetRoundTrip(t *testing.T) {
	tbl := newTestTable(t, DefaultConfig())
	h := HashString("alpha")

	tbl.Put(1, h, "v1", true)
	v, found := tbl.Get(1, h)
	require.True(t, found)
	require.Equal(t, "v1", v)
}

func TestPutRemoveGetNotFound(t *testing.T) {
	tbl := newTestTable(t, DefaultConfig())
	h := HashString("beta")

	tbl.Put(1, h, "v1", true)
	old, wasPresent := tbl.Remove(1, h)
	require.True(t, wasPresent)
	require.Equal(t, "v1", old)

	_, found := tbl.Get(1, h)
	require.False(t, found, "expected Get to report not-found after Remove")
}

func TestPutNoOverwriteKeepsExisting(t *testing.T) {
	tbl := newTestTable(t, DefaultConfig())
	h := HashString("gamma")

	tbl.Put(1, h, "first", true)
	old, wasPresent := tbl.Put(1, h, "second", false)
	if !wasPresent || old != "first" {
		t.Fatalf("Put(overwriteOK=false) = (%v, %v), want (first, true)", old, wasPresent)
	}
	v, _ := tbl.Get(1, h)
	if v != "first" {
		t.Errorf("expected value to remain 'first', got %v", v)
	}
}

func TestLenTracksUsedMinusDeleted(t *testing.T) {
	tbl := newTestTable(t, DefaultConfig())
	for i := 0; i < 5; i++ {
		tbl.Put(1, HashString(string(rune('a'+i))), i, true)
	}
	if got := tbl.Len(); got != 5 {
		t.Fatalf("Len() = %d, want 5", got)
	}
	tbl.Remove(1, HashString("a"))
	if got := tbl.Len(); got != 4 {
		t.Fatalf("Len() after Remove = %d, want 4", got)
	}
}

func TestViewOrdersByCreateEpochNotWriteEpoch(t *testing.T) {
	tbl := newTestTable(t, DefaultConfig())
	h1, h2, h3 := HashString("h1"), HashString("h2"), HashString("h3")

	tbl.Put(1, h1, "v1", true)
	tbl.Put(1, h2, "v2", true)
	tbl.Put(1, h3, "v3", true)
	tbl.Put(1, h2, "v2-updated", true) // update, should not move in view order

	entries := tbl.View(1)
	require.Len(t, entries, 3)

	gotOrder := make([]Hash128, len(entries))
	for i, e := range entries {
		gotOrder[i] = e.Hash
	}
	wantOrder := []Hash128{h1, h2, h3}
	if diff := cmp.Diff(wantOrder, gotOrder); diff != "" {
		t.Errorf("view order mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "v2-updated", entries[1].Item)
}

func TestMigrationPreservesAllEntries(t *testing.T) {
	tbl := newTestTable(t, Config{InitialCapacity: 8, MigLoadPct: 75, MigGrowPct: 25})

	const n = 200
	for i := 0; i < n; i++ {
		tbl.Put(1, HashString(strconv.Itoa(i)), i, true)
	}
	if got := tbl.Len(); got != n {
		t.Fatalf("Len() = %d, want %d", got, n)
	}
	for i := 0; i < n; i++ {
		v, found := tbl.Get(1, HashString(strconv.Itoa(i)))
		if !found || v != i {
			t.Fatalf("Get(%d) = (%v, %v), want (%d, true) after migration", i, v, found, i)
		}
	}
}

func TestThresholdMinusOneThenOneMoreTriggersMigration(t *testing.T) {
	capacity := 16
	cfg := Config{InitialCapacity: capacity, MigLoadPct: 75, MigGrowPct: 25}
	tbl := newTestTable(t, cfg)
	threshold := capacity * cfg.MigLoadPct / 100

	for i := 0; i < threshold-1; i++ {
		tbl.Put(1, HashString(strconv.Itoa(i)), i, true)
	}
	s := tbl.loadCurrent()
	if s.capacity() != capacity {
		t.Fatalf("expected no migration yet, capacity = %d want %d", s.capacity(), capacity)
	}

	tbl.Put(1, HashString(strconv.Itoa(threshold-1)), threshold-1, true)
	if got := tbl.loadCurrent().capacity(); got != capacity {
		t.Fatalf("insert at threshold-1 migrated: capacity = %d want %d", got, capacity)
	}
	tbl.Put(1, HashString(strconv.Itoa(threshold)), threshold, true)
	if got := tbl.loadCurrent().capacity(); got != 2*capacity {
		t.Fatalf("one more insert did not migrate: capacity = %d want %d", got, 2*capacity)
	}

	for i := 0; i <= threshold; i++ {
		v, found := tbl.Get(1, HashString(strconv.Itoa(i)))
		if !found || v != i {
			t.Fatalf("Get(%d) after triggering migration = (%v, %v)", i, v, found)
		}
	}
}

func TestConcurrentInsertsReadBack(t *testing.T) {
	tbl := newTestTable(t, Config{InitialCapacity: 16, MigLoadPct: 75, MigGrowPct: 25})

	const threads = 8
	const perThread = 2000

	var wg sync.WaitGroup
	wg.Add(threads)
	for tid := 0; tid < threads; tid++ {
		go func(tid int) {
			defer wg.Done()
			for i := 0; i < perThread; i++ {
				key := strconv.Itoa(tid) + ":" + strconv.Itoa(i)
				tbl.Put(int64(tid), HashString(key), tid*perThread+i, true)
			}
		}(tid)
	}
	wg.Wait()

	if got := tbl.Len(); got != threads*perThread {
		t.Fatalf("Len() = %d, want %d", got, threads*perThread)
	}

	sum := 0
	for tid := 0; tid < threads; tid++ {
		for i := 0; i < perThread; i++ {
			key := strconv.Itoa(tid) + ":" + strconv.Itoa(i)
			v, found := tbl.Get(int64(tid), HashString(key))
			if !found {
				t.Fatalf("Get(%s) not found after concurrent inserts", key)
			}
			sum += v.(int)
		}
	}
	wantSum := 0
	for i := 0; i < threads*perThread; i++ {
		wantSum += i
	}
	if sum != wantSum {
		t.Errorf("sum of values = %d, want %d", sum, wantSum)
	}
}

func TestConcurrentPutRaceYieldsExactlyOneWinner(t *testing.T) {
	tbl := newTestTable(t, DefaultConfig())
	h := HashString("race")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); tbl.Put(1, h, "A", true) }()
	go func() { defer wg.Done(); tbl.Put(2, h, "B", true) }()
	wg.Wait()

	v, found := tbl.Get(1, h)
	if !found {
		t.Fatal("expected Get to find a value after the race")
	}
	if v != "A" && v != "B" {
		t.Fatalf("Get() = %v, want A or B", v)
	}

	entries := tbl.View(1)
	count := 0
	for _, e := range entries {
		if e.Hash == h {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one view entry for the raced key, got %d", count)
	}
}

func TestHashBytesDistinctForDistinctKeys(t *testing.T) {
	seen := make(map[Hash128]bool)
	var collisions []string
	keys := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		keys = append(keys, strconv.Itoa(i))
	}
	sort.Strings(keys)
	for _, k := range keys {
		h := HashString(k)
		if seen[h] {
			collisions = append(collisions, k)
		}
		seen[h] = true
	}
	if len(collisions) != 0 {
		t.Errorf("unexpected hash collisions: %v", collisions)
	}
}
