// Package identity is the external, one-time process initializer named in
// the core's interface contract: it assigns the running process a
// human-readable name and reserves address space for the SMR reservation
// arena before any Manager is constructed. Nothing in pkg/smr, pkg/hashtable,
// or pkg/queue depends on it directly; it exists for host processes that
// want the reservation accounted for up front rather than left to whatever
// the Go runtime's allocator happens to do lazily.
package identity

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Process describes the running process's identity for diagnostic and
// metrics-labeling purposes.
type Process struct {
	Name string
	RunID uuid.UUID

	arena *arena
}

var (
	initMu   sync.Mutex
	current  *Process
)

// Init performs the one-time process identity setup. name is a
// human-readable label (used only for diagnostics and metric labels);
// arenaBytes is the address-space reservation budget requested for the
// SMR arena (0 selects the library default of 8 GiB). Calling Init more
// than once returns the process's existing identity unchanged; the
// underlying reservation is made once and held until Release, after which
// the next Init makes a fresh one.
func Init(name string, arenaBytes int64) (*Process, error) {
	initMu.Lock()
	defer initMu.Unlock()

	if current != nil {
		return current, nil
	}
	if arenaBytes <= 0 {
		arenaBytes = DefaultArenaBytes
	}

	a, err := reserveArena(arenaBytes)
	if err != nil {
		return nil, fmt.Errorf("identity: reserve arena: %w", err)
	}

	current = &Process{
		Name:  name,
		RunID: uuid.New(),
		arena: a,
	}
	return current, nil
}

// Current returns the process identity established by Init, or nil if
// Init has not yet been called.
func Current() *Process {
	initMu.Lock()
	defer initMu.Unlock()
	return current
}

// ArenaBytes reports the size of the address-space reservation backing
// this process's identity.
func (p *Process) ArenaBytes() int64 {
	if p == nil || p.arena == nil {
		return 0
	}
	return p.arena.size
}

// Release gives back the process's reserved address space. Host processes
// normally never call this; it exists for tests that construct and tear
// down many Process values in one run.
func (p *Process) Release() error {
	initMu.Lock()
	defer initMu.Unlock()
	if p.arena == nil {
		return nil
	}
	err := p.arena.release()
	if current == p {
		current = nil
	}
	return err
}

// String renders a short diagnostic label, suitable for a log prefix or a
// metrics constant label.
func (p *Process) String() string {
	return fmt.Sprintf("%s[%s]", p.Name, p.RunID)
}
