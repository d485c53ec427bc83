package smr

import (
	"sync/atomic"
	"unsafe"
)

// Header is the epoch metadata every SMR-managed record carries. Record
// types embed Header by value:
//
//	type record struct {
//	    smr.Header
//	    item  []byte
//	}
//
// An interior pointer to the embedded Header keeps the whole record alive
// for the garbage collector for as long as the Header is reachable, which
// is exactly the lifetime this package needs to track.
type Header struct {
	createEpoch uint64
	writeEpoch  uint64 // atomic; 0 means "not yet committed"
	retireEpoch uint64
	retired     uint32 // atomic bool: on the retire list
	freed       uint32 // atomic bool: logically reclaimed
	retireNext  unsafe.Pointer
}

// Retirable is implemented automatically by any record type that embeds
// Header, via method promotion.
type Retirable interface {
	smrHeader() *Header
}

func (h *Header) smrHeader() *Header { return h }

// CreateEpoch returns the epoch at which the record first became
// logically visible. Zero until SetCreateEpoch or AllocCommitted runs.
func (h *Header) CreateEpoch() uint64 { return h.createEpoch }

// SetCreateEpoch records the creation epoch. Callers that need creation
// order to survive later updates to the same logical key (the hash
// table's view ordering) call this once, when the key is first claimed,
// and never again.
func (h *Header) SetCreateEpoch(e uint64) { h.createEpoch = e }

// WriteEpoch returns the commit epoch, or 0 if the write has not yet been
// linearized by CommitWrite or HelpCommit.
func (h *Header) WriteEpoch() uint64 { return atomic.LoadUint64(&h.writeEpoch) }

// IsFreed reports whether scan_and_free has already reclaimed this record.
func (h *Header) IsFreed() bool { return atomic.LoadUint32(&h.freed) != 0 }

func (h *Header) nextRetired() *Header {
	return (*Header)(atomic.LoadPointer(&h.retireNext))
}

func (h *Header) setNextRetired(n *Header) {
	atomic.StorePointer(&h.retireNext, unsafe.Pointer(n))
}
