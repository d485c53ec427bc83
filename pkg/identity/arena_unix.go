//go:build unix || linux || darwin || freebsd || openbsd || netbsd

package identity

import "golang.org/x/sys/unix"

// DefaultArenaBytes is the address-space reservation requested when a host
// process does not specify one: 8 GiB, matching the reference library's
// compiled-in reservation-array budget.
const DefaultArenaBytes int64 = 8 << 30

// arena is a PROT_NONE, anonymous mapping: address space with no backing
// pages, reserved only so the process's virtual memory accounting reflects
// the SMR reservation-array budget named in the library's external
// interface contract. It is never read or written.
type arena struct {
	data []byte
	size int64
}

func reserveArena(size int64) (*arena, error) {
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &arena{data: data, size: size}, nil
}

func (a *arena) release() error {
	if a.data == nil {
		return nil
	}
	err := unix.Munmap(a.data)
	a.data = nil
	return err
}
