package hashtable

import "errors"

// ErrCapacityOutOfRange is returned by NewTable when an explicit initial
// capacity is not a power of two, or is smaller than minCapacity, the
// floor migration also applies to every successor store.
var ErrCapacityOutOfRange = errors.New("hashtable: capacity must be a power of two no smaller than minCapacity")
