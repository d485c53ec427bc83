package hashtable

import "github.com/cespare/xxhash/v2"

// Hash128 is a 128-bit hash value: total object identity for every bucket
// and record in this table. The table never hashes a key itself, callers
// supply Hash128 values directly, but HashBytes is provided as a
// convenience for callers who would otherwise have to wire up a
// double-pass hash themselves.
type Hash128 struct {
	Hi uint64
	Lo uint64
}

// probeSeed mixes the two halves into a single 64-bit value used only to
// pick the first probed slot; bucket equality always compares the full
// 128 bits.
func (h Hash128) probeSeed() uint64 {
	return h.Hi ^ (h.Lo*0x9e3779b97f4a7c15 + 0x2545f4914f6cdd1d)
}

// HashBytes derives a Hash128 from an arbitrary byte key using two xxhash
// passes: the low half hashes the key, and the high half hashes the key
// salted with the low half's digest so the two halves are not trivially
// related.
func HashBytes(key []byte) Hash128 {
	lo := xxhash.Sum64(key)
	hiSeed := make([]byte, len(key)+8)
	copy(hiSeed, key)
	putUint64(hiSeed[len(key):], lo)
	hi := xxhash.Sum64(hiSeed)
	return Hash128{Hi: hi, Lo: lo}
}

// HashString is the string-keyed equivalent of HashBytes.
func HashString(key string) Hash128 {
	return HashBytes([]byte(key))
}

func putUint64(b []byte, v uint64) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
	b[7] = byte(v >> 56)
}
