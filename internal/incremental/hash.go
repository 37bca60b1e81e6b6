package incremental

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint is a stable hash of a dep node's result.
type Fingerprint uint64

// Svh is the strict version hash of a crate.
type Svh uint64

func (s Svh) String() string {
	return fmt.Sprintf("%016x", uint64(s))
}

// StableHasher hashes values in a platform- and order-independent way:
// strings are length-prefixed and integers little-endian.
type StableHasher struct {
	d *xxhash.Digest
}

// NewHasher returns an empty hasher.
func NewHasher() *StableHasher {
	return &StableHasher{d: xxhash.New()}
}

// WriteString adds s.
func (h *StableHasher) WriteString(s string) *StableHasher {
	h.WriteUint64(uint64(len(s)))
	_, _ = h.d.WriteString(s)
	return h
}

// WriteUint64 adds v.
func (h *StableHasher) WriteUint64(v uint64) *StableHasher {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.d.Write(buf[:])
	return h
}

// Sum returns the fingerprint of everything written so far.
func (h *StableHasher) Sum() Fingerprint {
	return Fingerprint(h.d.Sum64())
}

// StableCrateID derives the id that names a crate across sessions.
func StableCrateID(crateName string) uint64 {
	return uint64(NewHasher().WriteString("crate").WriteString(crateName).Sum())
}
