// Package schema canonicalises how a data structure's shape is turned
// into the 32-byte hash stored in the segment header and compared on
// attach.
package schema

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Field describes one already-flattened member of a payload structure.
// Callers are responsible for flattening nested structs before calling
// Hash. The hash function itself never recurses into padding or nested
// layout: padding bytes carry no semantic meaning and would make the
// hash compiler- and platform-dependent.
type Field struct {
	Name   string
	Kind   string // e.g. "u64", "f64", "bytes[32]"
	Offset uint32
	Size   uint32
}

// Version is bumped whenever the canonicalisation below changes, so a
// schema hash computed by an old binary is never silently treated as
// compatible with a new one.
const Version = 1

// Hash feeds the little-endian encoding of the ordered field list
// through BLAKE2b-256 and returns the 32-byte digest stored in the
// header's schema_hash field.
func Hash(fields []Field) [32]byte {
	h, _ := blake2b.New256(nil)

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], Version)
	h.Write(buf[:])

	for _, f := range fields {
		writeLenPrefixed(h, []byte(f.Name))
		writeLenPrefixed(h, []byte(f.Kind))
		binary.LittleEndian.PutUint32(buf[:], f.Offset)
		h.Write(buf[:])
		binary.LittleEndian.PutUint32(buf[:], f.Size)
		h.Write(buf[:])
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func writeLenPrefixed(h interface{ Write([]byte) (int, error) }, b []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	h.Write(lenBuf[:])
	h.Write(b)
}

// Checksum computes the 32-byte BLAKE2b-256 digest of a payload slice,
// used for slot and flexible-zone integrity checks.
func Checksum(payload []byte) [32]byte {
	return blake2b.Sum256(payload)
}
