package datablock

import (
	"encoding/binary"

	"github.com/AlephTX/datablock/internal/layout"
)

// ChecksumPolicy controls whether commit/read-release automatically
// maintain and verify per-slot checksums.
type ChecksumPolicy = layout.ChecksumPolicy

const (
	ChecksumDisabled = layout.ChecksumDisabled
	ChecksumEnforced = layout.ChecksumEnforced
	ChecksumManual   = layout.ChecksumManual
)

// RingPolicy is the ring-buffer behaviour derived from a channel's
// ring capacity.
type RingPolicy = layout.RingPolicy

const (
	PolicySingleSlot   = layout.PolicySingleSlot
	PolicyDoubleBuffer = layout.PolicyDoubleBuffer
	PolicyRing         = layout.PolicyRing
)

// Allowed unit block sizes.
const (
	UnitSize4KiB  = layout.UnitSize4KiB
	UnitSize4MiB  = layout.UnitSize4MiB
	UnitSize16MiB = layout.UnitSize16MiB
)

// Config is the caller-supplied configuration for creating a new
// channel's segment.
type Config struct {
	// RingCapacity is N, the number of slots in the payload ring.
	RingCapacity uint32
	// UnitSize is the size in bytes of one slot's payload; must be one
	// of UnitSize4KiB, UnitSize4MiB, UnitSize16MiB.
	UnitSize uint32
	// FlexSize is the size in bytes of the flexible metadata zone.
	FlexSize uint32
	// ChecksumPolicy controls per-slot integrity checking.
	ChecksumPolicy ChecksumPolicy
	// SharedSecret is the 128-bit capability token attachers must
	// supply to validate identity on attach.
	SharedSecret [16]byte
	// SchemaHash is the 32-byte schema hash attachers may optionally
	// verify (see internal/schema.Hash).
	SchemaHash [32]byte
	// SchemaVersion is an informational version number carried
	// alongside SchemaHash.
	SchemaVersion uint32
}

// Policy returns the ring policy this configuration implies.
func (c Config) Policy() RingPolicy {
	return layout.PolicyForCapacity(c.RingCapacity)
}

func (c Config) toLayout() layout.Config {
	var secretWords [2]uint64
	secretWords[0] = binary.LittleEndian.Uint64(c.SharedSecret[0:8])
	secretWords[1] = binary.LittleEndian.Uint64(c.SharedSecret[8:16])
	return layout.Config{
		RingCapacity:   c.RingCapacity,
		UnitSize:       c.UnitSize,
		FlexSize:       c.FlexSize,
		ChecksumPolicy: c.ChecksumPolicy,
		SharedSecret:   secretWords,
		SchemaHash:     c.SchemaHash,
		SchemaVersion:  c.SchemaVersion,
	}
}
