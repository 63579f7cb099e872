package layout

import "fmt"

// Allowed unit block sizes.
const (
	UnitSize4KiB  = 4 * 1024
	UnitSize4MiB  = 4 * 1024 * 1024
	UnitSize16MiB = 16 * 1024 * 1024
)

// RingPolicy classifies the ring-buffer behaviour implied by a given
// capacity.
type RingPolicy int

const (
	PolicySingleSlot RingPolicy = iota
	PolicyDoubleBuffer
	PolicyRing
)

func (p RingPolicy) String() string {
	switch p {
	case PolicySingleSlot:
		return "single-slot"
	case PolicyDoubleBuffer:
		return "double-buffer"
	case PolicyRing:
		return "ring"
	default:
		return "unknown"
	}
}

// PolicyForCapacity derives the ring policy from N: 1 is a single
// reusable slot, 2 is a double buffer, anything larger is a true ring.
func PolicyForCapacity(n uint32) RingPolicy {
	switch {
	case n == 1:
		return PolicySingleSlot
	case n == 2:
		return PolicyDoubleBuffer
	default:
		return PolicyRing
	}
}

// Config is the caller-supplied configuration for creating a new
// segment.
type Config struct {
	RingCapacity   uint32
	UnitSize       uint32
	FlexSize       uint32
	ChecksumPolicy ChecksumPolicy
	SharedSecret   [2]uint64
	SchemaHash     [32]byte
	SchemaVersion  uint32
}

// Validate checks the constraints placed on a new segment's
// configuration.
func (c Config) Validate() error {
	if c.RingCapacity < 1 {
		return fmt.Errorf("layout: ring capacity must be >= 1, got %d", c.RingCapacity)
	}
	switch c.UnitSize {
	case UnitSize4KiB, UnitSize4MiB, UnitSize16MiB:
	default:
		return fmt.Errorf("layout: unit size %d not in {4KiB, 4MiB, 16MiB}", c.UnitSize)
	}
	switch c.ChecksumPolicy {
	case ChecksumDisabled, ChecksumEnforced, ChecksumManual:
	default:
		return fmt.Errorf("layout: unknown checksum policy %d", c.ChecksumPolicy)
	}
	return nil
}

// ChecksumEnabled reports whether the checksum array is present at all
// (policy Enforced or Manual both allocate it; only Disabled omits it).
func (c Config) ChecksumEnabled() bool {
	return c.ChecksumPolicy != ChecksumDisabled
}

// TotalSize computes the full segment size for this configuration.
func (c Config) TotalSize() int {
	return TotalSegmentSize(int(c.RingCapacity), int(c.UnitSize), int(c.FlexSize), c.ChecksumEnabled())
}
