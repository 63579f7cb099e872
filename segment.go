package datablock

import (
	"encoding/binary"
	"time"

	"github.com/AlephTX/datablock/internal/coreerr"
	"github.com/AlephTX/datablock/internal/layout"
	"github.com/AlephTX/datablock/internal/platform"
)

// InitTimeoutDefault is how long Attach spin-waits for init_state to
// reach fully-initialised before giving up.
const InitTimeoutDefault = 5 * time.Second

// segment bundles the mapped region together with the typed views
// into it that the producer and consumer engines operate on.
type segment struct {
	mapping *platform.Segment
	header  *layout.Header
	slots   []layout.SlotRWState
	cfg     layout.Config
}

// createSegment allocates a new segment and writes its header fields
// in the order an attaching consumer expects them to become visible.
func createSegment(name string, cfg Config) (*segment, error) {
	lc := cfg.toLayout()
	if err := lc.Validate(); err != nil {
		return nil, coreerr.Wrap(coreerr.OSError, name, err)
	}

	size := lc.TotalSize()
	mapping, err := platform.CreateSegment(name, size)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.MapFailed, name, err)
	}

	data := mapping.Bytes()
	h := layout.OverlayHeader(data)
	slots := layout.SlotRWStateArray(data, int(lc.RingCapacity))

	// Step 5: the mutex's zero value is already "unlocked"; just
	// publish that the mutex storage is ready.
	h.InitState.Store(uint32(layout.InitMutexReady))

	// Step 6.
	h.Version.Store(layout.CurrentVersion)
	h.HeaderSize.Store(uint32(layout.Size))
	h.SharedSecret[0] = lc.SharedSecret[0]
	h.SharedSecret[1] = lc.SharedSecret[1]
	h.SchemaHash = lc.SchemaHash
	h.SchemaVersion.Store(lc.SchemaVersion)
	h.RingCapacity = lc.RingCapacity
	h.UnitSize = lc.UnitSize
	h.FlexSize = lc.FlexSize
	h.ChecksumPolicy = uint32(lc.ChecksumPolicy)
	// write_index, commit_index, read_index, metrics and heartbeats
	// are already zero from the platform layer's zero-fill.

	// Step 8: magic is stored last.
	h.Magic.Store(layout.Magic)
	h.InitState.Store(uint32(layout.InitFullyInitialized))

	return &segment{mapping: mapping, header: h, slots: slots, cfg: lc}, nil
}

// attachSegment opens an existing segment, spin-waiting for
// initialisation to finish, then validates magic, version, shared
// secret and, if requested, schema hash before handing back typed
// views into the mapping.
func attachSegment(name string, secret [16]byte, expectedSchemaHash *[32]byte, initTimeout time.Duration) (*segment, error) {
	// We don't know N/unit/flex until we've read the header, so attach
	// with a conservative minimum size first, then re-validate once we
	// can compute the real total.
	mapping, err := platform.AttachSegment(name, layout.Size)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.MapFailed, name, err)
	}

	data := mapping.Bytes()
	h := layout.OverlayHeader(data)

	deadline := time.Now().Add(initTimeout)
	for layout.InitState(h.InitState.Load()) != layout.InitFullyInitialized {
		if time.Now().After(deadline) {
			mapping.Close()
			return nil, coreerr.New(coreerr.InitTimeout, name)
		}
		time.Sleep(time.Millisecond)
	}

	if h.Magic.Load() != layout.Magic {
		mapping.Close()
		return nil, coreerr.New(coreerr.MagicMismatch, name)
	}
	version := h.Version.Load()
	if version < layout.MinSupportedVersion || version > layout.CurrentVersion {
		mapping.Close()
		return nil, coreerr.New(coreerr.VersionMismatch, name)
	}

	var wantSecret [2]uint64
	wantSecret[0] = binary.LittleEndian.Uint64(secret[0:8])
	wantSecret[1] = binary.LittleEndian.Uint64(secret[8:16])
	if h.SharedSecret[0] != wantSecret[0] || h.SharedSecret[1] != wantSecret[1] {
		mapping.Close()
		return nil, coreerr.New(coreerr.SecretMismatch, name)
	}

	if expectedSchemaHash != nil && h.SchemaHash != *expectedSchemaHash {
		mapping.Close()
		return nil, coreerr.New(coreerr.SchemaMismatch, name)
	}

	lc := layout.Config{
		RingCapacity:   h.RingCapacity,
		UnitSize:       h.UnitSize,
		FlexSize:       h.FlexSize,
		ChecksumPolicy: layout.ChecksumPolicy(h.ChecksumPolicy),
		SharedSecret:   wantSecret,
		SchemaHash:     h.SchemaHash,
		SchemaVersion:  h.SchemaVersion.Load(),
	}

	fullSize := lc.TotalSize()
	if len(data) < fullSize {
		mapping.Close()
		// Re-attach at the real size: POSIX mmap sizing is exact, but
		// Windows VirtualQuery rounds up, so "observed >= expected" is
		// the contract.
		mapping, err = platform.AttachSegment(name, fullSize)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.SizeMismatch, name, err)
		}
		data = mapping.Bytes()
		h = layout.OverlayHeader(data)
	}

	slots := layout.SlotRWStateArray(data, int(lc.RingCapacity))
	return &segment{mapping: mapping, header: h, slots: slots, cfg: lc}, nil
}

func (s *segment) checksumArray() []byte {
	return layout.ChecksumArray(s.mapping.Bytes(), int(s.cfg.RingCapacity))
}

func (s *segment) flexZone() []byte {
	return layout.FlexZone(s.mapping.Bytes(), int(s.cfg.RingCapacity), s.cfg.ChecksumEnabled(), int(s.cfg.FlexSize))
}

// flexUserZone and flexChecksumTrailer split the flexible zone into the
// caller-visible metadata prefix and a trailing 33-byte checksum slot
// (32-byte digest + validity flag). The bit-exact layout in
// internal/layout has no dedicated field for a flexible-zone checksum,
// so DataBlock resolves that by carving the trailer out of flex_size
// itself whenever checksums are enabled; WriteHandle.FlexZone and
// Consumer.FlexZone only ever expose the prefix.
func flexUserZone(full []byte, checksumEnabled bool) []byte {
	if !checksumEnabled || len(full) < layout.ChecksumSize {
		return full
	}
	return full[:len(full)-layout.ChecksumSize]
}

func flexChecksumTrailer(full []byte, checksumEnabled bool) []byte {
	if !checksumEnabled || len(full) < layout.ChecksumSize {
		return nil
	}
	return full[len(full)-layout.ChecksumSize:]
}

func (s *segment) slotPayload(idx uint32) []byte {
	return layout.SlotPayload(s.mapping.Bytes(), int(s.cfg.RingCapacity), s.cfg.ChecksumEnabled(), int(s.cfg.FlexSize), int(s.cfg.UnitSize), int(idx))
}

func (s *segment) close() error {
	return s.mapping.Close()
}
