package datablock

import (
	"time"

	"github.com/AlephTX/datablock/internal/layout"
	"github.com/AlephTX/datablock/internal/platform"
	"github.com/AlephTX/datablock/internal/recovery"
	"github.com/AlephTX/datablock/internal/schema"
)

// AdminHandle is a raw, validation-light attachment to a channel's
// segment for out-of-band diagnostic and recovery tooling
// (cmd/datablockctl). Unlike Attach, it does not wait for init_state
// to reach fully-initialised and does not check magic, version, or
// secret: a segment stuck mid-initialisation or already declared
// corrupt is exactly what diagnose/recover exist to inspect.
type AdminHandle struct {
	mapping *platform.Segment
	header  *layout.Header
	slots   []layout.SlotRWState
	name    string
}

// AdminAttach maps an existing segment for diagnostic use. ringCapacity
// must come from the caller's config, since an uninitialised or
// corrupt header cannot be trusted to self-report it.
func AdminAttach(channel string, ringCapacity uint32) (*AdminHandle, error) {
	mapping, err := platform.AttachSegment(channel, layout.Size)
	if err != nil {
		return nil, err
	}
	data := mapping.Bytes()
	h := layout.OverlayHeader(data)
	slots := layout.SlotRWStateArray(data, int(ringCapacity))
	return &AdminHandle{mapping: mapping, header: h, slots: slots, name: channel}, nil
}

// Close unmaps the diagnostic mapping.
func (a *AdminHandle) Close() error { return a.mapping.Close() }

// SlotCount is the ring capacity this handle was attached with.
func (a *AdminHandle) SlotCount() int { return len(a.slots) }

// Diagnose snapshots every slot's RW state.
func (a *AdminHandle) Diagnose(elapsedInState func(idx uint32) time.Duration) []recovery.SlotDiagnosis {
	return recovery.DiagnoseAll(a.slots, elapsedInState)
}

// ForceResetSlot drives a single slot back to Free.
func (a *AdminHandle) ForceResetSlot(slotIndex uint32, force bool) error {
	return recovery.ForceResetSlot(a.name, &a.slots[slotIndex], force)
}

// ReleaseZombieWriter clears a slot's write lock if its holder is dead.
func (a *AdminHandle) ReleaseZombieWriter(slotIndex uint32) error {
	return recovery.ReleaseZombieWriter(a.name, &a.slots[slotIndex])
}

// ReleaseZombieReaders zeroes a stuck-draining slot's reader count.
func (a *AdminHandle) ReleaseZombieReaders(slotIndex uint32, elapsed time.Duration, force bool) error {
	return recovery.ReleaseZombieReaders(a.name, &a.slots[slotIndex], elapsed, force)
}

// CleanupDeadConsumers reaps heartbeat slots past timeout.
func (a *AdminHandle) CleanupDeadConsumers(timeout time.Duration, now uint64, dryRun bool) []recovery.DeadConsumer {
	return recovery.CleanupDeadConsumers(a.header, timeout, now, dryRun)
}

// ValidateIntegrity runs the full header/index/checksum integrity
// check. verify is nil when checksums are disabled.
func (a *AdminHandle) ValidateIntegrity(checksumsEnabled bool, verify func(uint32) bool) recovery.IntegrityReport {
	return recovery.ValidateIntegrity(a.header, verify, a.slots, checksumsEnabled)
}

// AutoRecover applies every stuck-slot recovery action diagnose would
// surface. With dryRun set, nothing is mutated.
func (a *AdminHandle) AutoRecover(elapsedInState func(idx uint32) time.Duration, dryRun bool) []recovery.Action {
	return recovery.AutoRecover(a.name, a.slots, elapsedInState, dryRun)
}

// VerifyChecksumSlot recomputes a slot's checksum against the stored
// digest, for wiring into ValidateIntegrity's verify callback.
func (a *AdminHandle) VerifyChecksumSlot(cfg layout.Config, slotIndex uint32) bool {
	arr := layout.ChecksumArray(a.mapping.Bytes(), len(a.slots))
	off := int(slotIndex) * layout.ChecksumSize
	if arr[off+32] == 0 {
		return false
	}
	payload := layout.SlotPayload(a.mapping.Bytes(), len(a.slots), cfg.ChecksumEnabled(), int(cfg.FlexSize), int(cfg.UnitSize), int(slotIndex))
	got := schema.Checksum(payload)
	for i := 0; i < 32; i++ {
		if got[i] != arr[off+i] {
			return false
		}
	}
	return true
}
