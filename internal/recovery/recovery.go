// Package recovery implements diagnostic and recovery operations: they
// attach to a segment's atomics directly and are meant for out-of-band
// use (the datablockctl CLI, scripts), never from the data-plane hot
// path.
package recovery

import (
	"time"

	"github.com/AlephTX/datablock/internal/coreerr"
	"github.com/AlephTX/datablock/internal/layout"
	"github.com/AlephTX/datablock/internal/platform"
)

// StuckThreshold is the heuristic duration after which a slot stuck in
// WRITING or DRAINING is considered stuck.
const StuckThreshold = 30 * time.Second

// SlotDiagnosis is the snapshot diagnose(slot) returns.
type SlotDiagnosis struct {
	SlotIndex     uint32
	State         layout.SlotState
	WriteLock     uint64
	ReaderCount   uint32
	WriterWaiting bool
	Generation    uint64
	IsStuck       bool
}

// Diagnose snapshots one slot's RW state plus the derived is-stuck
// field. elapsedInState is the caller's estimate of how long the slot
// has held its current state; the core does not persist a state-entry
// timestamp, so the caller supplies it. A slot is reported stuck only
// when elapsedInState exceeds StuckThreshold, so passing zero (as
// cmd/datablockctl does) never reports a slot as stuck.
func Diagnose(slotIndex uint32, slot *layout.SlotRWState, elapsedInState time.Duration) SlotDiagnosis {
	state := slot.LoadState()
	stuck := (state == layout.SlotWriting || state == layout.SlotDraining) && elapsedInState > StuckThreshold
	return SlotDiagnosis{
		SlotIndex:     slotIndex,
		State:         state,
		WriteLock:     slot.WriteLock.Load(),
		ReaderCount:   slot.ReaderCount.Load(),
		WriterWaiting: slot.WriterWaiting.Load() != 0,
		Generation:    slot.WriteGeneration.Load(),
		IsStuck:       stuck,
	}
}

// DiagnoseAll returns one snapshot per slot.
func DiagnoseAll(slots []layout.SlotRWState, elapsedInState func(idx uint32) time.Duration) []SlotDiagnosis {
	out := make([]SlotDiagnosis, len(slots))
	for i := range slots {
		out[i] = Diagnose(uint32(i), &slots[i], elapsedInState(uint32(i)))
	}
	return out
}

// ForceResetSlot refuses (Unsafe) unless the write_lock holder is dead
// or force is true. It must never touch write_generation — readers
// rely on its monotonicity.
func ForceResetSlot(channel string, slot *layout.SlotRWState, force bool) error {
	holder := slot.WriteLock.Load()
	if holder != 0 && platform.ProcessAlive(holder) && !force {
		return coreerr.New(coreerr.Unsafe, channel)
	}
	slot.StoreState(layout.SlotFree)
	slot.WriteLock.Store(0)
	slot.ReaderCount.Store(0)
	slot.WriterWaiting.Store(0)
	return nil
}

// ReleaseZombieWriter force-resets a slot only if its writer's pid is
// not alive.
func ReleaseZombieWriter(channel string, slot *layout.SlotRWState) error {
	holder := slot.WriteLock.Load()
	if holder == 0 {
		return coreerr.New(coreerr.NotStuck, channel)
	}
	if platform.ProcessAlive(holder) {
		return coreerr.New(coreerr.Unsafe, channel)
	}
	return ForceResetSlot(channel, slot, false)
}

// ReleaseZombieReaders zeroes reader_count only if a writer is waiting
// and the slot has been stuck in DRAINING past the threshold, or if
// force is set.
func ReleaseZombieReaders(channel string, slot *layout.SlotRWState, elapsedInState time.Duration, force bool) error {
	stuck := slot.LoadState() == layout.SlotDraining && elapsedInState > StuckThreshold
	if !force && !(slot.WriterWaiting.Load() != 0 && stuck) {
		return coreerr.New(coreerr.Unsafe, channel)
	}
	slot.ReaderCount.Store(0)
	return nil
}

// DeadConsumer describes one cleaned-up heartbeat slot.
type DeadConsumer struct {
	HeartbeatIndex int
	ConsumerID     uint64
	LastSeenNs     uint64
}

// CleanupDeadConsumers scans the heartbeat array and clears entries
// older than timeout, decrementing active_consumer_count for each one.
// now is injected so tests don't depend on wall-clock time.
func CleanupDeadConsumers(h *layout.Header, timeout time.Duration, now uint64, dryRun bool) []DeadConsumer {
	var dead []DeadConsumer
	timeoutNs := uint64(timeout.Nanoseconds())

	for i := range h.Heartbeats {
		slot := &h.Heartbeats[i]
		id := slot.ConsumerID.Load()
		if id == 0 {
			continue
		}
		last := slot.LastHeartbeatNs.Load()
		if now < last || now-last <= timeoutNs {
			continue
		}

		dead = append(dead, DeadConsumer{HeartbeatIndex: i, ConsumerID: id, LastSeenNs: last})
		if dryRun {
			continue
		}
		slot.ConsumerID.Store(0)
		slot.LastHeartbeatNs.Store(0)
		slot.Position.Store(0)
		decrementActiveConsumers(h)
	}
	if len(dead) > 0 && !dryRun {
		h.RecomputeReadIndex()
	}
	return dead
}

func decrementActiveConsumers(h *layout.Header) {
	for {
		cur := h.ActiveConsumerCount.Load()
		if cur == 0 {
			return
		}
		if h.ActiveConsumerCount.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// IntegrityReport is what ValidateIntegrity returns.
type IntegrityReport struct {
	Valid               bool
	MagicOK             bool
	VersionOK           bool
	InitStateOK         bool
	IndexOrderingOK     bool
	ChecksumFailures    []uint32
}

// ValidateIntegrity checks magic, version, init state, index
// monotonicity, and (if checksums are enabled) the on-demand checksum
// of every committed slot.
func ValidateIntegrity(h *layout.Header, verifyChecksumSlot func(slotIndex uint32) bool, slots []layout.SlotRWState, checksumsEnabled bool) IntegrityReport {
	report := IntegrityReport{
		MagicOK:         h.Magic.Load() == layout.Magic,
		VersionOK:       h.Version.Load() >= layout.MinSupportedVersion && h.Version.Load() <= layout.CurrentVersion,
		InitStateOK:     layout.InitState(h.InitState.Load()) == layout.InitFullyInitialized,
		IndexOrderingOK: h.CommitIndex.Load() <= h.WriteIndex.Load(),
	}

	if checksumsEnabled && verifyChecksumSlot != nil {
		for i := range slots {
			if slots[i].LoadState() != layout.SlotCommitted {
				continue
			}
			if !verifyChecksumSlot(uint32(i)) {
				report.ChecksumFailures = append(report.ChecksumFailures, uint32(i))
			}
		}
	}

	report.Valid = report.MagicOK && report.VersionOK && report.InitStateOK && report.IndexOrderingOK && len(report.ChecksumFailures) == 0
	return report
}

// Action is a tagged-variant recovery action, used by AutoRecover to
// describe what it did (or, in dry-run mode, would do) — a flat,
// data-oriented alternative to a dispatch table.
type Action struct {
	Kind      string // "release_zombie_writer" | "release_zombie_readers" | "reset"
	SlotIndex uint32
	Applied   bool
	Err       error
}

// AutoRecover walks every slot, diagnoses it, and applies whichever
// recovery operation its state calls for. With dryRun set, no mutation
// happens; the returned actions describe what would have happened.
func AutoRecover(channel string, slots []layout.SlotRWState, elapsedInState func(idx uint32) time.Duration, dryRun bool) []Action {
	var actions []Action
	for i := range slots {
		slot := &slots[i]
		diag := Diagnose(uint32(i), slot, elapsedInState(uint32(i)))
		if !diag.IsStuck {
			continue
		}

		switch diag.State {
		case layout.SlotWriting:
			a := Action{Kind: "release_zombie_writer", SlotIndex: uint32(i)}
			if !dryRun {
				a.Err = ReleaseZombieWriter(channel, slot)
				a.Applied = a.Err == nil
			}
			actions = append(actions, a)
		case layout.SlotDraining:
			a := Action{Kind: "release_zombie_readers", SlotIndex: uint32(i)}
			if !dryRun {
				a.Err = ReleaseZombieReaders(channel, slot, elapsedInState(uint32(i)), false)
				a.Applied = a.Err == nil
			}
			actions = append(actions, a)
		}
	}
	return actions
}
