// Package coordinator implements the per-slot RW coordinator: the
// writer and reader acquisition protocols, built directly on the
// atomic fields of internal/layout.
package coordinator

import (
	"time"

	"github.com/AlephTX/datablock/internal/coreerr"
	"github.com/AlephTX/datablock/internal/layout"
	"github.com/AlephTX/datablock/internal/metrics"
	"github.com/AlephTX/datablock/internal/platform"
)

// WriteTicket is what AcquireWrite hands back to the producer engine:
// everything it needs to fill the slot and later commit or release it.
type WriteTicket struct {
	SlotID    uint64
	SlotIndex uint32
	Slot      *layout.SlotRWState
}

// AcquireWrite runs the writer acquisition protocol against the
// header and slot array for one channel and returns a WriteTicket, or
// a *coreerr.Error on timeout / contract violation / crashed owner.
func AcquireWrite(channel string, h *layout.Header, slots []layout.SlotRWState, m *metrics.Block, timeout time.Duration) (*WriteTicket, error) {
	n := uint64(len(slots))
	policy := layout.PolicyForCapacity(uint32(n))
	deadline := time.Now().Add(timeout)

	// Step 1: ring-full wait. Single-slot and double-buffer policies
	// never block here; they proceed straight to reclaiming.
	if policy == layout.PolicyRing {
		bo := newBackoff()
		for {
			writeIndex := h.WriteIndex.Load()
			readIndex := h.ReadIndex.Load()
			if writeIndex-readIndex < n {
				break
			}
			if time.Now().After(deadline) {
				m.WriterTimeouts.Add(1)
				return nil, coreerr.New(coreerr.Timeout, channel)
			}
			bo.Sleep()
		}
	}

	writeIndex := h.WriteIndex.Load()
	slotID := writeIndex
	slotIndex := uint32(slotID % n)
	slot := &slots[slotIndex]

	// Step 2: drain wait. Only slots that already have live readers
	// need draining; a never-used FREE slot has reader_count == 0.
	if slot.ReaderCount.Load() > 0 {
		slot.WriterWaiting.Store(1)
		start := time.Now()
		bo := newBackoff()
		for slot.ReaderCount.Load() > 0 {
			if time.Now().After(deadline) {
				slot.WriterWaiting.Store(0)
				m.WriterBlockedNanos.Add(uint64(time.Since(start)))
				m.WriterTimeouts.Add(1)
				return nil, coreerr.New(coreerr.Timeout, channel)
			}
			bo.Sleep()
		}
		slot.WriterWaiting.Store(0)
		m.WriterBlockedNanos.Add(uint64(time.Since(start)))
	}

	// Step 3: acquire the write lock.
	self := platform.CurrentPID()
	if !slot.WriteLock.CompareAndSwap(0, self) {
		m.WriteLockContention.Add(1)
		holder := slot.WriteLock.Load()
		if holder != 0 && !platform.ProcessAlive(holder) {
			return nil, coreerr.New(coreerr.OwnerDead, channel)
		}
		return nil, coreerr.New(coreerr.SingleProducerViolated, channel)
	}
	slot.StoreState(layout.SlotWriting)

	// Step 4: publish the reservation and hand out the ticket.
	h.WriteIndex.Store(writeIndex + 1)

	return &WriteTicket{SlotID: slotID, SlotIndex: slotIndex, Slot: slot}, nil
}

// Commit performs the commit sequence: optional checksum
// (performed by updateChecksum, supplied by the caller since only it
// has the payload and checksum-array handles), generation bump, state
// transition, and publishing commit_index.
func Commit(h *layout.Header, ticket *WriteTicket, m *metrics.Block, updateChecksum func() error) error {
	if updateChecksum != nil {
		if err := updateChecksum(); err != nil {
			m.CommitErrors.Add(1)
			return coreerr.Wrap(coreerr.ChecksumFailure, "", err)
		}
	}
	ticket.Slot.WriteGeneration.Add(1)
	ticket.Slot.StoreState(layout.SlotCommitted)
	h.CommitIndex.Store(ticket.SlotID)
	m.TotalSlotsWritten.Add(1)
	return nil
}

// Release performs the release sequence. A slot still in WRITING (the
// caller dropped the handle without committing) returns to FREE; a
// COMMITTED slot stays committed. The write lock is cleared either way.
func Release(ticket *WriteTicket) {
	if ticket.Slot.LoadState() == layout.SlotWriting {
		ticket.Slot.StoreState(layout.SlotFree)
	}
	ticket.Slot.WriteLock.Store(0)
}
