package datablock

import (
	"runtime"

	"github.com/AlephTX/datablock/internal/coordinator"
)

// WriteHandle exclusively owns the write lock of one slot. It is
// non-copyable by convention (callers should pass *WriteHandle, never
// copy the struct) and move-only in spirit: Commit and Release each
// consume it.
//
// Go has no destructor, so "dropping an unreleased handle triggers the
// same release path" is approximated with a finalizer
// that performs a best-effort, logged release if neither Commit nor
// Release was called before the handle became unreachable.
type WriteHandle struct {
	seg      *segment
	ticket   *coordinator.WriteTicket
	producer *Producer
	done     bool
}

func newWriteHandle(p *Producer, seg *segment, ticket *coordinator.WriteTicket) *WriteHandle {
	h := &WriteHandle{seg: seg, ticket: ticket, producer: p}
	runtime.SetFinalizer(h, finalizeWriteHandle)
	return h
}

func finalizeWriteHandle(h *WriteHandle) {
	if h.done {
		return
	}
	h.producer.log.Warnw("write handle dropped without commit/release", "slot_id", h.ticket.SlotID)
	coordinator.Release(h.ticket)
}

// SlotID is this handle's monotonic slot identity.
func (h *WriteHandle) SlotID() uint64 { return h.ticket.SlotID }

// SlotIndex is SlotID mod N, the slot's physical position.
func (h *WriteHandle) SlotIndex() uint32 { return h.ticket.SlotIndex }

// Payload returns the mutable payload view for this slot.
func (h *WriteHandle) Payload() []byte {
	return h.seg.slotPayload(h.ticket.SlotIndex)
}

// FlexZone returns the mutable flexible-zone view, shared across all
// slots and protected by the header's user spinlock, not by this
// handle. When checksums are enabled the trailing bytes DataBlock uses
// to store the flexible-zone checksum are excluded.
func (h *WriteHandle) FlexZone() []byte {
	return flexUserZone(h.seg.flexZone(), h.seg.cfg.ChecksumEnabled())
}

// ReadHandle holds a non-negative contribution to a slot's
// reader_count. Like WriteHandle, it carries a finalizer as a
// best-effort backstop for callers that forget to Release.
type ReadHandle struct {
	seg      *segment
	ticket   *coordinator.ReadTicket
	consumer *Consumer
	done     bool
}

func newReadHandle(c *Consumer, seg *segment, ticket *coordinator.ReadTicket) *ReadHandle {
	h := &ReadHandle{seg: seg, ticket: ticket, consumer: c}
	runtime.SetFinalizer(h, finalizeReadHandle)
	return h
}

func finalizeReadHandle(h *ReadHandle) {
	if h.done {
		return
	}
	h.consumer.log.Warnw("read handle dropped without release", "slot_id", h.ticket.SlotID)
	_, _ = h.consumer.releaseTicket(h.ticket)
}

// SlotID is this handle's monotonic slot identity.
func (h *ReadHandle) SlotID() uint64 { return h.ticket.SlotID }

// SlotIndex is SlotID mod N.
func (h *ReadHandle) SlotIndex() uint32 { return h.ticket.SlotIndex }

// Generation is the write_generation observed at acquisition time, for
// callers that want to re-validate it themselves; Consumer.Release
// already performs this check and reports it as raced.
func (h *ReadHandle) Generation() uint64 { return h.ticket.Generation }

// Payload returns the read-only payload view for this slot.
func (h *ReadHandle) Payload() []byte {
	return h.seg.slotPayload(h.ticket.SlotIndex)
}
