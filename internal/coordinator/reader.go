package coordinator

import (
	"github.com/AlephTX/datablock/internal/coreerr"
	"github.com/AlephTX/datablock/internal/layout"
	"github.com/AlephTX/datablock/internal/metrics"
)

// ReadTicket is what AcquireRead hands back to the consumer engine.
type ReadTicket struct {
	SlotID     uint64
	SlotIndex  uint32
	Slot       *layout.SlotRWState
	Generation uint64
}

// AcquireRead runs the TOCTTOU-safe reader acquisition protocol.
// It never blocks; "not ready" is returned immediately so callers
// retry through the iterator's own back-off loop instead.
func AcquireRead(channel string, h *layout.Header, slots []layout.SlotRWState, slotID uint64, m *metrics.Block) (*ReadTicket, error) {
	n := uint64(len(slots))
	slotIndex := uint32(slotID % n)
	slot := &slots[slotIndex]

	// Step 1.
	commitIndex := h.CommitIndex.Load()
	if slotID > commitIndex {
		return nil, coreerr.New(coreerr.NotReady, channel)
	}

	// Step 2.
	if slot.LoadState() != layout.SlotCommitted {
		m.ReaderNotReadyCount.Add(1)
		return nil, coreerr.New(coreerr.NotReady, channel)
	}

	// Step 3: contribute to reader_count before re-checking. This is
	// deliberately visible to a concurrent writer's drain loop (step
	// 2 of AcquireWrite) before we confirm our own observation below —
	// that visibility is what lets the writer's wait and our re-check
	// close the TOCTTOU window from both sides.
	slot.ReaderCount.Add(1)

	// Step 4: the re-check after the increment is the sequentially
	// consistent fence this protocol needs; sync/atomic operations in Go
	// are already sequentially consistent, so no separate fence call
	// is needed beyond this load happening after the Add above.
	if slot.LoadState() != layout.SlotCommitted {
		decrementUint32(&slot.ReaderCount)
		m.ReaderRaceDetected.Add(1)
		return nil, coreerr.New(coreerr.NotReady, channel)
	}

	// Step 5.
	generation := slot.WriteGeneration.Load()

	// Step 6.
	m.UpdatePeakReaders(uint64(slot.ReaderCount.Load()))

	return &ReadTicket{SlotID: slotID, SlotIndex: slotIndex, Slot: slot, Generation: generation}, nil
}

// ReleaseResult reports what happened at read release: whether the
// data the caller consumed may have been torn by a concurrent
// reclaim (raced), and whether the checksum verified (meaningless
// when checksums are disabled or policy is manual and the caller
// didn't ask for verification).
type ReleaseResult struct {
	Raced       bool
	ChecksumOK  bool
}

// ReleaseRead performs the release sequence: optional checksum
// verification (enforced policy only), then the reader_count decrement.
// verifyChecksum is nil when checksums are not enforced.
func ReleaseRead(ticket *ReadTicket, policy layout.ChecksumPolicy, verifyChecksum func() bool, m *metrics.Block) (ReleaseResult, error) {
	result := ReleaseResult{
		Raced:      ticket.Slot.WriteGeneration.Load() != ticket.Generation,
		ChecksumOK: true,
	}
	if result.Raced {
		m.ReaderValidationFail.Add(1)
	}

	var err error
	if policy == layout.ChecksumEnforced && verifyChecksum != nil {
		result.ChecksumOK = verifyChecksum()
		if !result.ChecksumOK {
			m.ChecksumFailures.Add(1)
			err = coreerr.New(coreerr.ChecksumFailure, "")
		}
	}

	decrementUint32(&ticket.Slot.ReaderCount)
	return result, err
}
