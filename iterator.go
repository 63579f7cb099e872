package datablock

import (
	"time"

	"github.com/AlephTX/datablock/internal/coreerr"
)

// Iterator walks a channel's commit stream in order, tracking
// last_seen_slot_id: calling TryNext never re-delivers a slot it has
// already successfully returned, and falling behind the ring by more
// than its capacity is reported as a gap rather than silently skipped.
type Iterator struct {
	c        *Consumer
	lastSeen uint64
	started  bool
}

// SeekLatest positions the iterator on the most recently committed
// slot, so the next TryNext attempts the slot after it instead of
// replaying from the oldest still-live slot.
func (it *Iterator) SeekLatest() {
	commitIndex := it.c.seg.header.CommitIndex.Load()
	it.lastSeen = commitIndex
	it.started = true
}

// SeekTo repositions the iterator so the next TryNext attempts
// slot_id exactly.
func (it *Iterator) SeekTo(slotID uint64) {
	if slotID == 0 {
		it.lastSeen = 0
		it.started = false
		return
	}
	it.lastSeen = slotID - 1
	it.started = true
}

// TryNext attempts to acquire the next slot in sequence, backing off
// and retrying until either a slot becomes ready or timeout elapses.
// A zero timeout polls exactly once without blocking.
func (it *Iterator) TryNext(timeout time.Duration) (*ReadHandle, error) {
	next := it.nextSlotID()

	n := uint64(len(it.c.seg.slots))
	writeIndex := it.c.seg.header.WriteIndex.Load()
	if writeIndex > n && next < writeIndex-n {
		// The ring has wrapped past this slot_id since we last looked;
		// there is nothing meaningful left to read at `next`.
		it.lastSeen = writeIndex - n - 1
		it.started = true
		return nil, coreerr.New(coreerr.InvalidSlot, it.c.name)
	}

	deadline := time.Now().Add(timeout)
	bo := newSpinBackoff()
	for {
		h, err := it.c.AcquireConsume(next)
		if err == nil {
			it.lastSeen = next
			it.started = true
			it.c.publishPosition(next)
			return h, nil
		}
		if !isNotReady(err) || timeout <= 0 || time.Now().After(deadline) {
			return nil, err
		}
		bo.sleep()
	}
}

func (it *Iterator) nextSlotID() uint64 {
	if !it.started {
		return 0
	}
	return it.lastSeen + 1
}

func isNotReady(err error) bool {
	ce, ok := err.(*coreerr.Error)
	return ok && ce.Kind == coreerr.NotReady
}
