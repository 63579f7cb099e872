package coordinator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AlephTX/datablock/internal/coordinator"
	"github.com/AlephTX/datablock/internal/coreerr"
	"github.com/AlephTX/datablock/internal/layout"
	"github.com/AlephTX/datablock/internal/metrics"
)

func newFixture(t *testing.T, n int) (*layout.Header, []layout.SlotRWState, *metrics.Block) {
	t.Helper()
	data := make([]byte, layout.Size+n*layout.SlotRWStateSize)
	h := layout.OverlayHeader(data)
	slots := layout.SlotRWStateArray(data, n)
	return h, slots, &h.Metrics
}

func TestAcquireCommitReleaseRoundTrip(t *testing.T) {
	h, slots, m := newFixture(t, 4)

	ticket, err := coordinator.AcquireWrite("ch", h, slots, m, time.Second)
	require.NoError(t, err)
	require.Equal(t, uint64(0), ticket.SlotID)

	require.NoError(t, coordinator.Commit(h, ticket, m, nil))
	coordinator.Release(ticket)

	require.Equal(t, layout.SlotCommitted, ticket.Slot.LoadState())
	require.Equal(t, uint64(0), ticket.Slot.WriteLock.Load())
	require.Equal(t, uint64(0), h.CommitIndex.Load())
	require.Equal(t, uint64(1), h.WriteIndex.Load())

	rt, err := coordinator.AcquireRead("ch", h, slots, 0, m)
	require.NoError(t, err)
	require.False(t, rt.Slot == nil)

	res, err := coordinator.ReleaseRead(rt, layout.ChecksumDisabled, nil, m)
	require.NoError(t, err)
	require.False(t, res.Raced)
}

func TestAcquireWithoutCommitLeavesSlotClean(t *testing.T) {
	h, slots, m := newFixture(t, 4)

	ticket, err := coordinator.AcquireWrite("ch", h, slots, m, time.Second)
	require.NoError(t, err)

	coordinator.Release(ticket) // aborted: no Commit call

	require.Equal(t, layout.SlotFree, ticket.Slot.LoadState())
	require.Equal(t, uint64(0), ticket.Slot.WriteLock.Load())
	require.Equal(t, uint64(0), h.CommitIndex.Load())
}

func TestReaderNotReadyBeforeCommit(t *testing.T) {
	h, slots, m := newFixture(t, 2)

	_, err := coordinator.AcquireWrite("ch", h, slots, m, time.Second)
	require.NoError(t, err)

	_, err = coordinator.AcquireRead("ch", h, slots, 0, m)
	require.Error(t, err)
}

func TestRingBackpressureTimesOut(t *testing.T) {
	h, slots, m := newFixture(t, 4)

	for i := 0; i < 4; i++ {
		ticket, err := coordinator.AcquireWrite("ch", h, slots, m, time.Second)
		require.NoError(t, err)
		require.NoError(t, coordinator.Commit(h, ticket, m, nil))
		coordinator.Release(ticket)
	}

	_, err := coordinator.AcquireWrite("ch", h, slots, m, 50*time.Millisecond)
	require.Error(t, err)
	require.Equal(t, uint64(1), m.WriterTimeouts.Load())
}

func TestSingleSlotPolicyNeverBlocksOnFull(t *testing.T) {
	h, slots, m := newFixture(t, 1)

	for i := 0; i < 3; i++ {
		ticket, err := coordinator.AcquireWrite("ch", h, slots, m, 10*time.Millisecond)
		require.NoError(t, err)
		require.NoError(t, coordinator.Commit(h, ticket, m, nil))
		coordinator.Release(ticket)
	}
	require.Equal(t, uint64(0), m.WriterTimeouts.Load())
}

func TestDrainWaitsForReadersThenWriterReclaims(t *testing.T) {
	h, slots, m := newFixture(t, 1)

	t1, err := coordinator.AcquireWrite("ch", h, slots, m, time.Second)
	require.NoError(t, err)
	require.NoError(t, coordinator.Commit(h, t1, m, nil))
	coordinator.Release(t1)

	rt, err := coordinator.AcquireRead("ch", h, slots, 0, m)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(20 * time.Millisecond)
		_, relErr := coordinator.ReleaseRead(rt, layout.ChecksumDisabled, nil, m)
		require.NoError(t, relErr)
	}()

	t2, err := coordinator.AcquireWrite("ch", h, slots, m, time.Second)
	require.NoError(t, err)
	require.NoError(t, coordinator.Commit(h, t2, m, nil))
	coordinator.Release(t2)

	<-done
}

func TestSingleProducerViolationFailsFast(t *testing.T) {
	h, slots, m := newFixture(t, 2)

	ticket, err := coordinator.AcquireWrite("ch", h, slots, m, time.Second)
	require.NoError(t, err)
	require.NotNil(t, ticket)

	// The slot's write_lock is already held by us (the single legitimate
	// writer's CAS already succeeded for slot 0); simulate a second
	// writer attempting slot_id 0 by rewinding write_index.
	require.NotEqual(t, uint64(0), ticket.Slot.WriteLock.Load())

	h.WriteIndex.Store(0)
	_, err = coordinator.AcquireWrite("ch", h, slots, m, time.Second)
	var ce *coreerr.Error
	require.ErrorAs(t, err, &ce)
	require.Equal(t, coreerr.SingleProducerViolated, ce.Kind)
}
