package layout_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/AlephTX/datablock/internal/layout"
)

func TestSlotRWStateIsExactlyOneCacheLine(t *testing.T) {
	require.EqualValues(t, layout.SlotRWStateSize, unsafe.Sizeof(layout.SlotRWState{}))
}

func TestHeartbeatSlotIsExactlyOneCacheLine(t *testing.T) {
	require.EqualValues(t, 64, unsafe.Sizeof(layout.HeartbeatSlot{}))
}

func TestSlotRWStateArrayStrideMatchesDownstreamOffsets(t *testing.T) {
	const n = 3
	data := make([]byte, layout.TotalSegmentSize(n, 4096, 0, false))
	slots := layout.SlotRWStateArray(data, n)
	require.Len(t, slots, n)

	slots[0].WriteLock.Store(1)
	slots[1].WriteLock.Store(2)
	slots[2].WriteLock.Store(3)

	// ChecksumArrayOffset assumes a stride of SlotRWStateSize between
	// consecutive slots; if the real struct size diverged, writing to
	// slots[2] would corrupt bytes at or past this offset.
	off := layout.ChecksumArrayOffset(n)
	require.Equal(t, layout.Size+n*layout.SlotRWStateSize, off)
	require.Equal(t, uint64(1), slots[0].WriteLock.Load())
	require.Equal(t, uint64(2), slots[1].WriteLock.Load())
	require.Equal(t, uint64(3), slots[2].WriteLock.Load())
}

func TestRecomputeReadIndexTakesMinimumAcrossConsumers(t *testing.T) {
	data := make([]byte, layout.Size)
	h := layout.OverlayHeader(data)

	h.Heartbeats[0].ConsumerID.Store(1)
	h.Heartbeats[0].Position.Store(5)
	h.Heartbeats[1].ConsumerID.Store(2)
	h.Heartbeats[1].Position.Store(2)

	h.RecomputeReadIndex()
	require.Equal(t, uint64(2), h.ReadIndex.Load())

	h.Heartbeats[1].ConsumerID.Store(0)
	h.Heartbeats[1].Position.Store(0)
	h.RecomputeReadIndex()
	require.Equal(t, uint64(5), h.ReadIndex.Load())
}

func TestRecomputeReadIndexNoopWithNoConsumers(t *testing.T) {
	data := make([]byte, layout.Size)
	h := layout.OverlayHeader(data)
	h.ReadIndex.Store(3)

	h.RecomputeReadIndex()
	require.Equal(t, uint64(3), h.ReadIndex.Load())
}
