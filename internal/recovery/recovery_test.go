package recovery_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AlephTX/datablock/internal/layout"
	"github.com/AlephTX/datablock/internal/recovery"
)

func TestForceResetSlotRefusesLiveHolder(t *testing.T) {
	var slot layout.SlotRWState
	slot.StoreState(layout.SlotWriting)

	// Using our own pid guarantees "alive" deterministically.
	selfPID := uint64(os.Getpid())
	slot.WriteLock.Store(selfPID)

	err := recovery.ForceResetSlot("ch", &slot, false)
	require.Error(t, err)

	err = recovery.ForceResetSlot("ch", &slot, true)
	require.NoError(t, err)
	require.Equal(t, layout.SlotFree, slot.LoadState())
	require.Equal(t, uint64(0), slot.WriteLock.Load())
}

func TestForceResetSlotNeverTouchesGeneration(t *testing.T) {
	var slot layout.SlotRWState
	slot.WriteGeneration.Store(42)
	slot.StoreState(layout.SlotWriting)

	require.NoError(t, recovery.ForceResetSlot("ch", &slot, true))
	require.Equal(t, uint64(42), slot.WriteGeneration.Load())
}

func TestCleanupDeadConsumers(t *testing.T) {
	data := make([]byte, layout.Size)
	h := layout.OverlayHeader(data)
	h.ActiveConsumerCount.Store(2)
	h.Heartbeats[0].ConsumerID.Store(100)
	h.Heartbeats[0].LastHeartbeatNs.Store(1_000_000_000)
	h.Heartbeats[1].ConsumerID.Store(200)
	h.Heartbeats[1].LastHeartbeatNs.Store(9_000_000_000)

	now := uint64(10_000_000_000)
	dead := recovery.CleanupDeadConsumers(h, 5*time.Second, now, false)

	require.Len(t, dead, 1)
	require.Equal(t, uint64(100), dead[0].ConsumerID)
	require.Equal(t, uint64(0), h.Heartbeats[0].ConsumerID.Load())
	require.Equal(t, uint64(200), h.Heartbeats[1].ConsumerID.Load())
	require.Equal(t, uint32(1), h.ActiveConsumerCount.Load())
}

func TestCleanupDeadConsumersDryRun(t *testing.T) {
	data := make([]byte, layout.Size)
	h := layout.OverlayHeader(data)
	h.ActiveConsumerCount.Store(1)
	h.Heartbeats[0].ConsumerID.Store(100)
	h.Heartbeats[0].LastHeartbeatNs.Store(0)

	dead := recovery.CleanupDeadConsumers(h, time.Second, 10_000_000_000, true)
	require.Len(t, dead, 1)
	require.Equal(t, uint64(100), h.Heartbeats[0].ConsumerID.Load())
	require.Equal(t, uint32(1), h.ActiveConsumerCount.Load())
}

func TestCleanupDeadConsumersReleasesStaleReadIndex(t *testing.T) {
	data := make([]byte, layout.Size)
	h := layout.OverlayHeader(data)
	h.ActiveConsumerCount.Store(2)
	h.Heartbeats[0].ConsumerID.Store(100)
	h.Heartbeats[0].LastHeartbeatNs.Store(0)
	h.Heartbeats[0].Position.Store(1) // crashed after consuming only slot 0
	h.Heartbeats[1].ConsumerID.Store(200)
	h.Heartbeats[1].LastHeartbeatNs.Store(9_000_000_000)
	h.Heartbeats[1].Position.Store(7) // caught up through slot 6
	h.RecomputeReadIndex()
	require.Equal(t, uint64(1), h.ReadIndex.Load())

	now := uint64(10_000_000_000)
	dead := recovery.CleanupDeadConsumers(h, 5*time.Second, now, false)

	require.Len(t, dead, 1)
	require.Equal(t, uint64(100), dead[0].ConsumerID)
	require.Equal(t, uint64(7), h.ReadIndex.Load())
}

func TestValidateIntegrityDetectsBadMagic(t *testing.T) {
	data := make([]byte, layout.Size)
	h := layout.OverlayHeader(data)
	h.Version.Store(layout.CurrentVersion)
	h.InitState.Store(uint32(layout.InitFullyInitialized))

	report := recovery.ValidateIntegrity(h, nil, nil, false)
	require.False(t, report.MagicOK)
	require.False(t, report.Valid)

	h.Magic.Store(layout.Magic)
	report = recovery.ValidateIntegrity(h, nil, nil, false)
	require.True(t, report.Valid)
}
