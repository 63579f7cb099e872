package datablock_test

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AlephTX/datablock"
)

func uniqueChannel(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("datablock-test-%d-%s", os.Getpid(), t.Name())
}

func TestProducerConsumerRoundTrip(t *testing.T) {
	channel := uniqueChannel(t)
	cfg := datablock.Config{
		RingCapacity:   4,
		UnitSize:       datablock.UnitSize4KiB,
		ChecksumPolicy: datablock.ChecksumEnforced,
	}

	p, err := datablock.Create(channel, cfg)
	require.NoError(t, err)
	defer p.Close()
	defer p.Unlink()

	h, err := p.AcquireWrite(time.Second)
	require.NoError(t, err)
	copy(h.Payload(), []byte{0x01, 0x02, 0x03})
	require.NoError(t, p.Commit(h, 3))

	c, err := datablock.Attach(channel, [16]byte{})
	require.NoError(t, err)
	defer c.Close()

	rh, err := c.AcquireConsume(0)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, rh.Payload()[:3])

	result, err := c.Release(rh)
	require.NoError(t, err)
	require.False(t, result.Raced)
	require.True(t, result.ChecksumOK)
}

func TestAttachRejectsWrongSecret(t *testing.T) {
	channel := uniqueChannel(t)
	var secret [16]byte
	secret[0] = 0x42

	cfg := datablock.Config{RingCapacity: 1, UnitSize: datablock.UnitSize4KiB, SharedSecret: secret}
	p, err := datablock.Create(channel, cfg)
	require.NoError(t, err)
	defer p.Close()
	defer p.Unlink()

	_, err = datablock.Attach(channel, [16]byte{})
	require.Error(t, err)

	var dbErr *datablock.Error
	require.ErrorAs(t, err, &dbErr)
	require.Equal(t, datablock.SecretMismatch, dbErr.Kind)
}

func TestIteratorDeliversInOrder(t *testing.T) {
	channel := uniqueChannel(t)
	cfg := datablock.Config{RingCapacity: 4, UnitSize: datablock.UnitSize4KiB}

	p, err := datablock.Create(channel, cfg)
	require.NoError(t, err)
	defer p.Close()
	defer p.Unlink()

	for i := 0; i < 3; i++ {
		h, err := p.AcquireWrite(time.Second)
		require.NoError(t, err)
		h.Payload()[0] = byte(i)
		require.NoError(t, p.Commit(h, 1))
	}

	c, err := datablock.Attach(channel, [16]byte{})
	require.NoError(t, err)
	defer c.Close()

	it := c.SlotIterator()
	for i := 0; i < 3; i++ {
		h, err := it.TryNext(0)
		require.NoError(t, err)
		require.Equal(t, byte(i), h.Payload()[0])
		_, err = c.Release(h)
		require.NoError(t, err)
	}

	_, err = it.TryNext(0)
	require.Error(t, err)
}

func TestWithWriteReleasesOnError(t *testing.T) {
	channel := uniqueChannel(t)
	cfg := datablock.Config{RingCapacity: 1, UnitSize: datablock.UnitSize4KiB}

	p, err := datablock.Create(channel, cfg)
	require.NoError(t, err)
	defer p.Close()
	defer p.Unlink()

	boom := fmt.Errorf("boom")
	err = datablock.WithWrite(p, time.Second, func(h *datablock.WriteHandle) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)

	// The slot was released, not committed, so the next acquire succeeds
	// immediately; write_index keeps advancing even though slot_index
	// (mod 1) stays at 0 the whole time.
	h, err := p.AcquireWrite(time.Second)
	require.NoError(t, err)
	require.Equal(t, uint64(1), h.SlotID())
	require.Equal(t, uint32(0), h.SlotIndex())
	require.NoError(t, p.Commit(h, 0))
}

func TestSlowConsumerUnblocksRingBackpressure(t *testing.T) {
	channel := uniqueChannel(t)
	cfg := datablock.Config{RingCapacity: 4, UnitSize: datablock.UnitSize4KiB}

	p, err := datablock.Create(channel, cfg)
	require.NoError(t, err)
	defer p.Close()
	defer p.Unlink()

	c, err := datablock.Attach(channel, [16]byte{})
	require.NoError(t, err)
	defer c.Close()

	it := c.SlotIterator()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			h, err := it.TryNext(2 * time.Second)
			require.NoError(t, err)
			_, err = c.Release(h)
			require.NoError(t, err)
			time.Sleep(5 * time.Millisecond)
		}
	}()

	for i := 0; i < 10; i++ {
		h, err := p.AcquireWrite(2 * time.Second)
		require.NoError(t, err)
		h.Payload()[0] = byte(i)
		require.NoError(t, p.Commit(h, 1))
	}

	<-done
	snap := p.MetricsSnapshot()
	require.Equal(t, uint64(0), snap.WriterTimeouts)
}

func TestCountersAndSpinlocks(t *testing.T) {
	channel := uniqueChannel(t)
	cfg := datablock.Config{RingCapacity: 1, UnitSize: datablock.UnitSize4KiB}

	p, err := datablock.Create(channel, cfg)
	require.NoError(t, err)
	defer p.Close()
	defer p.Unlink()

	require.NoError(t, p.SetCounter(0, 42))
	v, err := p.GetCounter(0)
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)

	require.NoError(t, p.AcquireSpinlock(0))
	require.NoError(t, p.ReleaseSpinlock(0))

	_, err = p.GetCounter(99)
	require.Error(t, err)
}
