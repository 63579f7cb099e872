// Package metrics defines the in-header atomic counters block and the
// snapshot type consumers of the data-plane API see through
// Producer.MetricsSnapshot / Consumer.MetricsSnapshot.
package metrics

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// blockSize is the fixed in-header size of Block, asserted below.
const blockSize = 256

// Block is the 256-byte in-header counters block. Every field is
// updated with relaxed ordering; it is embedded directly into the
// shared-memory header, so its fields must stay fixed-size atomics
// with no padding surprises.
type Block struct {
	// slot-coordination
	WriterTimeouts        atomic.Uint64
	WriterBlockedNanos    atomic.Uint64
	WriteLockContention   atomic.Uint64
	GenerationWraps       atomic.Uint64
	ReaderNotReadyCount   atomic.Uint64
	ReaderRaceDetected    atomic.Uint64
	ReaderValidationFail  atomic.Uint64
	ReaderPeakConcurrent  atomic.Uint64

	// errors
	LastErrorTimestampNs atomic.Uint64
	LastErrorCode        atomic.Uint64
	ErrorSequence        atomic.Uint64
	SlotAcquireErrors    atomic.Uint64
	CommitErrors         atomic.Uint64
	ChecksumFailures     atomic.Uint64

	// heartbeats
	HeartbeatsSent         atomic.Uint64
	HeartbeatsFailed       atomic.Uint64
	LastHeartbeatTimestamp atomic.Uint64

	// performance
	TotalSlotsWritten atomic.Uint64
	TotalSlotsRead    atomic.Uint64
	TotalBytesWritten atomic.Uint64
	UptimeSeconds     atomic.Uint64

	// recovery
	RecoveryActions atomic.Uint64

	_pad [blockSize - 22*8]byte
}

func init() {
	if unsafe.Sizeof(Block{}) != blockSize {
		panic(fmt.Sprintf("metrics.Block size is %d, expected %d", unsafe.Sizeof(Block{}), blockSize))
	}
}

// Snapshot is a plain-data copy of Block, safe to pass around, log, or
// diff in tests with go-cmp.
type Snapshot struct {
	WriterTimeouts       uint64
	WriterBlockedNanos   uint64
	WriteLockContention  uint64
	GenerationWraps      uint64
	ReaderNotReadyCount  uint64
	ReaderRaceDetected   uint64
	ReaderValidationFail uint64
	ReaderPeakConcurrent uint64

	LastErrorTimestampNs uint64
	LastErrorCode        uint64
	ErrorSequence        uint64
	SlotAcquireErrors    uint64
	CommitErrors         uint64
	ChecksumFailures     uint64

	HeartbeatsSent         uint64
	HeartbeatsFailed       uint64
	LastHeartbeatTimestamp uint64

	TotalSlotsWritten uint64
	TotalSlotsRead    uint64
	TotalBytesWritten uint64
	UptimeSeconds     uint64

	RecoveryActions uint64
}

// Snapshot reads every counter with a relaxed load and returns a copy.
func (b *Block) Snapshot() Snapshot {
	return Snapshot{
		WriterTimeouts:       b.WriterTimeouts.Load(),
		WriterBlockedNanos:   b.WriterBlockedNanos.Load(),
		WriteLockContention:  b.WriteLockContention.Load(),
		GenerationWraps:      b.GenerationWraps.Load(),
		ReaderNotReadyCount:  b.ReaderNotReadyCount.Load(),
		ReaderRaceDetected:   b.ReaderRaceDetected.Load(),
		ReaderValidationFail: b.ReaderValidationFail.Load(),
		ReaderPeakConcurrent: b.ReaderPeakConcurrent.Load(),

		LastErrorTimestampNs: b.LastErrorTimestampNs.Load(),
		LastErrorCode:        b.LastErrorCode.Load(),
		ErrorSequence:        b.ErrorSequence.Load(),
		SlotAcquireErrors:    b.SlotAcquireErrors.Load(),
		CommitErrors:         b.CommitErrors.Load(),
		ChecksumFailures:     b.ChecksumFailures.Load(),

		HeartbeatsSent:         b.HeartbeatsSent.Load(),
		HeartbeatsFailed:       b.HeartbeatsFailed.Load(),
		LastHeartbeatTimestamp: b.LastHeartbeatTimestamp.Load(),

		TotalSlotsWritten: b.TotalSlotsWritten.Load(),
		TotalSlotsRead:    b.TotalSlotsRead.Load(),
		TotalBytesWritten: b.TotalBytesWritten.Load(),
		UptimeSeconds:     b.UptimeSeconds.Load(),

		RecoveryActions: b.RecoveryActions.Load(),
	}
}

// RecordError bumps the error sequence and records the failing
// operation's code and timestamp. Metrics are updated at the point of
// failure regardless of how the error propagates.
func (b *Block) RecordError(code uint64, timestampNs uint64) {
	b.LastErrorCode.Store(code)
	b.LastErrorTimestampNs.Store(timestampNs)
	b.ErrorSequence.Add(1)
}

// UpdatePeakReaders raises the peak-concurrent-readers counter to
// current if it is higher, retrying the CAS until it wins or the stored
// peak is already at least current.
func (b *Block) UpdatePeakReaders(current uint64) {
	for {
		peak := b.ReaderPeakConcurrent.Load()
		if current <= peak {
			return
		}
		if b.ReaderPeakConcurrent.CompareAndSwap(peak, current) {
			return
		}
	}
}
