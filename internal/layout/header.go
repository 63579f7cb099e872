// Package layout defines the bit-exact shared-memory segment layout:
// the fixed header, the per-slot RW-state array, the optional checksum
// array, the flexible zone, and the payload ring. Every exported type
// here is meant to be overlaid directly onto a mapped byte slice via
// unsafe.Pointer, so field order and size matter as much as Go
// semantics.
package layout

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/AlephTX/datablock/internal/metrics"
)

// Magic is stored last during initialisation and is the
// first field an attacher validates.
const Magic uint64 = 0xBADF00DFEEDFACE

// CurrentVersion and MinSupportedVersion bound the version range an
// attacher will accept.
const (
	CurrentVersion      uint32 = 1
	MinSupportedVersion uint32 = 1
)

// InitState is the three-valued header initialisation state machine.
type InitState uint32

const (
	InitUninitialized    InitState = 0
	InitMutexReady        InitState = 1
	InitFullyInitialized  InitState = 2
)

// ChecksumPolicy selects whether commit/release automatically maintain
// and verify per-slot checksums, or only expose the operations.
type ChecksumPolicy uint32

const (
	ChecksumDisabled ChecksumPolicy = 0
	ChecksumEnforced ChecksumPolicy = 1
	ChecksumManual   ChecksumPolicy = 2
)

// HeartbeatCapacity is the fixed upper bound of concurrently registered
// consumer heartbeats.
const HeartbeatCapacity = 8

// SpinlockCapacity is the size of the user-addressable spinlock array.
const SpinlockCapacity = 8

// CounterCapacity is the size of the user-addressable 64-bit counter
// array.
const CounterCapacity = 8

// ChecksumSize is the size in bytes of one slot's checksum plus its
// validity byte.
const ChecksumSize = 33

// RobustMutexState is the process-shared control mutex storage. This
// is a from-scratch Go reinterpretation of a pthread robust mutex: a
// CAS-acquired holder pid plus an EOWNERDEAD-equivalent "abandoned"
// flag, since a robust pthread_mutex_t cannot be driven from pure Go.
// See RobustMutexState.Lock in mutex.go for the acquisition protocol
// and DESIGN.md for why this substitution was made.
type RobustMutexState struct {
	Holder     atomic.Uint64
	Generation atomic.Uint32
	Abandoned  atomic.Uint32
	_pad       [48]byte
}

// Spinlock is one entry of the user-addressable spinlock array, padded
// to 16 bytes.
type Spinlock struct {
	State atomic.Uint64
	_pad  [8]byte
}

// HeartbeatSlot carries one consumer's identity, last-seen-alive
// timestamp, and consumption low-watermark, cache-padded to 64 bytes.
// Position is the next slot_id this consumer has not yet consumed; the
// minimum Position across all occupied slots is what gets published
// into Header.ReadIndex.
type HeartbeatSlot struct {
	ConsumerID      atomic.Uint64
	LastHeartbeatNs atomic.Uint64
	Position        atomic.Uint64
	_pad            [40]byte
}

func init() {
	if unsafe.Sizeof(HeartbeatSlot{}) != 64 {
		panic(fmt.Sprintf("HeartbeatSlot size is %d, expected 64", unsafe.Sizeof(HeartbeatSlot{})))
	}
}

// Header is the fixed-size prefix of a DataBlock segment.
type Header struct {
	Magic        atomic.Uint64
	SharedSecret [2]uint64
	Version      atomic.Uint32
	HeaderSize   atomic.Uint32
	InitState    atomic.Uint32

	_pad0 [4]byte

	WriteIndex  atomic.Uint64
	CommitIndex atomic.Uint64
	// ReadIndex is the advisory low-watermark: the minimum, across all
	// attached consumers, of the next slot_id each has not yet
	// consumed. AcquireWrite uses it to decide when the ring is full.
	ReadIndex atomic.Uint64

	SchemaHash    [32]byte
	SchemaVersion atomic.Uint32

	RingCapacity   uint32
	UnitSize       uint32
	FlexSize       uint32
	ChecksumPolicy uint32

	ActiveConsumerCount atomic.Uint32

	_pad1 [4]byte

	Mutex RobustMutexState

	Spinlocks [SpinlockCapacity]Spinlock
	Counters  [CounterCapacity]atomic.Uint64

	Metrics metrics.Block

	Heartbeats [HeartbeatCapacity]HeartbeatSlot
}

// RecomputeReadIndex sets ReadIndex to the minimum Position among all
// currently occupied heartbeat slots, which is what AcquireWrite's
// ring-full check treats as the oldest slot any attached consumer
// still wants. With no occupied slots it is left untouched: an empty
// channel fills and blocks a producer exactly as a lone reader that
// never consumes would.
func (h *Header) RecomputeReadIndex() {
	var min uint64
	found := false
	for i := range h.Heartbeats {
		slot := &h.Heartbeats[i]
		if slot.ConsumerID.Load() == 0 {
			continue
		}
		pos := slot.Position.Load()
		if !found || pos < min {
			min = pos
			found = true
		}
	}
	if found {
		h.ReadIndex.Store(min)
	}
}

// Size is the compile-time size of Header, written into header_size
// during initialisation and checked on attach.
var Size = int(unsafe.Sizeof(Header{}))

// SlotRWStateSize is the fixed per-slot coordinator record size.
const SlotRWStateSize = 64

// OverlayHeader reinterprets the first Size bytes of data as a *Header.
// data must outlive the returned pointer and must be at least Size
// bytes long.
func OverlayHeader(data []byte) *Header {
	return (*Header)(unsafe.Pointer(&data[0]))
}

// SlotRWStateArray reinterprets the bytes immediately following the
// header as an array of n SlotRWState records.
func SlotRWStateArray(data []byte, n int) []SlotRWState {
	base := unsafe.Pointer(&data[Size])
	return unsafe.Slice((*SlotRWState)(base), n)
}

// ChecksumArrayOffset returns the byte offset of the checksum array,
// which immediately follows the slot RW-state array.
func ChecksumArrayOffset(n int) int {
	return Size + n*SlotRWStateSize
}

// ChecksumArray reinterprets the checksum region as a flat byte slice
// of n*ChecksumSize bytes: 32 bytes of digest followed by one validity
// byte, per slot.
func ChecksumArray(data []byte, n int) []byte {
	off := ChecksumArrayOffset(n)
	return data[off : off+n*ChecksumSize]
}

// FlexZoneOffset returns the byte offset of the flexible zone.
func FlexZoneOffset(n int, checksumEnabled bool) int {
	off := Size + n*SlotRWStateSize
	if checksumEnabled {
		off += n * ChecksumSize
	}
	return off
}

// FlexZone returns the flexible metadata/coordination region.
func FlexZone(data []byte, n int, checksumEnabled bool, flexSize int) []byte {
	off := FlexZoneOffset(n, checksumEnabled)
	return data[off : off+flexSize]
}

// PayloadRingOffset returns the byte offset of slot 0's payload.
func PayloadRingOffset(n int, checksumEnabled bool, flexSize int) int {
	return FlexZoneOffset(n, checksumEnabled) + flexSize
}

// SlotPayload returns the payload bytes for slot index idx (already
// reduced modulo N by the caller).
func SlotPayload(data []byte, n int, checksumEnabled bool, flexSize, unitSize, idx int) []byte {
	base := PayloadRingOffset(n, checksumEnabled, flexSize) + idx*unitSize
	return data[base : base+unitSize]
}

// TotalSegmentSize computes the full segment size: header, per-slot
// coordinator records, optional checksum array, flexible zone, then
// the payload ring itself.
func TotalSegmentSize(n int, unitSize, flexSize int, checksumEnabled bool) int {
	size := Size + n*SlotRWStateSize
	if checksumEnabled {
		size += n * ChecksumSize
	}
	size += flexSize
	size += n * unitSize
	return size
}
