package layout

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// SlotState is the per-slot state machine:
// FREE -> WRITING -> COMMITTED -> (DRAINING ->)? FREE.
type SlotState uint32

const (
	SlotFree      SlotState = 0
	SlotWriting   SlotState = 1
	SlotCommitted SlotState = 2
	SlotDraining  SlotState = 3
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "FREE"
	case SlotWriting:
		return "WRITING"
	case SlotCommitted:
		return "COMMITTED"
	case SlotDraining:
		return "DRAINING"
	default:
		return "UNKNOWN"
	}
}

// SlotRWState is the cache-aligned per-slot coordinator record. Every
// field is atomic; it is reinterpreted directly over shared memory, so
// its size must stay exactly 64 bytes (SlotRWStateSize). Fields are
// ordered largest-alignment-first so the compiler never inserts
// padding before the tail pad array: two uint64s, then three uint32s.
type SlotRWState struct {
	WriteLock       atomic.Uint64 // 0 = free, otherwise the writer's pid
	WriteGeneration atomic.Uint64
	ReaderCount     atomic.Uint32
	State           atomic.Uint32
	WriterWaiting   atomic.Uint32

	_pad [SlotRWStateSize - 8 - 8 - 4 - 4 - 4]byte
}

func init() {
	if unsafe.Sizeof(SlotRWState{}) != SlotRWStateSize {
		panic(fmt.Sprintf("SlotRWState size is %d, expected %d", unsafe.Sizeof(SlotRWState{}), SlotRWStateSize))
	}
}

// LoadState is a convenience wrapper over the raw atomic load.
func (s *SlotRWState) LoadState() SlotState {
	return SlotState(s.State.Load())
}

// StoreState is a convenience wrapper over the raw atomic store.
func (s *SlotRWState) StoreState(v SlotState) {
	s.State.Store(uint32(v))
}
