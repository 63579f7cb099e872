package datablock

import (
	"time"

	"go.uber.org/zap"

	"github.com/AlephTX/datablock/internal/coordinator"
	"github.com/AlephTX/datablock/internal/coreerr"
	"github.com/AlephTX/datablock/internal/layout"
	"github.com/AlephTX/datablock/internal/logging"
	"github.com/AlephTX/datablock/internal/metrics"
	"github.com/AlephTX/datablock/internal/platform"
	"github.com/AlephTX/datablock/internal/schema"
)

// AcquireTimeoutDefault bounds how long AcquireWrite waits for ring
// space and reader drain before giving up.
const AcquireTimeoutDefault = 2 * time.Second

// Producer is the single-writer engine for one channel's segment. A
// channel must have at most one live Producer at a time. Create does
// not detect an existing segment: a second creator with the same name
// truncates and re-initialises it (O_CREATE|O_TRUNC, no O_EXCL).
type Producer struct {
	name string
	seg  *segment
	log  *zap.SugaredLogger
}

// CreateOption configures Create.
type CreateOption func(*Producer)

// WithLogger overrides the default no-op logger.
func WithLogger(log *zap.SugaredLogger) CreateOption {
	return func(p *Producer) { p.log = log }
}

// Create allocates and initialises a new channel segment and returns
// the Producer that owns it.
func Create(channel string, cfg Config, opts ...CreateOption) (*Producer, error) {
	seg, err := createSegment(channel, cfg)
	if err != nil {
		return nil, err
	}
	p := &Producer{name: channel, seg: seg, log: logging.Noop()}
	for _, opt := range opts {
		opt(p)
	}
	p.log.Infow("channel created", "channel", channel, "ring_capacity", cfg.RingCapacity, "policy", cfg.Policy())
	return p, nil
}

// Name returns the channel name this producer owns.
func (p *Producer) Name() string { return p.name }

// AcquireWrite reserves the next slot for writing, blocking up to
// timeout on ring backpressure or reader drain. A zero timeout uses
// AcquireTimeoutDefault.
func (p *Producer) AcquireWrite(timeout time.Duration) (*WriteHandle, error) {
	if timeout <= 0 {
		timeout = AcquireTimeoutDefault
	}
	ticket, err := coordinator.AcquireWrite(p.name, p.seg.header, p.seg.slots, &p.seg.header.Metrics, timeout)
	if err != nil {
		p.recordError(err)
		return nil, err
	}
	return newWriteHandle(p, p.seg, ticket), nil
}

// Commit finalises n bytes written into h.Payload(), bumping the
// slot's write_generation and publishing commit_index. When the
// segment's checksum policy is Enforced, the slot's checksum is
// recomputed automatically; under Manual policy callers must call
// UpdateChecksumSlot themselves.
func (p *Producer) Commit(h *WriteHandle, n int) error {
	// The checksum always covers the slot's full fixed-size payload
	// buffer, not just the n bytes the caller says are meaningful: the
	// consumer side has no reliable way to learn n before it reads, and
	// hashing the same physical bytes on both sides is what makes the
	// digests comparable at all.
	var updateChecksum func() error
	if p.seg.cfg.ChecksumEnabled() && p.seg.cfg.ChecksumPolicy == layout.ChecksumEnforced {
		updateChecksum = func() error {
			return p.writeChecksum(h.ticket.SlotIndex, h.Payload())
		}
	}
	if err := coordinator.Commit(p.seg.header, h.ticket, &p.seg.header.Metrics, updateChecksum); err != nil {
		p.recordError(err)
		return err
	}
	p.seg.header.Metrics.TotalBytesWritten.Add(uint64(n))
	h.done = true
	return nil
}

// Release abandons a write handle without committing it, returning
// the slot to Free and clearing the write lock.
func (p *Producer) Release(h *WriteHandle) error {
	coordinator.Release(h.ticket)
	h.done = true
	return nil
}

// UpdateChecksumSlot recomputes and stores the checksum for the slot a
// handle is currently writing, for callers running under
// ChecksumManual policy who want integrity coverage on specific slots.
func (p *Producer) UpdateChecksumSlot(h *WriteHandle, payload []byte) error {
	return p.writeChecksum(h.ticket.SlotIndex, payload)
}

func (p *Producer) writeChecksum(slotIndex uint32, payload []byte) error {
	if !p.seg.cfg.ChecksumEnabled() {
		return coreerr.New(coreerr.ValidationFailed, p.name)
	}
	digest := schema.Checksum(payload)
	arr := p.seg.checksumArray()
	off := int(slotIndex) * layout.ChecksumSize
	copy(arr[off:off+32], digest[:])
	arr[off+32] = 1
	return nil
}

// UpdateChecksumFlexibleZone recomputes and stores the checksum of the
// flexible metadata zone, guarded by the header's first user spinlock
// per convention for cross-process mutation of shared metadata.
// Flexible-zone checksums are always manual; there is no automatic
// enforcement path for them.
func (p *Producer) UpdateChecksumFlexibleZone() error {
	full := p.seg.flexZone()
	trailer := flexChecksumTrailer(full, p.seg.cfg.ChecksumEnabled())
	if trailer == nil {
		return coreerr.New(coreerr.InvalidSlot, p.name)
	}

	lock := &p.seg.header.Spinlocks[0]
	acquireSpinlock(lock)
	defer lock.State.Store(0)

	digest := schema.Checksum(flexUserZone(full, true))
	copy(trailer[:32], digest[:])
	trailer[32] = 1
	return nil
}

// SetCounter stores into one of the header's user-addressable 64-bit
// counters.
func (p *Producer) SetCounter(index int, value uint64) error {
	if index < 0 || index >= layout.CounterCapacity {
		return coreerr.New(coreerr.InvalidSlot, p.name)
	}
	p.seg.header.Counters[index].Store(value)
	return nil
}

// GetCounter reads one of the header's user-addressable counters.
func (p *Producer) GetCounter(index int) (uint64, error) {
	if index < 0 || index >= layout.CounterCapacity {
		return 0, coreerr.New(coreerr.InvalidSlot, p.name)
	}
	return p.seg.header.Counters[index].Load(), nil
}

// AcquireSpinlock spins on one of the header's user-addressable
// spinlocks until acquired. There is no timeout: these locks
// are meant to guard sub-microsecond metadata mutations, never slot
// I/O.
func (p *Producer) AcquireSpinlock(index int) error {
	if index < 0 || index >= layout.SpinlockCapacity {
		return coreerr.New(coreerr.InvalidSlot, p.name)
	}
	acquireSpinlock(&p.seg.header.Spinlocks[index])
	return nil
}

// ReleaseSpinlock releases a spinlock acquired with AcquireSpinlock.
func (p *Producer) ReleaseSpinlock(index int) error {
	if index < 0 || index >= layout.SpinlockCapacity {
		return coreerr.New(coreerr.InvalidSlot, p.name)
	}
	p.seg.header.Spinlocks[index].State.Store(0)
	return nil
}

func acquireSpinlock(lock *layout.Spinlock) {
	self := platform.CurrentPID()
	bo := newSpinBackoff()
	for !lock.State.CompareAndSwap(0, self) {
		bo.sleep()
	}
}

// MetricsSnapshot returns a point-in-time copy of this channel's
// in-header metrics block.
func (p *Producer) MetricsSnapshot() metrics.Snapshot {
	return p.seg.header.Metrics.Snapshot()
}

// Close unmaps the segment. It does not unlink the shared-memory
// object; call Unlink for that.
func (p *Producer) Close() error {
	return p.seg.close()
}

// Unlink removes the shared-memory object from the OS namespace.
// Existing mappings (including this producer's own, and any attached
// consumers') remain valid until they Close.
func (p *Producer) Unlink() error {
	return platform.UnlinkSegment(p.name)
}

func (p *Producer) recordError(err error) {
	var code uint64
	if ce, ok := err.(*coreerr.Error); ok {
		code = uint64(ce.Kind)
	}
	p.seg.header.Metrics.SlotAcquireErrors.Add(1)
	p.seg.header.Metrics.RecordError(code, uint64(time.Now().UnixNano()))
}
