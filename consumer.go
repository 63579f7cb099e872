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

// Consumer is one reader's attachment to a channel's segment. Many
// consumers may attach to the same channel concurrently; each tracks
// its own heartbeat slot and iterator position independently.
type Consumer struct {
	name          string
	seg           *segment
	log           *zap.SugaredLogger
	id            uint64
	heartbeatSlot int // -1 when no slot was available at attach time
}

// AttachOption configures Attach.
type AttachOption func(*attachOptions)

type attachOptions struct {
	schemaHash  *[32]byte
	initTimeout time.Duration
	logger      *zap.SugaredLogger
}

// WithExpectedSchemaHash makes Attach fail with SchemaMismatch unless
// the segment's stored schema_hash matches exactly.
func WithExpectedSchemaHash(hash [32]byte) AttachOption {
	return func(o *attachOptions) { o.schemaHash = &hash }
}

// WithInitTimeout overrides InitTimeoutDefault.
func WithInitTimeout(d time.Duration) AttachOption {
	return func(o *attachOptions) { o.initTimeout = d }
}

// WithConsumerLogger overrides the default no-op logger.
func WithConsumerLogger(log *zap.SugaredLogger) AttachOption {
	return func(o *attachOptions) { o.logger = log }
}

// Attach opens an existing channel segment, validating its identity,
// and registers a heartbeat slot for this consumer if one is free.
func Attach(channel string, secret [16]byte, opts ...AttachOption) (*Consumer, error) {
	o := attachOptions{initTimeout: InitTimeoutDefault, logger: logging.Noop()}
	for _, opt := range opts {
		opt(&o)
	}

	seg, err := attachSegment(channel, secret, o.schemaHash, o.initTimeout)
	if err != nil {
		return nil, err
	}

	c := &Consumer{
		name:          channel,
		seg:           seg,
		log:           o.logger,
		id:            platform.CurrentPID()<<32 | uint64(time.Now().UnixNano()&0xffffffff),
		heartbeatSlot: -1,
	}

	// active_consumer_count is incremented unconditionally; registering
	// a heartbeat slot is best-effort and may fail once HeartbeatCapacity
	// consumers are already attached.
	c.seg.header.ActiveConsumerCount.Add(1)
	c.registerHeartbeat()
	c.log.Infow("attached to channel", "channel", channel)
	return c, nil
}

func (c *Consumer) registerHeartbeat() {
	for i := range c.seg.header.Heartbeats {
		slot := &c.seg.header.Heartbeats[i]
		if slot.ConsumerID.CompareAndSwap(0, c.id) {
			slot.LastHeartbeatNs.Store(uint64(time.Now().UnixNano()))
			slot.Position.Store(0)
			c.heartbeatSlot = i
			c.seg.header.RecomputeReadIndex()
			return
		}
	}
	c.log.Warnw("no free heartbeat slot", "channel", c.name)
}

// publishPosition records that this consumer has fully consumed
// through slotID and recomputes the segment's read_index as the
// minimum low-watermark across every attached consumer. Consumers
// with no heartbeat slot cannot publish and so never hold back the
// ring via this mechanism.
func (c *Consumer) publishPosition(slotID uint64) {
	if c.heartbeatSlot < 0 {
		return
	}
	c.seg.header.Heartbeats[c.heartbeatSlot].Position.Store(slotID + 1)
	c.seg.header.RecomputeReadIndex()
}

// UpdateHeartbeat refreshes this consumer's last-seen timestamp.
// Consumers that attached when no slot was free silently no-op; they
// are invisible to CleanupDeadConsumers but otherwise fully functional.
func (c *Consumer) UpdateHeartbeat() {
	if c.heartbeatSlot < 0 {
		return
	}
	c.seg.header.Heartbeats[c.heartbeatSlot].LastHeartbeatNs.Store(uint64(time.Now().UnixNano()))
	c.seg.header.Metrics.HeartbeatsSent.Add(1)
}

// SlotIterator returns a fresh iterator over this consumer's view of
// the channel, starting at slot_id 0. If the ring has already wrapped
// past slot 0, the first TryNext reports the gap and moves the
// iterator to the oldest slot still in the ring.
func (c *Consumer) SlotIterator() *Iterator {
	return &Iterator{c: c, lastSeen: 0, started: false}
}

// AcquireConsume runs the reader acquisition protocol for a
// specific slot_id. Most callers should use an Iterator instead; this
// is exposed directly for replay/random-access use cases.
func (c *Consumer) AcquireConsume(slotID uint64) (*ReadHandle, error) {
	ticket, err := coordinator.AcquireRead(c.name, c.seg.header, c.seg.slots, slotID, &c.seg.header.Metrics)
	if err != nil {
		return nil, err
	}
	return newReadHandle(c, c.seg, ticket), nil
}

// Release ends a read, reporting whether the data may have been
// raced by a concurrent writer reclaim and, under ChecksumEnforced
// policy, whether the slot's checksum verified.
func (c *Consumer) Release(h *ReadHandle) (coordinator.ReleaseResult, error) {
	h.done = true
	return c.releaseTicket(h.ticket)
}

func (c *Consumer) releaseTicket(ticket *coordinator.ReadTicket) (coordinator.ReleaseResult, error) {
	var verify func() bool
	if c.seg.cfg.ChecksumPolicy == layout.ChecksumEnforced && c.seg.cfg.ChecksumEnabled() {
		verify = func() bool {
			return c.VerifyChecksumSlot(ticket.SlotIndex)
		}
	}
	result, err := coordinator.ReleaseRead(ticket, c.seg.cfg.ChecksumPolicy, verify, &c.seg.header.Metrics)
	c.seg.header.Metrics.TotalSlotsRead.Add(1)
	return result, err
}

// VerifyChecksumSlot recomputes the checksum over a slot's current
// payload and compares it against the stored digest. It returns false
// (not an error) when checksums are disabled or the stored entry was
// never marked valid, since "no checksum available" is a valid steady
// state under ChecksumManual policy.
func (c *Consumer) VerifyChecksumSlot(slotIndex uint32) bool {
	if !c.seg.cfg.ChecksumEnabled() {
		return false
	}
	arr := c.seg.checksumArray()
	off := int(slotIndex) * layout.ChecksumSize
	if arr[off+32] == 0 {
		return false
	}
	want := arr[off : off+32]
	got := schema.Checksum(c.seg.slotPayload(slotIndex))
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// GetCounter reads one of the header's user-addressable counters.
func (c *Consumer) GetCounter(index int) (uint64, error) {
	if index < 0 || index >= layout.CounterCapacity {
		return 0, coreerr.New(coreerr.InvalidSlot, c.name)
	}
	return c.seg.header.Counters[index].Load(), nil
}

// AcquireSpinlock and ReleaseSpinlock mirror Producer's, since either
// side of a channel may need to guard flexible-zone metadata.
func (c *Consumer) AcquireSpinlock(index int) error {
	if index < 0 || index >= layout.SpinlockCapacity {
		return coreerr.New(coreerr.InvalidSlot, c.name)
	}
	acquireSpinlock(&c.seg.header.Spinlocks[index])
	return nil
}

func (c *Consumer) ReleaseSpinlock(index int) error {
	if index < 0 || index >= layout.SpinlockCapacity {
		return coreerr.New(coreerr.InvalidSlot, c.name)
	}
	c.seg.header.Spinlocks[index].State.Store(0)
	return nil
}

// FlexZone returns the read-only view of the flexible metadata zone,
// excluding the trailing checksum bytes when checksums are enabled.
func (c *Consumer) FlexZone() []byte {
	return flexUserZone(c.seg.flexZone(), c.seg.cfg.ChecksumEnabled())
}

// VerifyChecksumFlexibleZone recomputes the flexible zone's checksum
// and compares it against the stored digest. Like VerifyChecksumSlot,
// it returns false rather than erroring when no checksum was ever
// written.
func (c *Consumer) VerifyChecksumFlexibleZone() bool {
	full := c.seg.flexZone()
	trailer := flexChecksumTrailer(full, c.seg.cfg.ChecksumEnabled())
	if trailer == nil || trailer[32] == 0 {
		return false
	}
	got := schema.Checksum(flexUserZone(full, true))
	for i := range got {
		if got[i] != trailer[i] {
			return false
		}
	}
	return true
}

// MetricsSnapshot returns a point-in-time copy of this channel's
// in-header metrics block.
func (c *Consumer) MetricsSnapshot() metrics.Snapshot {
	return c.seg.header.Metrics.Snapshot()
}

// Close unmaps the segment and, if a heartbeat slot was held,
// releases it so CleanupDeadConsumers never has to reap a consumer
// that exited cleanly.
func (c *Consumer) Close() error {
	if c.heartbeatSlot >= 0 {
		slot := &c.seg.header.Heartbeats[c.heartbeatSlot]
		if slot.ConsumerID.CompareAndSwap(c.id, 0) {
			slot.LastHeartbeatNs.Store(0)
			slot.Position.Store(0)
			c.seg.header.RecomputeReadIndex()
		}
	}
	// active_consumer_count is incremented unconditionally in Attach, so
	// it must come back down unconditionally here too, independent of
	// whether this consumer ever held a heartbeat slot.
	decrementActiveConsumers(c.seg.header)
	return c.seg.close()
}

func decrementActiveConsumers(h *layout.Header) {
	for {
		v := h.ActiveConsumerCount.Load()
		if v == 0 {
			return
		}
		if h.ActiveConsumerCount.CompareAndSwap(v, v-1) {
			return
		}
	}
}
