package coordinator

import "sync/atomic"

// decrementUint32 subtracts one from a *atomic.Uint32 via two's
// complement addition, the idiomatic substitute for the Sub method
// sync/atomic does not provide for unsigned counters.
func decrementUint32(c *atomic.Uint32) uint32 {
	return c.Add(^uint32(0))
}
