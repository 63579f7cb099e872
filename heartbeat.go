package datablock

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// RunHeartbeatLoop calls UpdateHeartbeat on interval until ctx is
// cancelled, the way a long-lived consumer process keeps its
// heartbeat slot fresh without hand-rolling the goroutine/ticker
// bookkeeping at every call site.
func (c *Consumer) RunHeartbeatLoop(ctx context.Context, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				c.UpdateHeartbeat()
			}
		}
	})
	return g.Wait()
}
