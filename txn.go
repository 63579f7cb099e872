package datablock

import "time"

// WithWrite acquires a write handle, runs fn, and commits n bytes on
// success; on error or panic it releases the handle instead, always
// leaving the slot in a clean state. It applies the scoped
// acquire/use/release shape retryable-resource call sites typically
// want to the producer's slot lifecycle.
//
// fn returns the number of payload bytes written; a negative count is
// treated as "nothing written, release instead of commit".
func WithWrite(p *Producer, timeout time.Duration, fn func(h *WriteHandle) (int, error)) (err error) {
	h, err := p.AcquireWrite(timeout)
	if err != nil {
		return err
	}

	released := false
	defer func() {
		if r := recover(); r != nil {
			if !released {
				_ = p.Release(h)
			}
			panic(r)
		}
	}()

	n, ferr := fn(h)
	if ferr != nil || n < 0 {
		released = true
		_ = p.Release(h)
		return ferr
	}

	released = true
	return p.Commit(h, n)
}

// WithRead acquires a read handle for slotID, runs fn, and always
// releases afterward, returning fn's error or (if fn succeeded) any
// error ReleaseRead reports such as a failed checksum.
func WithRead(c *Consumer, slotID uint64, fn func(h *ReadHandle) error) error {
	h, err := c.AcquireConsume(slotID)
	if err != nil {
		return err
	}

	released := false
	defer func() {
		if !released {
			_, _ = c.Release(h)
		}
	}()

	ferr := fn(h)

	released = true
	_, relErr := c.Release(h)
	if ferr != nil {
		return ferr
	}
	return relErr
}
