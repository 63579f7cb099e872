package layout

import (
	"errors"
	"time"

	"github.com/AlephTX/datablock/internal/platform"
)

// ErrMutexCorrupt is returned by Lock when an abandoned mutex's
// protected fields fail the caller-supplied validation: the segment is
// declared corrupt and the operation fails.
var ErrMutexCorrupt = errors.New("layout: robust mutex abandoned and validation failed")

const mutexSpin = 200 * time.Microsecond

// Lock acquires the robust mutex, spinning with a short fixed backoff.
// If the current holder is found dead, Lock recovers the mutex the way
// a robust pthread_mutex_t recovers from EOWNERDEAD: it calls validate
// to check the fields the mutex protects are still consistent before
// taking ownership. A nil validate always accepts recovery.
func (m *RobustMutexState) Lock(validate func() bool) error {
	self := platform.CurrentPID()
	for {
		if m.Holder.CompareAndSwap(0, self) {
			return nil
		}

		holder := m.Holder.Load()
		if holder != 0 && !platform.ProcessAlive(holder) {
			// Candidate abandonment: mark it, then race to claim.
			m.Abandoned.Store(1)
			if m.Holder.CompareAndSwap(holder, self) {
				if validate != nil && !validate() {
					// Leave the mutex held by us but flagged corrupt;
					// the caller must treat the segment as unusable.
					return ErrMutexCorrupt
				}
				m.Abandoned.Store(0)
				m.Generation.Add(1)
				return nil
			}
		}

		time.Sleep(mutexSpin)
	}
}

// Unlock releases the mutex. The caller must be the current holder.
func (m *RobustMutexState) Unlock() {
	m.Holder.Store(0)
}
