package platform

import "os"

// CurrentPID returns the calling process id as the 64-bit identifier
// stored in write_lock and heartbeat slots.
func CurrentPID() uint64 {
	return uint64(os.Getpid())
}
