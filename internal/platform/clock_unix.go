//go:build linux || darwin

package platform

import "golang.org/x/sys/unix"

// NowNanos returns a monotonic nanosecond timestamp comparable across
// processes on the same host (CLOCK_MONOTONIC).
func NowNanos() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint64(ts.Sec)*1e9 + uint64(ts.Nsec)
}
