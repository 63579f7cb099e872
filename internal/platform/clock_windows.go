//go:build windows

package platform

import "golang.org/x/sys/windows"

var perfFreq = func() int64 {
	var freq int64
	windows.QueryPerformanceFrequency(&freq)
	if freq == 0 {
		freq = 1
	}
	return freq
}()

// NowNanos returns a monotonic nanosecond timestamp comparable across
// processes on the same host, backed by QueryPerformanceCounter.
func NowNanos() uint64 {
	var counter int64
	if err := windows.QueryPerformanceCounter(&counter); err != nil {
		return 0
	}
	return uint64(counter) * 1_000_000_000 / uint64(perfFreq)
}
