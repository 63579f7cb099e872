//go:build linux || darwin

package platform

import "syscall"

// ProcessAlive reports whether pid still exists, via the classic
// kill(pid, 0) liveness probe. It is best-effort: PID reuse by the OS
// can produce a false positive, which is why callers pair it with the
// per-slot write_generation counter rather than trusting it alone.
func ProcessAlive(pid uint64) bool {
	if pid == 0 {
		return false
	}
	err := syscall.Kill(int(pid), 0)
	if err == nil {
		return true
	}
	// EPERM means the process exists but we can't signal it.
	return err == syscall.EPERM
}
