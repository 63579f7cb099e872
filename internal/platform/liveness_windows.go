//go:build windows

package platform

import "golang.org/x/sys/windows"

// ProcessAlive reports whether pid still exists, using OpenProcess plus
// GetExitCodeProcess.
func ProcessAlive(pid uint64) bool {
	if pid == 0 {
		return false
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(h, &exitCode); err != nil {
		return false
	}
	return exitCode == uint32(259) // STILL_ACTIVE
}
