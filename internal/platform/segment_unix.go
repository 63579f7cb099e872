//go:build linux || darwin

package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// shmDir is where named segments live on POSIX hosts, matching the
// teacher's use of /dev/shm for the market-data matrix.
const shmDir = "/dev/shm"

// Segment is a mapped, named shared-memory region.
type Segment struct {
	file *os.File
	data []byte
}

// segmentPath returns the backing file path for a channel's segment name.
func segmentPath(name string) string {
	return filepath.Join(shmDir, name)
}

// CreateSegment creates (or truncates) a named segment of exactly size
// bytes, mode 0600, and maps it read-write. The caller owns unlinking it.
func CreateSegment(name string, size int) (*Segment, error) {
	path := segmentPath(name)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("platform: open %s: %w", path, err)
	}

	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("platform: truncate %s to %d: %w", path, size, err)
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("platform: mmap %s: %w", path, err)
	}

	for i := range data {
		data[i] = 0
	}

	return &Segment{file: f, data: data}, nil
}

// AttachSegment opens an existing segment and maps it read-write.
// minSize is the smallest size the caller will trust; on POSIX the
// observed size always matches st_size exactly, but the check is kept
// symmetric with the Windows implementation, which also accepts any
// observed size of at least minSize.
func AttachSegment(name string, minSize int) (*Segment, error) {
	path := segmentPath(name)

	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("platform: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("platform: stat %s: %w", path, err)
	}
	observed := int(info.Size())
	if observed < minSize {
		f.Close()
		return nil, fmt.Errorf("%w: observed %d bytes, want at least %d", ErrSizeMismatch, observed, minSize)
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, observed, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("platform: mmap %s: %w", path, err)
	}

	return &Segment{file: f, data: data}, nil
}

// Unlink removes the named segment's backing file. Existing mappers
// keep their mapping valid per POSIX shared-memory semantics.
func UnlinkSegment(name string) error {
	if err := os.Remove(segmentPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("platform: unlink %s: %w", name, err)
	}
	return nil
}

// Bytes returns the mapped region.
func (s *Segment) Bytes() []byte { return s.data }

// Close unmaps the segment and closes the backing file descriptor.
func (s *Segment) Close() error {
	var err error
	if s.data != nil {
		if mErr := syscall.Munmap(s.data); mErr != nil {
			err = fmt.Errorf("platform: munmap: %w", mErr)
		}
		s.data = nil
	}
	if cErr := s.file.Close(); cErr != nil && err == nil {
		err = fmt.Errorf("platform: close: %w", cErr)
	}
	return err
}
