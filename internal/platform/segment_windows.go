//go:build windows

package platform

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Segment is a mapped, named shared-memory region backed by a Windows
// file mapping object rather than a POSIX /dev/shm file. We still back
// it with a regular file so a DataBlock name resolves the same way on
// both platforms (under a fixed directory instead of the page file).
type Segment struct {
	file    *os.File
	mapping windows.Handle
	addr    uintptr
	data    []byte
}

func segmentPath(name string) string {
	dir := os.Getenv("DATABLOCK_WIN_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return dir + `\` + name + ".datablock"
}

func CreateSegment(name string, size int) (*Segment, error) {
	path := segmentPath(name)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("platform: open %s: %w", path, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("platform: truncate %s: %w", path, err)
	}

	return mapFile(f, size)
}

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
	if int(info.Size()) < minSize {
		f.Close()
		return nil, fmt.Errorf("%w: observed %d bytes, want at least %d", ErrSizeMismatch, info.Size(), minSize)
	}

	return mapFile(f, int(info.Size()))
}

func mapFile(f *os.File, size int) (*Segment, error) {
	sizeHigh := uint32(uint64(size) >> 32)
	sizeLow := uint32(uint64(size) & 0xffffffff)

	mapping, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, windows.PAGE_READWRITE, sizeHigh, sizeLow, nil)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("platform: CreateFileMapping: %w", err)
	}

	addr, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(mapping)
		f.Close()
		return nil, fmt.Errorf("platform: MapViewOfFile: %w", err)
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return &Segment{file: f, mapping: mapping, addr: addr, data: data}, nil
}

// UnlinkSegment removes the backing file. Existing mappings stay valid
// until their owning processes unmap and close them.
func UnlinkSegment(name string) error {
	if err := os.Remove(segmentPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("platform: unlink %s: %w", name, err)
	}
	return nil
}

func (s *Segment) Bytes() []byte { return s.data }

func (s *Segment) Close() error {
	var err error
	if s.addr != 0 {
		if uErr := windows.UnmapViewOfFile(s.addr); uErr != nil {
			err = fmt.Errorf("platform: UnmapViewOfFile: %w", uErr)
		}
		s.addr = 0
	}
	if s.mapping != 0 {
		windows.CloseHandle(s.mapping)
		s.mapping = 0
	}
	if cErr := s.file.Close(); cErr != nil && err == nil {
		err = fmt.Errorf("platform: close: %w", cErr)
	}
	return err
}
