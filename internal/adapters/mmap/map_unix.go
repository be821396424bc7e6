//go:build unix

package mmap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapFile maps size bytes of f read-only. The returned func unmaps it.
func mapFile(f *os.File, size int64) ([]byte, func(), error) {
	if size != int64(int(size)) {
		return nil, nil, fmt.Errorf("mmap %s: file too large (%d bytes)", f.Name(), size)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap %s: %w", f.Name(), err)
	}
	return data, func() { _ = unix.Munmap(data) }, nil
}
