//go:build !darwin && !linux

package corpus

import (
	"io"
	"os"
)

// mmapFile provides a fallback read-only "mapping" on platforms without a
// POSIX mmap syscall available through golang.org/x/sys/unix. It reads the
// file fully into a heap buffer; callers cannot distinguish this from a true
// mapping since the interface is identical, but it does not benefit from
// shared OS page cache residency the way the POSIX implementation does.
func mmapFile(f *os.File, size int64) (data []byte, release func() error, err error) {
	buffer := make([]byte, size)
	if _, err := io.ReadFull(f, buffer); err != nil {
		return nil, nil, err
	}
	return buffer, func() error { return nil }, nil
}
