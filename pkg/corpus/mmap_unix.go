//go:build darwin || linux

// Package corpus implements the memory-mapped corpus cache: the set of
// per-file page mappings a tenant's registered root directory produces, kept
// resident for the lifetime of the tenant.
package corpus

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps the entirety of f (whose size must already be known to be
// size bytes) into memory for read-only access. The returned release
// function must be called exactly once to unmap the region; f may be closed
// by the caller immediately after mmapFile returns, since the mapping does
// not retain a reference to the open file descriptor.
func mmapFile(f *os.File, size int64) (data []byte, release func() error, err error) {
	data, err = unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	return data, func() error {
		return unix.Munmap(data)
	}, nil
}
