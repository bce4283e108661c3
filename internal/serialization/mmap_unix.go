//go:build unix

package serialization

import (
	"os"

	"golang.org/x/sys/unix"
)

func mmapFile(f *os.File, size int64) ([]byte, error) {
	return unix.Mmap(
		int(f.Fd()), //nolint:gosec // G115: file descriptor fits in int
		0,
		int(size),
		unix.PROT_READ,
		unix.MAP_SHARED,
	)
}

func munmapFile(data []byte) error {
	return unix.Munmap(data)
}
