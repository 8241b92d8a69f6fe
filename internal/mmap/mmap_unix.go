//go:build unix

package mmap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func pageSize() int {
	return unix.Getpagesize()
}

// MapAnon returns a zeroed, readable and writable mapping of at least size
// bytes. The returned slice has length size; its capacity covers the whole
// mapping and must be passed back to Unmap unchanged.
func MapAnon(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mmap: invalid size %d", size)
	}
	data, err := unix.Mmap(-1, 0, RoundSize(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap: map %d bytes: %w", size, err)
	}
	return data[:size], nil
}

// Unmap releases a mapping returned by MapAnon.
func Unmap(data []byte) error {
	if cap(data) == 0 {
		return nil
	}
	if err := unix.Munmap(data[:cap(data)]); err != nil {
		return fmt.Errorf("mmap: unmap: %w", err)
	}
	return nil
}
