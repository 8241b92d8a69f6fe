//go:build !unix

package mmap

func pageSize() int {
	return 4096
}

// MapAnon always fails on this platform.
func MapAnon(size int) ([]byte, error) {
	return nil, ErrUnsupported
}

// Unmap is a no-op on this platform.
func Unmap(data []byte) error {
	return nil
}
