// Package mmap hands out anonymous private memory mappings for arena blocks
// that live outside the Go heap.
package mmap

import "errors"

// ErrUnsupported is returned on platforms without anonymous mappings.
var ErrUnsupported = errors.New("mmap: anonymous mappings not supported on this platform")

// PageSize is the granularity mappings are rounded to.
var PageSize = pageSize()

// RoundSize rounds n up to a whole number of pages.
func RoundSize(n int) int {
	ps := PageSize
	return (n + ps - 1) / ps * ps
}
