// Package align provides the rounding helpers used for arena block sizing
// and bump-pointer alignment.
package align

import "fmt"

// MaxAlignSize is the exclusive upper bound for power-of-two alignments
// accepted by AlignUpTo.
const MaxAlignSize = 64

// IsPow2 reports whether n is a non-zero power of two.
func IsPow2(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

// AlignUpTo rounds n up to the next multiple of N.
// N must be a power of two with 2 < N < MaxAlignSize; any other value is a
// programming error and panics.
func AlignUpTo(n, N uint64) uint64 {
	if N <= 2 || N >= MaxAlignSize || !IsPow2(N) {
		panic(fmt.Sprintf("align: invalid alignment %d", N))
	}
	return (n + N - 1) &^ (N - 1)
}

// AlignUp8 is AlignUpTo(n, 8).
func AlignUp8(n uint64) uint64 {
	return (n + 7) &^ 7
}

// AlignUp rounds n up to a multiple of blockSize, which need not be a power
// of two. A zero blockSize returns n unchanged.
func AlignUp(n, blockSize uint64) uint64 {
	if blockSize == 0 {
		return n
	}
	if r := n % blockSize; r != 0 {
		return n + blockSize - r
	}
	return n
}
