package dense

import (
	"errors"
	"hash/maphash"
	"log/slog"

	"github.com/cespare/xxhash/v2"
	"github.com/pavanmanishd/arena/v2"
)

var (
	// ErrKeyNotFound is returned by At and Index for absent keys.
	ErrKeyNotFound = errors.New("dense: key not found")
	// ErrAllocationFailed is returned when bucket memory cannot be obtained.
	// The table is left as it was.
	ErrAllocationFailed = errors.New("dense: bucket allocation failed")
	// ErrCapacityExceeded is returned when a table would need more than
	// MaxBucketCount buckets.
	ErrCapacityExceeded = errors.New("dense: bucket count exceeds maximum")
	// ErrInvalidLoadFactor is returned by SetMaxLoadFactor for values
	// outside (0, 1].
	ErrInvalidLoadFactor = errors.New("dense: max load factor must be in (0, 1]")
)

type hashMode uint8

const (
	// hashMixed hashes are run through mix before use.
	hashMixed hashMode = iota
	// hashAvalanching hashes are used as they are.
	hashAvalanching
	// hashAvalanching32 hashes only fill the low 32 bits and are widened by
	// multiplication.
	hashAvalanching32
)

// Option configures a Table.
type Option[K comparable, V any] func(*Table[K, V])

// WithHasher sets a hash function whose output may be poorly distributed.
// Every hash is mixed before use.
func WithHasher[K comparable, V any](fn func(K) uint64) Option[K, V] {
	return func(t *Table[K, V]) {
		t.hash, t.mode = fn, hashMixed
	}
}

// WithAvalanchingHasher sets a hash function whose every output bit
// depends on every input bit. Its output is used directly.
func WithAvalanchingHasher[K comparable, V any](fn func(K) uint64) Option[K, V] {
	return func(t *Table[K, V]) {
		t.hash, t.mode = fn, hashAvalanching
	}
}

// WithHasher32 sets an avalanching 32-bit hash function.
func WithHasher32[K comparable, V any](fn func(K) uint32) Option[K, V] {
	return func(t *Table[K, V]) {
		t.hash = func(k K) uint64 { return uint64(fn(k)) }
		t.mode = hashAvalanching32
	}
}

// WithXXHash hashes string keys with xxhash.
func WithXXHash[K ~string, V any]() Option[K, V] {
	return WithAvalanchingHasher[K, V](func(k K) uint64 {
		return xxhash.Sum64String(string(k))
	})
}

// WithKeyEqual replaces == for key comparison. It must agree with the
// hash function.
func WithKeyEqual[K comparable, V any](eq func(a, b K) bool) Option[K, V] {
	return func(t *Table[K, V]) {
		t.eq = eq
	}
}

// WithMaxLoadFactor sets the load factor that triggers growth. Values
// outside (0, 1] are ignored.
func WithMaxLoadFactor[K comparable, V any](f float32) Option[K, V] {
	return func(t *Table[K, V]) {
		if validLoadFactor(f) {
			t.maxLoadFactor = f
		}
	}
}

// WithBucketCount sizes the initial bucket array to the next power of two
// of at least n buckets.
func WithBucketCount[K comparable, V any](n uint64) Option[K, V] {
	return func(t *Table[K, V]) {
		t.shifts = calculateShifts(min(max(n, minBucketCount), MaxBucketCount))
	}
}

// WithAllocator draws bucket arrays from al instead of the Go heap, for
// example from an arena.Arena. The memory is not scanned by the garbage
// collector, so the option is ignored, with a warning, when K or V holds
// pointers.
func WithAllocator[K comparable, V any](al arena.BlockAllocator) Option[K, V] {
	return func(t *Table[K, V]) {
		t.alloc = al
	}
}

// WithLogger sets the logger used for rehash and allocation reports.
func WithLogger[K comparable, V any](l *slog.Logger) Option[K, V] {
	return func(t *Table[K, V]) {
		t.logger = l
	}
}

// StringHasher is the xxhash of s.
func StringHasher(s string) uint64 {
	return xxhash.Sum64String(s)
}

// BytesHasher is the xxhash of b, for keys converted from byte slices.
func BytesHasher(b []byte) uint64 {
	return xxhash.Sum64(b)
}

func validLoadFactor(f float32) bool {
	return f > 0 && f <= 1
}

func defaultHasher[K comparable]() func(K) uint64 {
	seed := maphash.MakeSeed()
	return func(k K) uint64 {
		return maphash.Comparable(seed, k)
	}
}
