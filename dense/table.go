// Package dense implements an open-addressing hash table with Robin Hood
// probing and backward-shift deletion.
//
// Every bucket stores its key and value inline together with a 32-bit
// word whose upper 24 bits are the distance from the key's home bucket
// plus one and whose lower 8 bits are a fingerprint of the hash. A word of
// zero marks an empty bucket. Lookups compare the word before the key, so
// most probes of a miss end without touching a key at all.
//
// Pointers to values and iterators are invalidated by every insertion and
// erasure. A Table is not safe for concurrent use.
package dense

import (
	"fmt"
	"iter"
	"log/slog"
	"math"
	"math/bits"
	"reflect"
	"unsafe"

	"github.com/pavanmanishd/arena/v2"
)

const (
	fingerprintBits = 8
	distInc         = uint32(1) << fingerprintBits
	fingerprintMask = distInc - 1

	initialShifts  = 64 - 2
	minBucketCount = 4

	// MaxBucketCount bounds the bucket array of a Table.
	MaxBucketCount = uint64(1) << 31
	minShifts      = 64 - 31

	// DefaultMaxLoadFactor is the load factor that triggers growth unless
	// WithMaxLoadFactor says otherwise.
	DefaultMaxLoadFactor float32 = 0.8
)

type bucket[K comparable, V any] struct {
	distAndFingerprint uint32
	value              V
	key                K
}

// Table maps keys of type K to values of type V.
type Table[K comparable, V any] struct {
	buckets []bucket[K, V]
	// mem is the block behind buckets when it came from alloc.
	mem               []byte
	size              uint32
	maxBucketCapacity uint32
	maxLoadFactor     float32
	shifts            uint8

	hash   func(K) uint64
	mode   hashMode
	eq     func(a, b K) bool
	alloc  arena.BlockAllocator
	logger *slog.Logger
}

// New returns a table with four buckets, hashing keys with a per-table
// seeded maphash unless an option supplies another hash function.
func New[K comparable, V any](opts ...Option[K, V]) *Table[K, V] {
	t := &Table[K, V]{
		maxLoadFactor: DefaultMaxLoadFactor,
		shifts:        initialShifts,
	}
	for _, o := range opts {
		o(t)
	}
	if t.logger == nil {
		t.logger = slog.New(slog.DiscardHandler)
	}
	if t.hash == nil {
		t.hash, t.mode = defaultHasher[K](), hashAvalanching
	}
	if t.alloc != nil && (arena.HoldsPointers[K]() || arena.HoldsPointers[V]()) {
		t.logger.Warn("dense: ignoring block allocator for pointer-holding buckets",
			slog.String("key", reflect.TypeFor[K]().String()),
			slog.String("value", reflect.TypeFor[V]().String()))
		t.alloc = nil
	}
	// A failed first allocation leaves zero buckets; the first insertion
	// retries.
	_ = t.rehashTo(t.shifts)
	return t
}

// mix folds the 128-bit product of h and the golden ratio.
func mix(h uint64) uint64 {
	hi, lo := bits.Mul64(h, 0x9E3779B97F4A7C15)
	return hi ^ lo
}

func (t *Table[K, V]) wellHash(key K) uint64 {
	h := t.hash(key)
	switch t.mode {
	case hashAvalanching:
		return h
	case hashAvalanching32:
		return uint64(uint32(h)) * 0x9ddfea08eb382d69
	default:
		return mix(h)
	}
}

func distAndFingerprintFromHash(h uint64) uint32 {
	return distInc | (uint32(h) & fingerprintMask)
}

func (t *Table[K, V]) bucketIdxFromHash(h uint64) uint32 {
	return uint32(h >> t.shifts)
}

func (t *Table[K, V]) next(idx uint32) uint32 {
	idx++
	if idx == uint32(len(t.buckets)) {
		return 0
	}
	return idx
}

func (t *Table[K, V]) equal(a, b K) bool {
	if t.eq != nil {
		return t.eq(a, b)
	}
	return a == b
}

// calculateShifts returns the shift that yields at least n buckets.
// n must be at least 2.
func calculateShifts(n uint64) uint8 {
	return uint8(64 - bits.Len64(n-1))
}

func (t *Table[K, V]) capacityFor(buckets uint64) uint32 {
	c := uint64(float64(buckets) * float64(t.maxLoadFactor))
	// One bucket always stays empty so that probing and backward shifting
	// terminate.
	return uint32(min(c, buckets-1))
}

// shiftsFor returns the shift of the smallest bucket array able to hold n
// elements.
func (t *Table[K, V]) shiftsFor(n uint64) (uint8, error) {
	want := math.Ceil(float64(n) / float64(t.maxLoadFactor))
	if want > float64(MaxBucketCount) {
		return 0, fmt.Errorf("%w: %d elements", ErrCapacityExceeded, n)
	}
	shifts := calculateShifts(max(uint64(want), minBucketCount))
	for uint64(t.capacityFor(uint64(1)<<(64-shifts))) < n {
		if shifts <= minShifts {
			return 0, fmt.Errorf("%w: %d elements", ErrCapacityExceeded, n)
		}
		shifts--
	}
	return shifts, nil
}

func (t *Table[K, V]) allocBuckets(n uint64) (b []bucket[K, V], mem []byte, err error) {
	if t.alloc == nil {
		defer func() {
			if r := recover(); r != nil {
				b, mem, err = nil, nil, ErrAllocationFailed
			}
		}()
		return make([]bucket[K, V], n), nil, nil
	}
	var zero bucket[K, V]
	sz := uint64(unsafe.Sizeof(zero))
	mem = t.alloc.AllocBlock(n * sz)
	if mem == nil {
		return nil, nil, ErrAllocationFailed
	}
	p := unsafe.Pointer(unsafe.SliceData(mem))
	if uint64(len(mem)) < n*sz || uintptr(p)%unsafe.Alignof(zero) != 0 {
		t.alloc.FreeBlock(mem)
		return nil, nil, ErrAllocationFailed
	}
	clear(mem[:n*sz])
	return unsafe.Slice((*bucket[K, V])(p), n), mem, nil
}

func (t *Table[K, V]) freeBuckets(mem []byte) {
	if mem != nil && t.alloc != nil {
		t.alloc.FreeBlock(mem)
	}
}

// rehashTo replaces the bucket array with one of 1<<(64-shifts) buckets and
// reinserts every element. On failure the table is unchanged.
func (t *Table[K, V]) rehashTo(shifts uint8) error {
	n := uint64(1) << (64 - shifts)
	nb, mem, err := t.allocBuckets(n)
	if err != nil {
		t.logger.Debug("dense: bucket allocation failed",
			slog.Uint64("buckets", n), slog.Uint64("size", uint64(t.size)))
		return err
	}
	old, oldMem := t.buckets, t.mem
	t.buckets, t.mem, t.shifts = nb, mem, shifts
	t.maxBucketCapacity = t.capacityFor(n)
	for i := range old {
		if old[i].distAndFingerprint == 0 {
			continue
		}
		h := t.wellHash(old[i].key)
		df, idx := t.nextWhileLess(h)
		old[i].distAndFingerprint = df
		t.placeAndShiftUp(old[i], idx)
	}
	t.freeBuckets(oldMem)
	if len(old) > 0 {
		t.logger.Debug("dense: rehash",
			slog.Int("from", len(old)), slog.Uint64("to", n), slog.Uint64("size", uint64(t.size)))
	}
	return nil
}

func (t *Table[K, V]) grow() error {
	for t.size >= t.maxBucketCapacity {
		if t.shifts <= minShifts {
			return fmt.Errorf("%w: %d buckets", ErrCapacityExceeded, len(t.buckets))
		}
		if err := t.rehashTo(t.shifts - 1); err != nil {
			return err
		}
	}
	return nil
}

// nextWhileLess walks from the home bucket of h past every bucket that sits
// further from its own home than h would. The walk stops where h belongs.
func (t *Table[K, V]) nextWhileLess(h uint64) (uint32, uint32) {
	df := distAndFingerprintFromHash(h)
	idx := t.bucketIdxFromHash(h)
	for df < t.buckets[idx].distAndFingerprint {
		df += distInc
		idx = t.next(idx)
	}
	return df, idx
}

// placeAndShiftUp stores b at idx, pushing the run of occupied buckets that
// starts there one step further from home. It returns idx.
func (t *Table[K, V]) placeAndShiftUp(b bucket[K, V], idx uint32) uint32 {
	at := idx
	for t.buckets[idx].distAndFingerprint != 0 {
		b, t.buckets[idx] = t.buckets[idx], b
		b.distAndFingerprint += distInc
		idx = t.next(idx)
	}
	t.buckets[idx] = b
	return at
}

func (t *Table[K, V]) find(key K) (uint32, bool) {
	if t.size == 0 {
		return 0, false
	}
	h := t.wellHash(key)
	df := distAndFingerprintFromHash(h)
	idx := t.bucketIdxFromHash(h)

	// The first two probes hit most keys.
	b := &t.buckets[idx]
	if df == b.distAndFingerprint && t.equal(key, b.key) {
		return idx, true
	}
	df += distInc
	idx = t.next(idx)
	b = &t.buckets[idx]
	if df == b.distAndFingerprint && t.equal(key, b.key) {
		return idx, true
	}
	df += distInc
	idx = t.next(idx)

	for {
		b = &t.buckets[idx]
		if df == b.distAndFingerprint {
			if t.equal(key, b.key) {
				return idx, true
			}
		} else if df > b.distAndFingerprint {
			return 0, false
		}
		df += distInc
		idx = t.next(idx)
	}
}

// eraseAt empties idx and shifts the following displaced buckets one step
// back towards home.
func (t *Table[K, V]) eraseAt(idx uint32) {
	next := t.next(idx)
	for t.buckets[next].distAndFingerprint >= 2*distInc {
		t.buckets[idx] = t.buckets[next]
		t.buckets[idx].distAndFingerprint -= distInc
		idx = next
		next = t.next(next)
	}
	t.buckets[idx] = bucket[K, V]{}
	t.size--
}

func (t *Table[K, V]) tryEmplace(key K, value V) (uint32, bool, error) {
	if len(t.buckets) == 0 {
		if err := t.rehashTo(t.shifts); err != nil {
			return 0, false, err
		}
	}
	h := t.wellHash(key)
	df := distAndFingerprintFromHash(h)
	idx := t.bucketIdxFromHash(h)
	for df <= t.buckets[idx].distAndFingerprint {
		if df == t.buckets[idx].distAndFingerprint && t.equal(key, t.buckets[idx].key) {
			return idx, false, nil
		}
		df += distInc
		idx = t.next(idx)
	}

	if t.size >= t.maxBucketCapacity {
		if err := t.grow(); err != nil {
			return 0, false, err
		}
		df, idx = t.nextWhileLess(h)
	}
	idx = t.placeAndShiftUp(bucket[K, V]{distAndFingerprint: df, key: key, value: value}, idx)
	t.size++
	return idx, true, nil
}

// TryEmplace inserts key with value unless key is present. It returns a
// pointer to the stored value and whether an insertion happened. An
// existing value is left untouched.
func (t *Table[K, V]) TryEmplace(key K, value V) (*V, bool, error) {
	idx, ok, err := t.tryEmplace(key, value)
	if err != nil {
		return nil, false, err
	}
	return &t.buckets[idx].value, ok, nil
}

// Insert adds key with value unless key is present and reports whether it
// did.
func (t *Table[K, V]) Insert(key K, value V) (bool, error) {
	_, ok, err := t.TryEmplace(key, value)
	return ok, err
}

// Emplace is Insert returning an iterator to the element.
func (t *Table[K, V]) Emplace(key K, value V) (Iterator[K, V], bool, error) {
	idx, ok, err := t.tryEmplace(key, value)
	if err != nil {
		return t.End(), false, err
	}
	return Iterator[K, V]{t: t, idx: idx}, ok, nil
}

// InsertOrAssign stores value under key, overwriting any existing value,
// and reports whether key was new.
func (t *Table[K, V]) InsertOrAssign(key K, value V) (bool, error) {
	p, ok, err := t.TryEmplace(key, value)
	if err != nil {
		return false, err
	}
	if !ok {
		*p = value
	}
	return ok, nil
}

// Set stores value under key.
func (t *Table[K, V]) Set(key K, value V) error {
	_, err := t.InsertOrAssign(key, value)
	return err
}

// Get returns the value stored under key.
func (t *Table[K, V]) Get(key K) (V, bool) {
	if idx, ok := t.find(key); ok {
		return t.buckets[idx].value, true
	}
	var zero V
	return zero, false
}

// Index returns a pointer to the value under key for in-place updates, or
// ErrKeyNotFound. It never inserts.
func (t *Table[K, V]) Index(key K) (*V, error) {
	if idx, ok := t.find(key); ok {
		return &t.buckets[idx].value, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrKeyNotFound, key)
}

// At returns the value under key or ErrKeyNotFound.
func (t *Table[K, V]) At(key K) (V, error) {
	if idx, ok := t.find(key); ok {
		return t.buckets[idx].value, nil
	}
	var zero V
	return zero, fmt.Errorf("%w: %v", ErrKeyNotFound, key)
}

// Find returns an iterator to key, or End.
func (t *Table[K, V]) Find(key K) Iterator[K, V] {
	if idx, ok := t.find(key); ok {
		return Iterator[K, V]{t: t, idx: idx}
	}
	return t.End()
}

// EqualRange returns the range of elements matching key: one element or
// none.
func (t *Table[K, V]) EqualRange(key K) (Iterator[K, V], Iterator[K, V]) {
	it := t.Find(key)
	if !it.Valid() {
		return it, it
	}
	return it, it.Next()
}

// Contains reports whether key is present.
func (t *Table[K, V]) Contains(key K) bool {
	_, ok := t.find(key)
	return ok
}

// Count returns 1 if key is present and 0 otherwise.
func (t *Table[K, V]) Count(key K) int {
	if t.Contains(key) {
		return 1
	}
	return 0
}

// Erase removes key and returns the number of elements removed.
func (t *Table[K, V]) Erase(key K) int {
	idx, ok := t.find(key)
	if !ok {
		return 0
	}
	t.eraseAt(idx)
	return 1
}

// Extract removes key and returns its key and value.
func (t *Table[K, V]) Extract(key K) (K, V, bool) {
	idx, ok := t.find(key)
	if !ok {
		var k K
		var v V
		return k, v, false
	}
	b := t.buckets[idx]
	t.eraseAt(idx)
	return b.key, b.value, true
}

// Merge moves every element of other whose key is absent from t into t.
// Elements with keys already in t stay in other.
func (t *Table[K, V]) Merge(other *Table[K, V]) error {
	if other == nil || other == t || other.size == 0 {
		return nil
	}
	var moved []K
	var err error
	for i := range other.buckets {
		b := &other.buckets[i]
		if b.distAndFingerprint == 0 {
			continue
		}
		var ok bool
		if ok, err = t.Insert(b.key, b.value); err != nil {
			break
		}
		if ok {
			moved = append(moved, b.key)
		}
	}
	for _, k := range moved {
		other.Erase(k)
	}
	return err
}

// Clear removes every element and keeps the bucket array.
func (t *Table[K, V]) Clear() {
	clear(t.buckets)
	t.size = 0
}

// Reserve makes room for n elements without further growth. It never
// shrinks the table.
func (t *Table[K, V]) Reserve(n uint64) error {
	shifts, err := t.shiftsFor(n)
	if err != nil {
		return err
	}
	if len(t.buckets) == 0 || shifts < t.shifts {
		return t.rehashTo(min(shifts, t.shifts))
	}
	return nil
}

// Rehash resizes the bucket array to fit max(n, Len()) elements, shrinking
// it when possible.
func (t *Table[K, V]) Rehash(n uint64) error {
	shifts, err := t.shiftsFor(max(n, uint64(t.size)))
	if err != nil {
		return err
	}
	if len(t.buckets) != 0 && shifts == t.shifts {
		return nil
	}
	return t.rehashTo(shifts)
}

// Clone returns a deep copy of t sharing its hash function, key equality,
// allocator and logger.
func (t *Table[K, V]) Clone() (*Table[K, V], error) {
	c := *t
	c.buckets, c.mem = nil, nil
	if len(t.buckets) == 0 {
		return &c, nil
	}
	nb, mem, err := c.allocBuckets(uint64(len(t.buckets)))
	if err != nil {
		return nil, err
	}
	copy(nb, t.buckets)
	c.buckets, c.mem = nb, mem
	return &c, nil
}

// Move transfers the contents of t into a new table and leaves t empty
// with no buckets. t allocates again on its next insertion.
func (t *Table[K, V]) Move() *Table[K, V] {
	m := *t
	t.buckets, t.mem = nil, nil
	t.size, t.maxBucketCapacity = 0, 0
	t.shifts = initialShifts
	return &m
}

// Release returns the bucket array to its allocator. The table is left as
// Move leaves it.
func (t *Table[K, V]) Release() {
	t.freeBuckets(t.mem)
	t.buckets, t.mem = nil, nil
	t.size, t.maxBucketCapacity = 0, 0
	t.shifts = initialShifts
}

// Len returns the number of elements.
func (t *Table[K, V]) Len() int { return int(t.size) }

// Empty reports whether the table has no elements.
func (t *Table[K, V]) Empty() bool { return t.size == 0 }

// BucketCount returns the length of the bucket array.
func (t *Table[K, V]) BucketCount() uint64 { return uint64(len(t.buckets)) }

// MaxSize returns the largest number of elements a table can hold.
func (t *Table[K, V]) MaxSize() uint64 { return uint64(t.capacityFor(MaxBucketCount)) }

// BucketSize returns the size in bytes of one bucket.
func (t *Table[K, V]) BucketSize() uintptr { return unsafe.Sizeof(bucket[K, V]{}) }

// LoadFactor returns Len()/BucketCount(), or 0 without buckets.
func (t *Table[K, V]) LoadFactor() float32 {
	if len(t.buckets) == 0 {
		return 0
	}
	return float32(t.size) / float32(len(t.buckets))
}

// MaxLoadFactor returns the load factor that triggers growth.
func (t *Table[K, V]) MaxLoadFactor() float32 { return t.maxLoadFactor }

// SetMaxLoadFactor changes the load factor that triggers growth. The
// table grows immediately if it is already above the new limit.
func (t *Table[K, V]) SetMaxLoadFactor(f float32) error {
	if !validLoadFactor(f) {
		return fmt.Errorf("%w: %v", ErrInvalidLoadFactor, f)
	}
	t.maxLoadFactor = f
	if len(t.buckets) == 0 {
		return nil
	}
	t.maxBucketCapacity = t.capacityFor(uint64(len(t.buckets)))
	if t.size > t.maxBucketCapacity {
		return t.grow()
	}
	return nil
}

// Hasher returns the hash function keys are hashed with before mixing.
func (t *Table[K, V]) Hasher() func(K) uint64 { return t.hash }

// KeyEqual returns the function keys are compared with.
func (t *Table[K, V]) KeyEqual() func(a, b K) bool {
	if t.eq != nil {
		return t.eq
	}
	return func(a, b K) bool { return a == b }
}

// MaxDisplacement returns the longest distance of any element from its
// home bucket.
func (t *Table[K, V]) MaxDisplacement() uint32 {
	var d uint32
	for i := range t.buckets {
		if df := t.buckets[i].distAndFingerprint; df != 0 {
			d = max(d, (df>>fingerprintBits)-1)
		}
	}
	return d
}

// All yields every element in bucket order.
func (t *Table[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i := range t.buckets {
			b := &t.buckets[i]
			if b.distAndFingerprint != 0 && !yield(b.key, b.value) {
				return
			}
		}
	}
}

// Keys yields every key in bucket order.
func (t *Table[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range t.All() {
			if !yield(k) {
				return
			}
		}
	}
}

// Values yields every value in bucket order.
func (t *Table[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, v := range t.All() {
			if !yield(v) {
				return
			}
		}
	}
}
