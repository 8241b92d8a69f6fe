package dense

import (
	"bytes"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/pavanmanishd/arena/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkRobinHood verifies that every displaced element is preceded by an
// element displaced at least one less, and that the size matches.
func checkRobinHood[K comparable, V any](t *testing.T, tb *Table[K, V]) {
	t.Helper()
	n := uint32(len(tb.buckets))
	size := 0
	for i := uint32(0); i < n; i++ {
		df := tb.buckets[i].distAndFingerprint
		if df == 0 {
			continue
		}
		size++
		if dist := df >> fingerprintBits; dist > 1 {
			prev := tb.buckets[(i+n-1)%n].distAndFingerprint >> fingerprintBits
			require.GreaterOrEqual(t, prev, dist-1, "bucket %d", i)
		}
	}
	require.Equal(t, tb.Len(), size)
}

func TestCalculateShifts(t *testing.T) {
	tests := []struct {
		n    uint64
		want uint8
	}{
		{2, 63},
		{4, 62},
		{5, 61},
		{8, 61},
		{16, 60},
		{17, 59},
		{32, 59},
		{MaxBucketCount, minShifts},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, calculateShifts(tt.n), "n=%d", tt.n)
	}
}

func TestBucketSize(t *testing.T) {
	assert.Equal(t, uintptr(8), NewSet[uint32]().Table().BucketSize())
	assert.Equal(t, uintptr(16), NewSet[uint64]().Table().BucketSize())
	assert.Equal(t, uintptr(16), New[uint64, uint32]().BucketSize())
	assert.Equal(t, uintptr(24), New[uint64, uint64]().BucketSize())
}

func TestGrowth(t *testing.T) {
	tb := New[int, int]()
	assert.Equal(t, uint64(4), tb.BucketCount())
	for i := 1; i <= 3; i++ {
		ok, err := tb.Insert(i, i*10)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, uint64(4), tb.BucketCount())

	_, err := tb.Insert(4, 40)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), tb.BucketCount())
	for i := 1; i <= 4; i++ {
		v, ok := tb.Get(i)
		require.True(t, ok)
		assert.Equal(t, i*10, v)
	}
	checkRobinHood(t, tb)
}

func TestReserveRehash(t *testing.T) {
	tb := New[uint64, uint64]()
	require.NoError(t, tb.Reserve(9))
	assert.Equal(t, uint64(16), tb.BucketCount())

	require.NoError(t, tb.Reserve(1000))
	assert.Equal(t, uint64(2048), tb.BucketCount())

	require.NoError(t, tb.Reserve(10))
	assert.Equal(t, uint64(2048), tb.BucketCount(), "reserve never shrinks")

	for i := uint64(0); i < 5; i++ {
		_, err := tb.Insert(i, i)
		require.NoError(t, err)
	}
	require.NoError(t, tb.Rehash(8))
	assert.Equal(t, uint64(16), tb.BucketCount())
	assert.Equal(t, 5, tb.Len())
	checkRobinHood(t, tb)

	require.NoError(t, tb.Rehash(0))
	assert.Equal(t, uint64(8), tb.BucketCount(), "rehash keeps room for the elements")
}

func TestReserveTooLarge(t *testing.T) {
	tb := New[int, int]()
	assert.ErrorIs(t, tb.Reserve(1<<40), ErrCapacityExceeded)
	assert.Equal(t, uint64(4), tb.BucketCount())
}

func TestMaxSize(t *testing.T) {
	tb := New[int, int]()
	assert.Less(t, tb.MaxSize(), MaxBucketCount)
	assert.Greater(t, tb.MaxSize(), MaxBucketCount/2)
}

func TestRandomAgainstMap(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	tb := New[uint32, int]()
	ref := make(map[uint32]int)
	for i := 0; i < 20000; i++ {
		k := rng.Uint32N(2000)
		switch rng.IntN(3) {
		case 0, 1:
			inserted, err := tb.InsertOrAssign(k, i)
			require.NoError(t, err)
			_, had := ref[k]
			require.Equal(t, !had, inserted)
			ref[k] = i
		case 2:
			_, had := ref[k]
			want := 0
			if had {
				want = 1
			}
			require.Equal(t, want, tb.Erase(k))
			delete(ref, k)
		}
		if i%997 == 0 {
			checkRobinHood(t, tb)
		}
	}
	checkRobinHood(t, tb)
	require.Equal(t, len(ref), tb.Len())
	for k, v := range ref {
		got, ok := tb.Get(k)
		require.True(t, ok, "key %d", k)
		require.Equal(t, v, got)
	}
	for k, v := range tb.All() {
		require.Equal(t, ref[k], v)
	}
}

func TestHashModes(t *testing.T) {
	tests := []struct {
		name string
		opt  Option[uint64, int]
	}{
		{"identity mixed", WithHasher[uint64, int](func(k uint64) uint64 { return k })},
		{"constant mixed", WithHasher[uint64, int](func(uint64) uint64 { return 42 })},
		{"avalanching", WithAvalanchingHasher[uint64, int](func(k uint64) uint64 { return k * 0x9E3779B97F4A7C15 })},
		{"32-bit", WithHasher32[uint64, int](func(k uint64) uint32 { return uint32(k) })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := New(tt.opt)
			for i := uint64(0); i < 300; i++ {
				_, err := tb.Insert(i, int(i))
				require.NoError(t, err)
			}
			checkRobinHood(t, tb)
			for i := uint64(0); i < 300; i += 2 {
				require.Equal(t, 1, tb.Erase(i))
			}
			checkRobinHood(t, tb)
			for i := uint64(0); i < 300; i++ {
				assert.Equal(t, i%2 == 1, tb.Contains(i), "key %d", i)
			}
		})
	}
}

func TestMaxDisplacement(t *testing.T) {
	tb := New(WithHasher[int, int](func(int) uint64 { return 7 }))
	for i := 0; i < 10; i++ {
		_, err := tb.Insert(i, i)
		require.NoError(t, err)
	}
	assert.Equal(t, uint32(9), tb.MaxDisplacement())

	spread := New[int, int]()
	_, err := spread.Insert(1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), spread.MaxDisplacement())
}

func TestKeyEqual(t *testing.T) {
	fold := strings.ToLower
	tb := New(
		WithHasher[string, int](func(s string) uint64 { return StringHasher(fold(s)) }),
		WithKeyEqual[string, int](func(a, b string) bool { return fold(a) == fold(b) }),
	)
	ok, err := tb.Insert("Key", 1)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = tb.Insert("KEY", 2)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := tb.At("key")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.True(t, tb.KeyEqual()("a", "A"))
}

func TestLookups(t *testing.T) {
	tb := New(WithXXHash[string, int]())
	require.NoError(t, tb.Set("a", 1))
	require.NoError(t, tb.Set("b", 2))

	_, err := tb.At("missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	p, err := tb.Index("c")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Nil(t, p)
	assert.Equal(t, 2, tb.Len(), "a failed Index does not insert")
	assert.False(t, tb.Contains("c"))

	p, err = tb.Index("b")
	require.NoError(t, err)
	*p = 3
	v, _ := tb.Get("b")
	assert.Equal(t, 3, v)
	*p = 2

	p, inserted, err := tb.TryEmplace("a", 100)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, 1, *p)

	assert.Equal(t, 1, tb.Count("b"))
	assert.Equal(t, 0, tb.Count("z"))

	first, last := tb.EqualRange("b")
	require.True(t, first.Valid())
	assert.Equal(t, "b", first.Key())
	assert.Equal(t, first.Next(), last)

	first, last = tb.EqualRange("z")
	assert.Equal(t, tb.End(), first)
	assert.Equal(t, tb.End(), last)

	it, inserted, err := tb.Emplace("d", 4)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "d", it.Key())
	assert.Equal(t, 4, it.Value())
	*it.ValuePtr() = 5
	assert.Equal(t, 5, tb.Find("d").Value())
}

func TestEraseIter(t *testing.T) {
	tb := New[int, int]()
	for i := 0; i < 100; i++ {
		_, err := tb.Insert(i, i)
		require.NoError(t, err)
	}
	for it := tb.Begin(); it.Valid(); {
		it = tb.EraseIter(it)
	}
	assert.True(t, tb.Empty())
	assert.Equal(t, tb.End(), tb.Begin())
}

func TestDeleteFunc(t *testing.T) {
	// All keys share a home bucket so the runs wrap around the table.
	tb := New(WithAvalanchingHasher[int, int](func(int) uint64 { return ^uint64(0) }))
	for i := 0; i < 50; i++ {
		_, err := tb.Insert(i, i)
		require.NoError(t, err)
	}
	seen := make(map[int]int)
	n := tb.DeleteFunc(func(k, _ int) bool {
		seen[k]++
		return k%2 == 0
	})
	assert.Equal(t, 25, n)
	assert.Len(t, seen, 50)
	for k, c := range seen {
		assert.Equal(t, 1, c, "key %d", k)
	}
	assert.Equal(t, 25, tb.Len())
	checkRobinHood(t, tb)
	for i := 0; i < 50; i++ {
		assert.Equal(t, i%2 == 1, tb.Contains(i))
	}
}

func TestEraseRange(t *testing.T) {
	tb := New[int, string]()
	for i := 0; i < 20; i++ {
		_, err := tb.Insert(i, strconv.Itoa(i))
		require.NoError(t, err)
	}
	var order []int
	for k := range tb.Keys() {
		order = append(order, k)
	}

	first := tb.Find(order[5])
	last := tb.Find(order[15])
	it := tb.EraseRange(first, last)
	require.True(t, it.Valid())
	assert.Equal(t, order[15], it.Key())
	assert.Equal(t, 10, tb.Len())
	for i, k := range order {
		assert.Equal(t, i < 5 || i >= 15, tb.Contains(k))
	}

	it = tb.EraseRange(tb.Begin(), tb.End())
	assert.Equal(t, tb.End(), it)
	assert.True(t, tb.Empty())
}

func TestExtract(t *testing.T) {
	tb := New[string, int]()
	require.NoError(t, tb.Set("x", 1))
	require.NoError(t, tb.Set("y", 2))

	k, v, ok := tb.Extract("x")
	require.True(t, ok)
	assert.Equal(t, "x", k)
	assert.Equal(t, 1, v)
	_, _, ok = tb.Extract("x")
	assert.False(t, ok)

	k, v = tb.ExtractIter(tb.Begin())
	assert.Equal(t, "y", k)
	assert.Equal(t, 2, v)
	assert.True(t, tb.Empty())
}

func TestMerge(t *testing.T) {
	a := New[int, string]()
	b := New[int, string]()
	require.NoError(t, a.Set(1, "a1"))
	require.NoError(t, a.Set(2, "a2"))
	require.NoError(t, b.Set(2, "b2"))
	require.NoError(t, b.Set(3, "b3"))

	require.NoError(t, a.Merge(b))
	assert.Equal(t, 3, a.Len())
	v, _ := a.Get(2)
	assert.Equal(t, "a2", v)
	v, _ = a.Get(3)
	assert.Equal(t, "b3", v)

	assert.Equal(t, 1, b.Len())
	v, _ = b.Get(2)
	assert.Equal(t, "b2", v)

	require.NoError(t, a.Merge(a))
	assert.Equal(t, 3, a.Len())
}

func TestCloneAndMove(t *testing.T) {
	tb := New[int, int]()
	for i := 0; i < 10; i++ {
		_, err := tb.Insert(i, i)
		require.NoError(t, err)
	}

	c, err := tb.Clone()
	require.NoError(t, err)
	require.NoError(t, c.Set(0, 100))
	v, _ := tb.Get(0)
	assert.Equal(t, 0, v)
	assert.Equal(t, tb.BucketCount(), c.BucketCount())

	m := tb.Move()
	assert.Equal(t, 10, m.Len())
	assert.Equal(t, 0, tb.Len())
	assert.Equal(t, uint64(0), tb.BucketCount())
	assert.False(t, tb.Contains(1))
	assert.Equal(t, tb.End(), tb.Begin())

	_, err = tb.Insert(7, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), tb.BucketCount())
	assert.True(t, m.Contains(7))
}

func TestClear(t *testing.T) {
	tb := New[int, int]()
	require.NoError(t, tb.Reserve(100))
	for i := 0; i < 50; i++ {
		_, err := tb.Insert(i, i)
		require.NoError(t, err)
	}
	buckets := tb.BucketCount()
	tb.Clear()
	assert.True(t, tb.Empty())
	assert.Equal(t, buckets, tb.BucketCount())
	assert.False(t, tb.Contains(3))
}

func TestLoadFactor(t *testing.T) {
	tb := New[int, int]()
	assert.InDelta(t, 0.8, tb.MaxLoadFactor(), 1e-6)
	assert.ErrorIs(t, tb.SetMaxLoadFactor(0), ErrInvalidLoadFactor)
	assert.ErrorIs(t, tb.SetMaxLoadFactor(1.5), ErrInvalidLoadFactor)

	for i := 0; i < 6; i++ {
		_, err := tb.Insert(i, i)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(8), tb.BucketCount())
	assert.InDelta(t, 0.75, tb.LoadFactor(), 1e-6)

	require.NoError(t, tb.SetMaxLoadFactor(0.5))
	assert.Equal(t, uint64(16), tb.BucketCount())
	checkRobinHood(t, tb)

	full := New(WithMaxLoadFactor[int, int](1))
	for i := 0; i < 3; i++ {
		_, err := full.Insert(i, i)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(4), full.BucketCount())
	_, err := full.Insert(3, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), full.BucketCount(), "one bucket stays empty")
}

func TestWithBucketCount(t *testing.T) {
	tb := New(WithBucketCount[int, int](100))
	assert.Equal(t, uint64(128), tb.BucketCount())
	tb = New(WithBucketCount[int, int](0))
	assert.Equal(t, uint64(4), tb.BucketCount())
}

func TestIterators(t *testing.T) {
	tb := New[int, int]()
	for i := 0; i < 10; i++ {
		_, err := tb.Insert(i, i*i)
		require.NoError(t, err)
	}
	keys := slices.Sorted(tb.Keys())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, keys)
	vals := slices.Sorted(tb.Values())
	assert.Equal(t, []int{0, 1, 4, 9, 16, 25, 36, 49, 64, 81}, vals)

	n := 0
	for it := tb.Begin(); it != tb.End(); it = it.Next() {
		assert.Equal(t, it.Key()*it.Key(), it.Value())
		n++
	}
	assert.Equal(t, 10, n)

	n = 0
	for range tb.All() {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestArenaBuckets(t *testing.T) {
	a := arena.NewArena(arena.Options{NormalBlockSize: 4096})
	defer a.Release()

	tb := New(WithAllocator[uint64, uint64](a))
	require.NotNil(t, tb.mem)
	for i := uint64(0); i < 1000; i++ {
		_, err := tb.Insert(i, i*3)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(2048), tb.BucketCount())
	assert.GreaterOrEqual(t, a.SpaceAllocated(), tb.BucketCount()*uint64(tb.BucketSize()))
	checkRobinHood(t, tb)
	for i := uint64(0); i < 1000; i++ {
		v, ok := tb.Get(i)
		require.True(t, ok)
		require.Equal(t, i*3, v)
	}

	c, err := tb.Clone()
	require.NoError(t, err)
	assert.Equal(t, 1000, c.Len())
}

func TestAllocatorRefusedForPointers(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	tb := New(
		WithAllocator[string, int](arena.HeapAllocator{}),
		WithLogger[string, int](logger),
	)
	assert.Nil(t, tb.alloc)
	assert.Contains(t, buf.String(), "ignoring block allocator")

	ok := New(WithAllocator[[4]uint64, struct{ a, b int32 }](arena.HeapAllocator{}))
	assert.NotNil(t, ok.alloc)
}

func TestAllocationFailure(t *testing.T) {
	fail := true
	var freed int
	al := arena.FuncAllocator{
		Alloc: func(size uint64) []byte {
			if fail {
				return nil
			}
			return make([]byte, size)
		},
		Free: func([]byte) { freed++ },
	}
	tb := New(WithAllocator[int, int](al))
	assert.Equal(t, uint64(0), tb.BucketCount())

	_, err := tb.Insert(1, 1)
	assert.ErrorIs(t, err, ErrAllocationFailed)
	assert.True(t, tb.Empty())

	fail = false
	for i := 0; i < 3; i++ {
		_, err = tb.Insert(i, i)
		require.NoError(t, err)
	}

	fail = true
	_, err = tb.Insert(3, 3)
	assert.ErrorIs(t, err, ErrAllocationFailed)
	assert.Equal(t, 3, tb.Len())
	assert.Equal(t, uint64(4), tb.BucketCount())
	assert.True(t, tb.Contains(2))

	tb.Release()
	assert.Equal(t, 1, freed)
	assert.Equal(t, uint64(0), tb.BucketCount())
}
