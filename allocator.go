package arena

import (
	"math"
	"sync/atomic"

	"github.com/pavanmanishd/arena/v2/internal/mmap"
	"golang.org/x/sync/semaphore"
)

// BlockAllocator supplies the raw memory arenas carve blocks from.
// AllocBlock returns nil when no memory is available; FreeBlock receives
// exactly the slices AllocBlock handed out.
type BlockAllocator interface {
	AllocBlock(size uint64) []byte
	FreeBlock(mem []byte)
}

// HeapAllocator allocates blocks on the Go heap. The memory is not scanned
// by the garbage collector, so values placed in it must not hold the only
// reference to heap objects.
type HeapAllocator struct{}

func (HeapAllocator) AllocBlock(size uint64) (mem []byte) {
	if size > math.MaxInt {
		return nil
	}
	defer func() {
		if recover() != nil {
			mem = nil
		}
	}()
	return make([]byte, size)
}

func (HeapAllocator) FreeBlock([]byte) {}

// FuncAllocator adapts a pair of functions to BlockAllocator. A nil Free
// is allowed.
type FuncAllocator struct {
	Alloc func(size uint64) []byte
	Free  func(mem []byte)
}

func (f FuncAllocator) AllocBlock(size uint64) []byte {
	return f.Alloc(size)
}

func (f FuncAllocator) FreeBlock(mem []byte) {
	if f.Free != nil {
		f.Free(mem)
	}
}

// MmapAllocator maps every block anonymously, outside the Go heap. Blocks
// are page aligned and zeroed. On platforms without mmap every request
// fails.
type MmapAllocator struct{}

func (MmapAllocator) AllocBlock(size uint64) []byte {
	if size > math.MaxInt {
		return nil
	}
	mem, err := mmap.MapAnon(int(size))
	if err != nil {
		return nil
	}
	return mem
}

func (MmapAllocator) FreeBlock(mem []byte) {
	_ = mmap.Unmap(mem)
}

// BudgetAllocator caps the bytes outstanding across every arena sharing it.
// Requests over budget fail immediately instead of waiting.
// It is safe for concurrent use.
type BudgetAllocator struct {
	sem   *semaphore.Weighted
	next  BlockAllocator
	limit int64
	used  atomic.Int64
}

// NewBudgetAllocator returns an allocator that serves at most limit bytes
// at a time from next. A nil next uses HeapAllocator.
func NewBudgetAllocator(limit int64, next BlockAllocator) *BudgetAllocator {
	if next == nil {
		next = HeapAllocator{}
	}
	return &BudgetAllocator{
		sem:   semaphore.NewWeighted(limit),
		next:  next,
		limit: limit,
	}
}

func (b *BudgetAllocator) AllocBlock(size uint64) []byte {
	if size > uint64(b.limit) {
		return nil
	}
	n := int64(size)
	if !b.sem.TryAcquire(n) {
		return nil
	}
	mem := b.next.AllocBlock(size)
	if mem == nil {
		b.sem.Release(n)
		return nil
	}
	b.used.Add(n)
	return mem
}

func (b *BudgetAllocator) FreeBlock(mem []byte) {
	n := int64(len(mem))
	b.next.FreeBlock(mem)
	b.used.Add(-n)
	b.sem.Release(n)
}

// Used returns the bytes currently handed out.
func (b *BudgetAllocator) Used() int64 { return b.used.Load() }

// Limit returns the budget.
func (b *BudgetAllocator) Limit() int64 { return b.limit }
