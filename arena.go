package arena

import (
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"unsafe"

	"github.com/pavanmanishd/arena/v2/align"
)

// Arena is a region allocator. Memory is bump-allocated from a chain of
// blocks and reclaimed all at once by Reset or Release. Not goroutine-safe;
// use SafeArena for concurrent access.
type Arena struct {
	options        Options
	lastBlock      *Block
	cookie         any
	spaceAllocated uint64
	released       bool
}

// NewArena creates an arena. No memory is obtained until the first
// allocation.
func NewArena(opts Options) *Arena {
	return newArena(opts, 2)
}

func newArena(opts Options, skip int) *Arena {
	a := &Arena{options: opts.normalize()}
	if h := a.options.Hooks.OnArenaInit; h != nil {
		a.cookie = h(a, callerLocation(skip+1))
	}
	return a
}

func callerLocation(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// Options returns the normalised options the arena runs with.
func (a *Arena) Options() Options { return a.options }

// Cookie returns the value OnArenaInit produced.
func (a *Arena) Cookie() any { return a.cookie }

// LastBlock returns the block allocations are currently served from, or
// nil before the first allocation.
func (a *Arena) LastBlock() *Block { return a.lastBlock }

// AllocateAligned returns n bytes of 8-byte aligned memory, or nil when no
// block could be obtained. The memory is not zeroed.
func (a *Arena) AllocateAligned(n uint64) []byte {
	a.panicIfReleased()
	b := a.allocateAligned(n)
	if b == nil {
		return nil
	}
	if h := a.options.Hooks.OnArenaAllocation; h != nil {
		h(nil, n, a.cookie)
	}
	return b
}

// AllocateAlignedAndAddCleanup allocates n bytes and registers fn to run
// on element when the arena resets or is released. A nil element means the
// allocated memory itself. Memory and cleanup come from the same block, so
// either both succeed or nil is returned.
func (a *Arena) AllocateAlignedAndAddCleanup(n uint64, fn CleanupFunc, element unsafe.Pointer) []byte {
	a.panicIfReleased()
	needed, ok := a.alignSize(n)
	if !ok || needed > math.MaxUint64-CleanupNodeSize {
		return nil
	}
	if needed == 0 {
		needed = 8
	}
	if !a.reserve(needed + CleanupNodeSize) {
		return nil
	}
	b := a.lastBlock.alloc(needed)
	if element == nil {
		element = unsafe.Pointer(unsafe.SliceData(b))
	}
	a.lastBlock.registerCleanup(element, fn)
	if h := a.options.Hooks.OnArenaAllocation; h != nil {
		h(nil, n, a.cookie)
	}
	return b[:n]
}

// Reset runs every cleanup, returns all blocks but the first to the
// allocator and rewinds the first block. It returns the space the arena
// held before the reset.
func (a *Arena) Reset() uint64 {
	a.panicIfReleased()
	if a.lastBlock == nil {
		if h := a.options.Hooks.OnArenaReset; h != nil {
			h(a, a.cookie, 0, 0)
		}
		return 0
	}
	wasted := a.freeBlocksExceptHead()
	if h := a.options.Hooks.OnArenaReset; h != nil {
		h(a, a.cookie, a.spaceAllocated, wasted)
	}
	n := a.spaceAllocated
	a.spaceAllocated = a.lastBlock.Size()
	a.lastBlock.Reset()
	return n
}

// Release runs every cleanup and returns all blocks to the allocator.
// The arena is unusable afterwards; calling Release again is a no-op.
func (a *Arena) Release() {
	if a.released {
		return
	}
	wasted := a.freeAllBlocks()
	a.released = true
	if h := a.options.Hooks.OnArenaDestruction; h != nil {
		h(a, a.cookie, a.spaceAllocated, wasted)
	}
}

// Released reports whether Release has been called.
func (a *Arena) Released() bool { return a.released }

// SpaceAllocated returns the total size of the blocks the arena holds.
func (a *Arena) SpaceAllocated() uint64 { return a.spaceAllocated }

// SpaceRemains returns the free bytes in the current block. Zero before the
// first allocation.
func (a *Arena) SpaceRemains() uint64 {
	if a.lastBlock == nil {
		return 0
	}
	return a.lastBlock.Remain()
}

// AllocBlock lets other allocators draw memory from the arena. The memory
// is reclaimed with the arena, so FreeBlock does nothing.
func (a *Arena) AllocBlock(size uint64) []byte {
	return a.AllocateAligned(size)
}

func (a *Arena) FreeBlock([]byte) {}

func (a *Arena) alignSize(n uint64) (uint64, bool) {
	if n > math.MaxUint64-7 {
		a.options.Logger.Error("arena: allocation size overflows", slog.Uint64("bytes", n))
		return 0, false
	}
	return align.AlignUp8(n), true
}

func (a *Arena) allocateAligned(n uint64) []byte {
	needed, ok := a.alignSize(n)
	if !ok || !a.reserve(needed) {
		return nil
	}
	return a.lastBlock.alloc(needed)[:n]
}

func (a *Arena) needCreateNewBlock(n uint64) bool {
	return a.lastBlock == nil || n > a.lastBlock.Remain()
}

// reserve makes sure the current block has n free bytes, chaining a new
// block if needed.
func (a *Arena) reserve(n uint64) bool {
	if !a.needCreateNewBlock(n) {
		return true
	}
	blk := a.newBlock(n, a.lastBlock)
	if blk == nil {
		return false
	}
	a.lastBlock = blk
	return true
}

func (a *Arena) addCleanup(element unsafe.Pointer, fn CleanupFunc) bool {
	if !a.reserve(CleanupNodeSize) {
		return false
	}
	a.lastBlock.registerCleanup(element, fn)
	return true
}

// newBlock obtains a block able to hold minBytes after its header.
func (a *Arena) newBlock(minBytes uint64, prev *Block) *Block {
	o := &a.options
	if minBytes > math.MaxUint64-BlockHeaderSize {
		o.Logger.Error("arena: block request overflows", slog.Uint64("min_bytes", minBytes))
		return nil
	}
	required := minBytes + BlockHeaderSize

	var size uint64
	switch {
	case prev == nil:
		size = o.SuggestedInitBlockSize
	case required <= o.NormalBlockSize:
		size = o.NormalBlockSize
	case required <= o.HugeBlockSize/4:
		size = align.AlignUp(minBytes, o.NormalBlockSize)
	case required <= o.HugeBlockSize:
		size = o.HugeBlockSize
	}
	// Anything larger gets a block of its own.
	size = max(size, required)

	mem := o.Allocator.AllocBlock(size)
	if mem == nil {
		o.Logger.Debug("arena: block allocation failed", slog.Uint64("size", size))
		return nil
	}
	if uint64(len(mem)) < size || uintptr(unsafe.Pointer(unsafe.SliceData(mem)))&7 != 0 {
		o.Logger.Error("arena: allocator returned an unusable block",
			slog.Uint64("size", size), slog.Int("len", len(mem)))
		o.Allocator.FreeBlock(mem)
		return nil
	}

	if h := o.Hooks.OnArenaNewBlock; h != nil {
		var blkNum uint64
		for p := prev; p != nil; p = p.prev {
			blkNum++
		}
		h(blkNum, size, a.cookie)
	}
	a.spaceAllocated += size
	return initBlock(mem, size, prev)
}

// freeAllBlocks runs cleanups newest block first and frees every block.
// It returns the unused space the blocks still had.
func (a *Arena) freeAllBlocks() uint64 {
	var wasted uint64
	for b := a.lastBlock; b != nil; {
		prev := b.prev
		wasted += b.Remain()
		b.runCleanups()
		a.options.Allocator.FreeBlock(b.mem)
		b = prev
	}
	a.lastBlock = nil
	return wasted
}

// freeBlocksExceptHead is freeAllBlocks keeping the first block, whose
// unused space is still counted.
func (a *Arena) freeBlocksExceptHead() uint64 {
	var wasted uint64
	b := a.lastBlock
	for b != nil && b.prev != nil {
		prev := b.prev
		wasted += b.Remain()
		b.runCleanups()
		a.options.Allocator.FreeBlock(b.mem)
		b = prev
	}
	wasted += b.Remain()
	a.lastBlock = b
	return wasted
}

// panicIfReleased panics if the arena has been released.
func (a *Arena) panicIfReleased() {
	if a.released {
		panic("arena: use after Release()")
	}
}
