package arena

import (
	"log/slog"
	"reflect"
)

// Default block sizing.
const (
	DefaultNormalBlockSize        = 4 << 10
	DefaultHugeBlockSize          = 2 << 20
	DefaultSuggestedInitBlockSize = DefaultNormalBlockSize
)

// Hooks are optional observation callbacks. Each hook is invoked
// synchronously on the goroutine driving the arena and must not call back
// into it. Cookie is whatever OnArenaInit returned for that arena.
type Hooks struct {
	// OnArenaInit runs once from NewArena. loc is the file:line of the
	// NewArena call site.
	OnArenaInit func(a *Arena, loc string) (cookie any)

	OnArenaReset func(a *Arena, cookie any, spaceUsed, spaceWasted uint64)

	// OnArenaAllocation reports typed and raw allocations. t is nil for raw
	// byte requests.
	OnArenaAllocation func(t reflect.Type, size uint64, cookie any)

	// OnArenaNewBlock reports every block the arena obtains. blkNum counts
	// the blocks already in the chain.
	OnArenaNewBlock func(blkNum, blkSize uint64, cookie any)

	OnArenaDestruction func(a *Arena, cookie any, spaceUsed, spaceWasted uint64)
}

// Options configures an Arena.
type Options struct {
	// NormalBlockSize is the default size of blocks after the first.
	NormalBlockSize uint64
	// HugeBlockSize is the size used for requests between HugeBlockSize/4
	// and HugeBlockSize. Larger requests get a block of their own.
	HugeBlockSize uint64
	// SuggestedInitBlockSize sizes the first block.
	SuggestedInitBlockSize uint64

	// Allocator supplies block memory. Nil means HeapAllocator.
	Allocator BlockAllocator
	// Logger receives failure reports. Nil discards them.
	Logger *slog.Logger

	Hooks Hooks
}

// DefaultOptions returns 4 KiB normal blocks, 2 MiB huge blocks, a 4 KiB
// first block, heap-backed memory and the default slog logger.
func DefaultOptions() Options {
	return Options{
		NormalBlockSize:        DefaultNormalBlockSize,
		HugeBlockSize:          DefaultHugeBlockSize,
		SuggestedInitBlockSize: DefaultSuggestedInitBlockSize,
		Allocator:              HeapAllocator{},
		Logger:                 slog.Default(),
	}
}

// normalize fills unset fields. Without a NormalBlockSize all sizes take
// their defaults; otherwise zero init and huge sizes follow NormalBlockSize.
func (o Options) normalize() Options {
	if o.NormalBlockSize == 0 {
		o.NormalBlockSize = DefaultNormalBlockSize
		if o.HugeBlockSize == 0 {
			o.HugeBlockSize = DefaultHugeBlockSize
		}
	}
	if o.SuggestedInitBlockSize == 0 {
		o.SuggestedInitBlockSize = o.NormalBlockSize
	}
	if o.HugeBlockSize == 0 {
		o.HugeBlockSize = o.NormalBlockSize
	}
	if o.Allocator == nil {
		o.Allocator = HeapAllocator{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}
