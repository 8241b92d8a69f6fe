// Package arena implements a block-chained region allocator for Go.
//
// # Overview
//
// An Arena hands out memory by bumping a pointer through a chain of
// blocks and reclaims everything at once. Values that own resources can
// register a cleanup; cleanups run when the arena is reset or released,
// most recently registered first. This is particularly useful for:
//
//   - Request-scoped allocations in servers
//   - Parsers and planners that build many small nodes
//   - Reducing garbage collection pressure
//
// # Basic Usage
//
//	a := arena.NewArena(arena.DefaultOptions())
//	defer a.Release()
//
//	// Raw bytes
//	buf := a.AllocateAligned(1024)
//
//	// Typed values; *Conn's Destroy runs on Reset or Release
//	c := arena.Create(a, Conn{ID: 7})
//	ids := arena.CreateArray[int64](a, 100)
//
//	// Reclaim everything but the first block
//	a.Reset()
//
// # Memory Layout
//
// Each block reserves BlockHeaderSize bytes at the front. Allocations grow
// forward from the header, 8-byte aligned; cleanup nodes of
// CleanupNodeSize bytes are reserved backward from the end. A block is
// full when the two meet.
//
// The first block has SuggestedInitBlockSize bytes. Later blocks are
// NormalBlockSize, a multiple of it for requests up to a quarter of
// HugeBlockSize, HugeBlockSize up to HugeBlockSize, and exactly the request
// above that. Reset keeps the first block only.
//
// # Failure
//
// When the BlockAllocator returns nil the allocating call returns nil (or
// false for Own). Sizes that would overflow are logged through
// Options.Logger and fail the same way.
//
// # Hooks
//
// Options.Hooks observe initialisation, allocation, block growth, reset
// and release. The metrics package ships a set of hooks that aggregate
// per-goroutine counters into process-wide totals.
//
// # Thread Safety
//
// Arena is not thread-safe. One arena per goroutine is the intended use;
// SafeArena wraps an arena in a mutex when it has to be shared.
//
// # Garbage Collection
//
// Block memory is not scanned by the collector, so only pointer-free values
// are placed in it. Create and CreateArray put any type that holds pointers
// (see HoldsPointers) on the Go heap instead and pin it to the current
// block; it stays reachable until that block is reset or released, and
// only its cleanup node uses arena space. Check reports such values as
// NotContain. Own likewise keeps the objects it is given reachable until
// their cleanup has run. Raw bytes from AllocateAligned must never hold
// the only reference to a heap object.
package arena
