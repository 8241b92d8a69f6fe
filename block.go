package arena

import "unsafe"

// BlockHeaderSize is reserved at the front of every block.
const BlockHeaderSize = 32

// Block is one contiguous region of arena memory. Allocations grow forward
// from pos; cleanup nodes are reserved backward from the end, moving limit
// down. BlockHeaderSize <= pos <= limit <= size always holds.
type Block struct {
	mem   []byte
	prev  *Block
	pos   uint64
	size  uint64
	limit uint64

	// cleanups backs the node space between limit and size, oldest first.
	cleanups []CleanupNode
	// pinned holds heap-placed values created in this block until it
	// resets.
	pinned []any
}

// initBlock wraps mem, which must hold at least size bytes. mem is kept as
// handed out so it can be returned to the allocator unchanged.
func initBlock(mem []byte, size uint64, prev *Block) *Block {
	return &Block{
		mem:   mem,
		prev:  prev,
		pos:   BlockHeaderSize,
		size:  size,
		limit: size,
	}
}

// Pos returns the bump offset.
func (b *Block) Pos() uint64 { return b.pos }

// Size returns the block size including the header.
func (b *Block) Size() uint64 { return b.size }

// Limit returns the offset of the lowest cleanup node.
func (b *Block) Limit() uint64 { return b.limit }

// Prev returns the previously allocated block, or nil.
func (b *Block) Prev() *Block { return b.prev }

// Remain returns the bytes left between the bump pointer and the cleanup
// stack.
func (b *Block) Remain() uint64 { return b.limit - b.pos }

// Cleanups returns the number of registered cleanup nodes.
func (b *Block) Cleanups() uint64 { return (b.size - b.limit) / CleanupNodeSize }

// alloc carves size bytes off the front. size must already be aligned.
func (b *Block) alloc(size uint64) []byte {
	if size > b.Remain() {
		panic("arena: block overflow")
	}
	p := b.pos
	b.pos += size
	return b.mem[p:b.pos:b.pos]
}

// allocCleanup reserves one cleanup node at the back and returns its index
// in the cleanup stack.
func (b *Block) allocCleanup() int {
	if b.Remain() < CleanupNodeSize {
		panic("arena: block overflow")
	}
	b.limit -= CleanupNodeSize
	b.cleanups = append(b.cleanups, CleanupNode{})
	return len(b.cleanups) - 1
}

func (b *Block) registerCleanup(element unsafe.Pointer, fn CleanupFunc) {
	i := b.allocCleanup()
	b.cleanups[i] = CleanupNode{Element: element, Cleanup: fn}
}

func (b *Block) pin(v any) {
	b.pinned = append(b.pinned, v)
}

// runCleanups runs every registered cleanup, newest first, and forgets
// them so none can run twice. Pinned values are dropped afterwards.
func (b *Block) runCleanups() {
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		n := b.cleanups[i]
		b.cleanups[i] = CleanupNode{}
		b.cleanups = b.cleanups[:i]
		n.Cleanup(n.Element)
	}
	clear(b.pinned)
	b.pinned = b.pinned[:0]
}

// Reset runs the cleanups and rewinds the block to empty. The memory is
// kept.
func (b *Block) Reset() {
	b.runCleanups()
	b.pos = BlockHeaderSize
	b.limit = b.size
}

func (b *Block) base() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b.mem)))
}
