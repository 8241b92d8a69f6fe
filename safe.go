package arena

import (
	"sync"
	"unsafe"
)

// SafeArena is a mutex-protected wrapper around Arena for concurrent access.
// Hooks and cleanups run with the lock held and must not call back into
// the SafeArena.
type SafeArena struct {
	mu sync.Mutex
	a  *Arena
}

// NewSafeArena creates a new thread-safe arena.
func NewSafeArena(opts Options) *SafeArena {
	return &SafeArena{a: newArena(opts, 2)}
}

// AllocateAligned thread-safely allocates n bytes.
func (s *SafeArena) AllocateAligned(n uint64) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.AllocateAligned(n)
}

// AllocateAlignedAndAddCleanup thread-safely allocates n bytes with a cleanup.
func (s *SafeArena) AllocateAlignedAndAddCleanup(n uint64, fn CleanupFunc, element unsafe.Pointer) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.AllocateAlignedAndAddCleanup(n, fn, element)
}

// Reset thread-safely resets the arena for reuse.
func (s *SafeArena) Reset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.Reset()
}

// Release thread-safely releases the arena.
func (s *SafeArena) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.a.Release()
}

// AllocBlock lets SafeArena serve as a BlockAllocator.
func (s *SafeArena) AllocBlock(size uint64) []byte {
	return s.AllocateAligned(size)
}

func (s *SafeArena) FreeBlock([]byte) {}

// SafeCreate thread-safely places v in the arena.
func SafeCreate[T any](s *SafeArena, v T) *T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Create(s.a, v)
}

// SafeCreateArray thread-safely allocates n zeroed values of T.
func SafeCreateArray[T any](s *SafeArena, n uint64) []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CreateArray[T](s.a, n)
}

// SafeOwn thread-safely ties obj to the arena.
func SafeOwn[T any](s *SafeArena, obj *T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Own(s.a, obj)
}
