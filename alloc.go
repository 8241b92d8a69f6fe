package arena

import (
	"log/slog"
	"math"
	"reflect"
	"runtime"
	"unsafe"

	"github.com/pavanmanishd/arena/v2/align"
)

// Create places v in the arena and returns a pointer to the copy, or nil
// when no memory is available. If *T is a Destroyer (and not
// DestructionSkippable) its Destroy runs when the arena resets or is
// released; the cleanup is reserved in the same block as the value. If *T
// is ArenaConstructable, InitArena is called after placement.
//
// Arena memory is not scanned by the garbage collector, so a T that holds
// pointers is placed on the Go heap instead and kept reachable by the
// current block until the arena resets. Only its cleanup node takes arena
// space.
func Create[T any](a *Arena, v T) *T {
	a.panicIfReleased()
	size := uint64(unsafe.Sizeof(v))
	withCleanup := needsDestroy[T]()
	if HoldsPointers[T]() {
		var reserve uint64
		if withCleanup {
			reserve = CleanupNodeSize
		}
		if !a.reserve(reserve) {
			return nil
		}
		p := new(T)
		*p = v
		a.lastBlock.pin(p)
		return finishCreate(a, p, size, withCleanup)
	}

	needed := align.AlignUp8(max(size, 1))
	reserve := needed
	if withCleanup {
		reserve += CleanupNodeSize
	}
	if !a.reserve(reserve) {
		return nil
	}
	b := a.lastBlock.alloc(needed)
	p := (*T)(unsafe.Pointer(unsafe.SliceData(b)))
	*p = v
	return finishCreate(a, p, size, withCleanup)
}

// finishCreate binds, registers and reports a freshly placed value. The
// cleanup node must already be reserved in the current block.
func finishCreate[T any](a *Arena, p *T, size uint64, withCleanup bool) *T {
	if ac, ok := any(p).(ArenaConstructable); ok {
		ac.InitArena(a)
	}
	if withCleanup {
		a.lastBlock.registerCleanup(unsafe.Pointer(p), destroyObject[T])
	}
	if h := a.options.Hooks.OnArenaAllocation; h != nil {
		h(reflect.TypeFor[T](), size, a.cookie)
	}
	return p
}

// CreateArray returns n zeroed values of T in the arena. No cleanups are
// registered, so Destroyer element types are refused. ArenaConstructable
// elements get InitArena called on each one. It returns nil on failure and
// an empty slice for n == 0. Element types holding pointers are allocated
// on the Go heap and pinned to the current block, as in Create.
func CreateArray[T any](a *Arena, n uint64) []T {
	a.panicIfReleased()
	if n == 0 {
		return []T{}
	}
	if isDestroyer[T]() {
		a.options.Logger.Error("arena: CreateArray of a type that needs Destroy",
			slog.String("type", reflect.TypeFor[T]().String()))
		return nil
	}
	var zero T
	elemSize := uint64(unsafe.Sizeof(zero))
	if elemSize != 0 && n > math.MaxUint64/elemSize {
		a.options.Logger.Error("arena: CreateArray size overflows",
			slog.Uint64("num", n),
			slog.String("type", reflect.TypeFor[T]().String()),
			slog.Uint64("sizeof", elemSize))
		return nil
	}
	if n > math.MaxInt {
		return nil
	}
	size := elemSize * n
	var s []T
	if HoldsPointers[T]() {
		s = makeSlice[T](n)
		if s == nil || !a.reserve(0) {
			return nil
		}
		a.lastBlock.pin(s)
	} else {
		b := a.allocateAligned(max(size, 1))
		if b == nil {
			return nil
		}
		clear(b)
		s = unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), int(n))
	}
	if isArenaConstructable[T]() {
		for i := range s {
			any(&s[i]).(ArenaConstructable).InitArena(a)
		}
	}
	if h := a.options.Hooks.OnArenaAllocation; h != nil {
		h(reflect.TypeFor[T](), size, a.cookie)
	}
	return s
}

// Own ties obj to the arena: obj.Destroy runs when the arena resets or is
// released. *T must be a Destroyer and must not be ArenaConstructable.
// It returns false when the type is unsuitable or no memory is available.
func Own[T any](a *Arena, obj *T) bool {
	a.panicIfReleased()
	if obj == nil || !isDestroyer[T]() || isArenaConstructable[T]() {
		return false
	}
	return a.addCleanup(unsafe.Pointer(obj), destroyObject[T])
}

// CopyString copies s into the arena. The result aliases arena memory and
// is only valid until the arena resets.
func CopyString(a *Arena, s string) (string, bool) {
	if len(s) == 0 {
		return "", true
	}
	b := a.AllocateAligned(uint64(len(s)))
	if b == nil {
		return "", false
	}
	copy(b, s)
	return unsafe.String(unsafe.SliceData(b), len(b)), true
}

// CopyBytes copies p into the arena, returning nil on failure.
func CopyBytes(a *Arena, p []byte) []byte {
	b := a.AllocateAligned(uint64(len(p)))
	if b == nil {
		return nil
	}
	copy(b, p)
	return b
}

// PtrAndKeepAlive returns t and keeps the arena reachable up to this call.
func PtrAndKeepAlive[T any](a *Arena, t *T) *T {
	runtime.KeepAlive(a)
	return t
}
