package arena

import "unsafe"

// CleanupNodeSize is the space a registered cleanup takes from its block.
const CleanupNodeSize = 16

// CleanupFunc releases whatever element points at.
type CleanupFunc func(element unsafe.Pointer)

// CleanupNode pairs an element with the function that tears it down.
type CleanupNode struct {
	Element unsafe.Pointer
	Cleanup CleanupFunc
}

// Destroyer is implemented by types that hold resources beyond their own
// memory. The arena calls Destroy exactly once when it resets or is
// released.
type Destroyer interface {
	Destroy()
}

// DestructionSkippable marks a Destroyer whose Destroy the arena may skip.
type DestructionSkippable interface {
	SkipDestruction()
}

// ArenaConstructable is implemented by types that bind to the arena they
// are created in. InitArena runs after the value is placed.
type ArenaConstructable interface {
	InitArena(a *Arena)
}

// needsDestroy reports whether values of T get a cleanup registered.
func needsDestroy[T any]() bool {
	var p *T
	if _, ok := any(p).(Destroyer); !ok {
		return false
	}
	_, skip := any(p).(DestructionSkippable)
	return !skip
}

func isDestroyer[T any]() bool {
	var p *T
	_, ok := any(p).(Destroyer)
	return ok
}

func isArenaConstructable[T any]() bool {
	var p *T
	_, ok := any(p).(ArenaConstructable)
	return ok
}

// destroyObject is the type-erased cleanup for arena-placed and owned
// values of T.
func destroyObject[T any](p unsafe.Pointer) {
	any((*T)(p)).(Destroyer).Destroy()
}
