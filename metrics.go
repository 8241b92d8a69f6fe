package arena

// SpaceUsed returns the bytes handed out from all blocks, alignment padding
// included, headers and cleanup nodes excluded.
func (a *Arena) SpaceUsed() uint64 {
	var sum uint64
	for b := a.lastBlock; b != nil; b = b.prev {
		sum += b.pos - BlockHeaderSize
	}
	return sum
}

// NumBlocks returns the number of blocks in the chain.
func (a *Arena) NumBlocks() int {
	n := 0
	for b := a.lastBlock; b != nil; b = b.prev {
		n++
	}
	return n
}

// Cleanups returns the number of cleanups waiting to run.
func (a *Arena) Cleanups() uint64 {
	var n uint64
	for b := a.lastBlock; b != nil; b = b.prev {
		n += b.Cleanups()
	}
	return n
}

// Utilization returns the ratio of used to allocated space (0.0 to 1.0).
// Returns 0.0 if the arena holds no blocks.
func (a *Arena) Utilization() float64 {
	if a.spaceAllocated == 0 {
		return 0
	}
	return float64(a.SpaceUsed()) / float64(a.spaceAllocated)
}

// Stats returns a snapshot of arena statistics.
func (a *Arena) Stats() ArenaStats {
	return ArenaStats{
		SpaceAllocated: a.SpaceAllocated(),
		SpaceUsed:      a.SpaceUsed(),
		SpaceRemains:   a.SpaceRemains(),
		NumBlocks:      a.NumBlocks(),
		Cleanups:       a.Cleanups(),
		Utilization:    a.Utilization(),
	}
}

// ArenaStats contains statistical information about an arena.
type ArenaStats struct {
	SpaceAllocated uint64  // Bytes held in blocks
	SpaceUsed      uint64  // Bytes handed out
	SpaceRemains   uint64  // Free bytes in the current block
	NumBlocks      int     // Blocks in the chain
	Cleanups       uint64  // Pending cleanups
	Utilization    float64 // SpaceUsed / SpaceAllocated
}

// Thread-safe statistics for SafeArena

// SpaceAllocated thread-safely returns the total size of the arena's blocks.
func (s *SafeArena) SpaceAllocated() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.SpaceAllocated()
}

// SpaceRemains thread-safely returns the free bytes in the current block.
func (s *SafeArena) SpaceRemains() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.SpaceRemains()
}

// Stats thread-safely returns a snapshot of arena statistics.
func (s *SafeArena) Stats() ArenaStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.Stats()
}
