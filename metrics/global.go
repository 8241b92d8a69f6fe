package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Global is the process-wide sum of flushed Locals. Only atomic adds are
// used, so it is safe for concurrent Flush, Snapshot and Reset; a snapshot
// taken during a flush may see part of it.
type Global struct {
	InitCount      atomic.Uint64
	DestructCount  atomic.Uint64
	AllocCount     atomic.Uint64
	NewBlockCount  atomic.Uint64
	ResetCount     atomic.Uint64
	SpaceAllocated atomic.Uint64
	SpaceResettled atomic.Uint64
	SpaceUsed      atomic.Uint64
	SpaceWasted    atomic.Uint64
	LifetimeNanos  atomic.Uint64

	AllocSizeCounter [len(AllocSizeBuckets)]atomic.Uint64
	LifetimeCounter  [len(LifetimeBuckets)]atomic.Uint64

	arenaAlloc sync.Map // string -> *atomic.Uint64
}

// Default is the Global most programs flush into.
var Default = &Global{}

func (g *Global) arenaAllocCounter(loc string) *atomic.Uint64 {
	if c, ok := g.arenaAlloc.Load(loc); ok {
		return c.(*atomic.Uint64)
	}
	c, _ := g.arenaAlloc.LoadOrStore(loc, new(atomic.Uint64))
	return c.(*atomic.Uint64)
}

// Reset zeroes every counter. Call sites already seen keep their entry.
func (g *Global) Reset() {
	for _, c := range g.scalars() {
		c.Store(0)
	}
	for i := range g.AllocSizeCounter {
		g.AllocSizeCounter[i].Store(0)
	}
	for i := range g.LifetimeCounter {
		g.LifetimeCounter[i].Store(0)
	}
	g.arenaAlloc.Range(func(_, v any) bool {
		v.(*atomic.Uint64).Store(0)
		return true
	})
}

func (g *Global) scalars() []*atomic.Uint64 {
	return []*atomic.Uint64{
		&g.InitCount, &g.DestructCount, &g.AllocCount, &g.NewBlockCount, &g.ResetCount,
		&g.SpaceAllocated, &g.SpaceResettled, &g.SpaceUsed, &g.SpaceWasted, &g.LifetimeNanos,
	}
}

// Snapshot is a point-in-time copy of a Global.
type Snapshot struct {
	InitCount      uint64
	DestructCount  uint64
	AllocCount     uint64
	NewBlockCount  uint64
	ResetCount     uint64
	SpaceAllocated uint64
	SpaceResettled uint64
	SpaceUsed      uint64
	SpaceWasted    uint64
	LifetimeNanos  uint64

	AllocSizeCounter  [len(AllocSizeBuckets)]uint64
	LifetimeCounter   [len(LifetimeBuckets)]uint64
	ArenaAllocCounter map[string]uint64
}

// Snapshot copies the current counter values.
func (g *Global) Snapshot() Snapshot {
	s := Snapshot{
		InitCount:         g.InitCount.Load(),
		DestructCount:     g.DestructCount.Load(),
		AllocCount:        g.AllocCount.Load(),
		NewBlockCount:     g.NewBlockCount.Load(),
		ResetCount:        g.ResetCount.Load(),
		SpaceAllocated:    g.SpaceAllocated.Load(),
		SpaceResettled:    g.SpaceResettled.Load(),
		SpaceUsed:         g.SpaceUsed.Load(),
		SpaceWasted:       g.SpaceWasted.Load(),
		LifetimeNanos:     g.LifetimeNanos.Load(),
		ArenaAllocCounter: make(map[string]uint64),
	}
	for i := range g.AllocSizeCounter {
		s.AllocSizeCounter[i] = g.AllocSizeCounter[i].Load()
	}
	for i := range g.LifetimeCounter {
		s.LifetimeCounter[i] = g.LifetimeCounter[i].Load()
	}
	g.arenaAlloc.Range(func(k, v any) bool {
		s.ArenaAllocCounter[k.(string)] = v.(*atomic.Uint64).Load()
		return true
	})
	return s
}

// String renders a summary with cumulative percentage distributions.
func (g *Global) String() string {
	return g.Snapshot().String()
}

func (s Snapshot) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summary:\n"+
		"  init_count: %d\n"+
		"  reset_count: %d\n"+
		"  destruct_count: %d\n"+
		"  alloc_count: %d\n"+
		"  newblock_count: %d\n"+
		"  space_allocated: %d\n"+
		"  space_used: %d\n"+
		"  space_wasted: %d\n"+
		"  space_resettled: %d\n"+
		"AllocSize distribution:",
		s.InitCount, s.ResetCount, s.DestructCount, s.AllocCount, s.NewBlockCount,
		s.SpaceAllocated, s.SpaceUsed, s.SpaceWasted, s.SpaceResettled)

	var count uint64
	for i, le := range AllocSizeBuckets {
		count += s.AllocSizeCounter[i]
		fmt.Fprintf(&sb, "\n  le=%d: %d%%", le, percent(count, s.AllocCount))
	}
	sb.WriteString("\nLifetime distribution:")
	count = 0
	for i, le := range LifetimeBuckets {
		count += s.LifetimeCounter[i]
		fmt.Fprintf(&sb, "\n  le=%dms: %d%%", le/time.Millisecond, percent(count, s.DestructCount))
	}

	if len(s.ArenaAllocCounter) > 0 {
		sb.WriteString("\nArena allocations:")
		locs := make([]string, 0, len(s.ArenaAllocCounter))
		for loc := range s.ArenaAllocCounter {
			locs = append(locs, loc)
		}
		sort.Strings(locs)
		for _, loc := range locs {
			fmt.Fprintf(&sb, "\n  %s: %d", loc, s.ArenaAllocCounter[loc])
		}
	}
	return sb.String()
}

func percent(n, total uint64) uint64 {
	if total == 0 {
		return 0
	}
	return n * 100 / total
}
