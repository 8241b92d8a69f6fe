// Package metrics aggregates arena activity. Each goroutine records into its
// own Local through arena hooks without synchronisation and periodically
// flushes into a shared Global.
package metrics

import (
	"fmt"
	"reflect"
	"time"

	"github.com/pavanmanishd/arena/v2"
)

// AllocSizeBuckets are the inclusive upper bounds of the allocation size
// histogram. Larger allocations are counted but fall in no bucket.
var AllocSizeBuckets = [...]uint64{64, 128, 256, 512, 1024, 2048, 4096, 1 << 20}

// LifetimeBuckets are the inclusive upper bounds of the arena lifetime
// histogram.
var LifetimeBuckets = [...]time.Duration{
	1 * time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
}

// Local holds counters for the arenas driven by one goroutine. It must not
// be shared.
type Local struct {
	InitCount      uint64
	DestructCount  uint64
	AllocCount     uint64
	NewBlockCount  uint64
	ResetCount     uint64
	SpaceAllocated uint64
	SpaceResettled uint64
	// SpaceUsed above SpaceAllocated means fragmentation; below means reuse.
	SpaceUsed     uint64
	SpaceWasted   uint64
	LifetimeNanos uint64

	AllocSizeCounter [len(AllocSizeBuckets)]uint64
	LifetimeCounter  [len(LifetimeBuckets)]uint64
	// ArenaAllocCounter sums allocated bytes per NewArena call site.
	ArenaAllocCounter map[string]uint64

	now func() time.Time
}

// NewLocal returns an empty Local.
func NewLocal() *Local {
	return &Local{
		ArenaAllocCounter: make(map[string]uint64),
		now:               time.Now,
	}
}

// cookie is what OnArenaInit hands back to the arena.
type cookie struct {
	initTime time.Time
	location string
}

// Hooks returns arena hooks that record into l.
func (l *Local) Hooks() arena.Hooks {
	return arena.Hooks{
		OnArenaInit:        l.onInit,
		OnArenaReset:       l.onReset,
		OnArenaAllocation:  l.onAllocation,
		OnArenaNewBlock:    l.onNewBlock,
		OnArenaDestruction: l.onDestruction,
	}
}

// Install points the hooks in o at l.
func (l *Local) Install(o *arena.Options) {
	o.Hooks = l.Hooks()
}

func (l *Local) onInit(_ *arena.Arena, loc string) any {
	l.InitCount++
	return &cookie{initTime: l.clock(), location: loc}
}

func (l *Local) onReset(_ *arena.Arena, _ any, used, wasted uint64) {
	l.ResetCount++
	l.SpaceResettled += used
	l.SpaceWasted += wasted
}

func (l *Local) onAllocation(_ reflect.Type, size uint64, c any) {
	l.AllocCount++
	l.SpaceAllocated += size
	l.observeAllocSize(size)
	if ck, ok := c.(*cookie); ok {
		if l.ArenaAllocCounter == nil {
			l.ArenaAllocCounter = make(map[string]uint64)
		}
		l.ArenaAllocCounter[ck.location] += size
	}
}

func (l *Local) onNewBlock(_, _ uint64, _ any) {
	l.NewBlockCount++
}

func (l *Local) onDestruction(_ *arena.Arena, c any, used, wasted uint64) {
	l.DestructCount++
	l.SpaceUsed += used
	l.SpaceWasted += wasted
	if ck, ok := c.(*cookie); ok {
		d := l.clock().Sub(ck.initTime)
		l.LifetimeNanos += uint64(max(d, 0))
		l.observeLifetime(d)
	}
}

func (l *Local) observeAllocSize(size uint64) {
	for i, le := range AllocSizeBuckets {
		if size <= le {
			l.AllocSizeCounter[i]++
			return
		}
	}
}

func (l *Local) observeLifetime(d time.Duration) {
	for i, le := range LifetimeBuckets {
		if d <= le {
			l.LifetimeCounter[i]++
			return
		}
	}
}

func (l *Local) clock() time.Time {
	if l.now == nil {
		return time.Now()
	}
	return l.now()
}

// Reset zeroes every counter.
func (l *Local) Reset() {
	now := l.now
	*l = Local{ArenaAllocCounter: make(map[string]uint64), now: now}
}

// Flush adds l into g and resets l.
func (l *Local) Flush(g *Global) {
	g.InitCount.Add(l.InitCount)
	g.ResetCount.Add(l.ResetCount)
	g.AllocCount.Add(l.AllocCount)
	g.NewBlockCount.Add(l.NewBlockCount)
	g.DestructCount.Add(l.DestructCount)
	g.SpaceAllocated.Add(l.SpaceAllocated)
	g.SpaceUsed.Add(l.SpaceUsed)
	g.SpaceWasted.Add(l.SpaceWasted)
	g.SpaceResettled.Add(l.SpaceResettled)
	g.LifetimeNanos.Add(l.LifetimeNanos)
	for i := range l.AllocSizeCounter {
		g.AllocSizeCounter[i].Add(l.AllocSizeCounter[i])
	}
	for i := range l.LifetimeCounter {
		g.LifetimeCounter[i].Add(l.LifetimeCounter[i])
	}
	for loc, n := range l.ArenaAllocCounter {
		g.arenaAllocCounter(loc).Add(n)
	}
	l.Reset()
}

func (l *Local) String() string {
	return fmt.Sprintf("init=%d reset=%d destruct=%d alloc=%d newblock=%d allocated=%d used=%d wasted=%d resettled=%d",
		l.InitCount, l.ResetCount, l.DestructCount, l.AllocCount, l.NewBlockCount,
		l.SpaceAllocated, l.SpaceUsed, l.SpaceWasted, l.SpaceResettled)
}
