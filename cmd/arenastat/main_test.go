package main

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/pavanmanishd/arena/v2"
	"github.com/pavanmanishd/arena/v2/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAllocator(t *testing.T) {
	alloc, budget, err := newAllocator("heap", 0)
	require.NoError(t, err)
	assert.Equal(t, arena.HeapAllocator{}, alloc)
	assert.Nil(t, budget)

	alloc, budget, err = newAllocator("mmap", 0)
	require.NoError(t, err)
	assert.Equal(t, arena.MmapAllocator{}, alloc)
	assert.Nil(t, budget)

	alloc, budget, err = newAllocator("heap", 1<<20)
	require.NoError(t, err)
	require.NotNil(t, budget)
	assert.Same(t, budget, alloc)
	assert.Equal(t, int64(1<<20), budget.Limit())

	_, _, err = newAllocator("slab", 0)
	assert.ErrorContains(t, err, `unknown allocator "slab"`)
}

func testWorkload(alloc arena.BlockAllocator, requests, objects int) *workload {
	return &workload{
		requests:   requests,
		objects:    objects,
		flushEvery: 2,
		opts: arena.Options{
			NormalBlockSize:        1024,
			HugeBlockSize:          1024,
			SuggestedInitBlockSize: 1024,
			Allocator:              alloc,
		},
		sink: &metrics.Global{},
	}
}

func TestWorkloadRun(t *testing.T) {
	w := testWorkload(arena.HeapAllocator{}, 5, 32)
	before := destroyed.Load()

	require.NoError(t, w.run(context.Background(), 3))
	assert.Equal(t, int64(15), w.served.Load())
	assert.Zero(t, w.failed.Load())
	assert.Equal(t, int64(15*32), destroyed.Load()-before)

	s := w.sink.Snapshot()
	assert.Equal(t, uint64(3), s.InitCount)
	assert.Equal(t, uint64(3), s.DestructCount)
	assert.Equal(t, uint64(15), s.ResetCount)
	assert.NotZero(t, s.AllocCount)
}

func TestWorkloadBudgetExhausted(t *testing.T) {
	_, budget, err := newAllocator("heap", 2048)
	require.NoError(t, err)
	w := testWorkload(budget, 4, 64)

	require.NoError(t, w.run(context.Background(), 1))
	assert.Equal(t, int64(4), w.served.Load())
	assert.Equal(t, int64(4), w.failed.Load(), "every request outgrows the budget")
	assert.Zero(t, budget.Used(), "blocks go back to the budget on release")
}

func TestWorkloadCanceled(t *testing.T) {
	w := testWorkload(arena.HeapAllocator{}, 100, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, w.run(ctx, 2), context.Canceled)
	assert.Zero(t, w.served.Load())
	assert.Equal(t, uint64(2), w.sink.Snapshot().DestructCount)
}

func TestServeCreatesRecords(t *testing.T) {
	w := testWorkload(arena.HeapAllocator{}, 1, 50)
	a := arena.NewArena(w.opts)
	defer a.Release()

	require.NoError(t, w.serve(a, rand.New(rand.NewPCG(1, 2)), 0))
	assert.NotZero(t, a.SpaceAllocated())
	assert.Equal(t, uint64(50), a.Cleanups())
}
