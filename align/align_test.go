package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlignUpTo(t *testing.T) {
	tests := []struct {
		n, N, want uint64
	}{
		{0, 8, 0},
		{1, 8, 8},
		{7, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{17, 16, 32},
		{31, 32, 32},
		{33, 32, 64},
		{5, 4, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AlignUpTo(tt.n, tt.N), "AlignUpTo(%d, %d)", tt.n, tt.N)
	}
}

func TestAlignUpToInvalid(t *testing.T) {
	for _, n := range []uint64{0, 1, 2, 3, 12, 64, 128} {
		assert.Panics(t, func() { AlignUpTo(10, n) }, "alignment %d", n)
	}
}

func TestAlignUp8(t *testing.T) {
	for n := uint64(0); n < 100; n++ {
		assert.Equal(t, AlignUpTo(n, 8), AlignUp8(n))
	}
}

func TestAlignUp(t *testing.T) {
	tests := []struct {
		n, block, want uint64
	}{
		{2500, 1024, 3072},
		{1024, 1024, 1024},
		{300*1024 + 100, 1000, 308000},
		{1, 3, 3},
		{6, 3, 6},
		{42, 0, 42},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AlignUp(tt.n, tt.block), "AlignUp(%d, %d)", tt.n, tt.block)
	}
}

func TestIsPow2(t *testing.T) {
	assert.False(t, IsPow2(0))
	assert.True(t, IsPow2(1))
	assert.True(t, IsPow2(4096))
	assert.False(t, IsPow2(4095))
}
