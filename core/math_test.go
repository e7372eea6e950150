package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCeilLog2(t *testing.T) {
	for n, want := range map[int]int{0: 0, 1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 7: 3, 8: 3, 9: 4, 2048: 11} {
		require.Equal(t, want, CeilLog2(n), "n=%d", n)
	}
}

func TestProduct(t *testing.T) {
	p, ok := Product([]int{4, 3, 2})
	require.True(t, ok)
	require.Equal(t, 24, p)

	_, ok = Product([]int{4, 0})
	require.False(t, ok)
	_, ok = Product([]int{math.MaxInt / 2, 3})
	require.False(t, ok)
}

func TestIntRoot(t *testing.T) {
	cases := []struct{ n, d, want int }{
		{1, 2, 1}, {10, 2, 3}, {16, 2, 4}, {17, 2, 4}, {26, 3, 2}, {27, 3, 3}, {1000000, 3, 100}, {5, 1, 5}, {3, 4, 1},
	}
	for _, c := range cases {
		require.Equal(t, c.want, IntRoot(c.n, c.d), "n=%d d=%d", c.n, c.d)
	}
}

func TestNextPrimeCongruent(t *testing.T) {
	for lower, want := range map[uint64]uint64{1 << 4: 17, 1 << 8: 257, 1 << 12: 4129, 1 << 16: 65537} {
		p, err := NextPrimeCongruent(lower, 16)
		require.NoError(t, err)
		require.Equal(t, want, p)
	}
	_, err := NextPrimeCongruent(5, 0)
	require.Error(t, err)
}

func TestInvMod(t *testing.T) {
	inv, err := InvMod(4, 17)
	require.NoError(t, err)
	require.Equal(t, uint64(13), inv)

	_, err = InvMod(4, 8)
	require.Error(t, err)
}

func TestMulMod(t *testing.T) {
	q := uint64(0x1fffffffffe00001)
	require.Equal(t, uint64(1), MulMod(q-1, q-1, q))
	require.Equal(t, uint64(6), MulMod(2, 3, 7))
}
