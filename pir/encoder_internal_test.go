package pir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackBitsUnalignedWidth(t *testing.T) {
	// 0xB5 0x3C = 10110 10100 11110 0
	src := []byte{0xB5, 0x3C}
	dst := make([]uint64, 4)
	n := packBits(dst, src, 5)
	require.Equal(t, 4, n)
	require.Equal(t, []uint64{0b10110, 0b10100, 0b11110, 0b00000}, dst)

	out := make([]byte, 2)
	unpackBits(out, dst, 5)
	require.Equal(t, src, out)
}

func TestPackBitsWideCoefficients(t *testing.T) {
	src := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF, 0xFE, 0xDC}
	for _, width := range []int{2, 7, 8, 13, 32, 49, 50} {
		dst := make([]uint64, len(src)*8/width+1)
		n := packBits(dst, src, width)
		require.Equal(t, (len(src)*8+width-1)/width, n)
		for _, c := range dst {
			require.Less(t, c, uint64(1)<<width)
		}
		out := make([]byte, len(src))
		unpackBits(out, dst[:n], width)
		require.Equal(t, src, out, "width %d", width)
	}
}
