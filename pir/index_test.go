package pir_test

import (
	"testing"

	"github.com/nulltea/latpir/pir"
	"github.com/stretchr/testify/require"
)

func TestCoordsRoundTrip(t *testing.T) {
	dims := []int{3, 4, 2}
	for index := 0; index < 24; index++ {
		coords, err := pir.IndexToCoords(index, dims)
		require.NoError(t, err)
		back, err := pir.CoordsToIndex(coords, dims)
		require.NoError(t, err)
		require.Equal(t, index, back)
	}
}

func TestCoordsMostSignificantFirst(t *testing.T) {
	coords, err := pir.IndexToCoords(1, []int{2, 2})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, coords)

	coords, err = pir.IndexToCoords(11, []int{3, 4})
	require.NoError(t, err)
	require.Equal(t, []int{2, 3}, coords)
}

func TestCoordsErrors(t *testing.T) {
	_, err := pir.IndexToCoords(4, []int{2, 2})
	require.True(t, pir.ErrInvalidArgument.Has(err))
	_, err = pir.IndexToCoords(-1, []int{2, 2})
	require.True(t, pir.ErrInvalidArgument.Has(err))
	_, err = pir.CoordsToIndex([]int{0, 2}, []int{2, 2})
	require.True(t, pir.ErrInvalidArgument.Has(err))
	_, err = pir.CoordsToIndex([]int{0}, []int{2, 2})
	require.True(t, pir.ErrInvalidArgument.Has(err))
}

func TestLocate(t *testing.T) {
	g, err := scenarioParams().Geometry()
	require.NoError(t, err)

	pos, err := g.Locate(2)
	require.NoError(t, err)
	require.Equal(t, pir.Position{Index: 2, Plaintext: 1, Offset: 0, Coords: []int{0, 1}}, pos)

	pos, err = g.Locate(3)
	require.NoError(t, err)
	require.Equal(t, 1, pos.Offset)

	_, err = g.Locate(4)
	require.True(t, pir.ErrInvalidArgument.Has(err))
}

func TestIndexPolynomial(t *testing.T) {
	g, err := scenarioParams().Geometry()
	require.NoError(t, err)

	pos, err := g.Locate(2)
	require.NoError(t, err)
	coeffs, err := g.IndexPolynomial(pos)
	require.NoError(t, err)

	// 2 rounds of expansion: 4^-1 mod 17 = 13
	require.Equal(t, []uint64{13, 0, 0, 13, 0, 0, 0, 0}, coeffs)
}
