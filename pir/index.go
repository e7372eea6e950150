package pir

import (
	"github.com/nulltea/latpir/core"
)

// IndexToCoords decomposes index in mixed radix over dims. Dimension 0 is the most
// significant digit.
func IndexToCoords(index int, dims []int) ([]int, error) {
	capacity, ok := core.Product(dims)
	if !ok {
		return nil, ErrInvalidArgument.New("invalid dimension vector %v", dims)
	}
	if index < 0 || index >= capacity {
		return nil, ErrInvalidArgument.New("index %d outside [0, %d)", index, capacity)
	}
	coords := make([]int, len(dims))
	for k := len(dims) - 1; k >= 0; k-- {
		coords[k] = index % dims[k]
		index /= dims[k]
	}
	return coords, nil
}

// CoordsToIndex is the inverse of IndexToCoords.
func CoordsToIndex(coords, dims []int) (int, error) {
	if len(coords) != len(dims) {
		return 0, ErrInvalidArgument.New("%d coordinates for %d dimensions", len(coords), len(dims))
	}
	index := 0
	for k, c := range coords {
		if c < 0 || c >= dims[k] {
			return 0, ErrInvalidArgument.New("coordinate %d outside [0, %d) in dimension %d", c, dims[k], k)
		}
		index = index*dims[k] + c
	}
	return index, nil
}

// Position locates a record inside the database matrix.
type Position struct {
	Index     int
	Plaintext int
	Offset    int
	Coords    []int
}

// Locate maps a record index to its plaintext, its offset inside the decoded
// plaintext and the matrix coordinates of that plaintext.
func (g Geometry) Locate(index int) (Position, error) {
	if index < 0 || index >= g.Params.RecordCount {
		return Position{}, ErrInvalidArgument.New("record index %d outside [0, %d)", index, g.Params.RecordCount)
	}
	pos := Position{
		Index:     index,
		Plaintext: index / g.RecordsPerPlaintext,
		Offset:    index % g.RecordsPerPlaintext,
	}
	coords, err := IndexToCoords(pos.Plaintext, g.Dimensions)
	if err != nil {
		return Position{}, err
	}
	pos.Coords = coords
	return pos, nil
}

// IndexPolynomial returns the coefficients the client encrypts for pos.
//
// All coordinates share one polynomial: the coordinate of dimension k sits at
// coefficient Offsets()[k]+Coords[k]. The hot coefficients hold 2^-l mod T, with l
// the number of expansion rounds, so that they come out of ExpandQuery as exactly 1.
func (g Geometry) IndexPolynomial(pos Position) ([]uint64, error) {
	if len(pos.Coords) != len(g.Dimensions) {
		return nil, ErrInvalidArgument.New("%d coordinates for %d dimensions", len(pos.Coords), len(g.Dimensions))
	}
	hot, err := core.InvMod((uint64(1)<<g.ExpansionRounds())%g.T, g.T)
	if err != nil {
		return nil, ErrCrypto.Wrap(err)
	}
	coeffs := make([]uint64, g.N)
	for k, off := range g.Offsets() {
		c := pos.Coords[k]
		if c < 0 || c >= g.Dimensions[k] {
			return nil, ErrInvalidArgument.New("coordinate %d outside [0, %d) in dimension %d", c, g.Dimensions[k], k)
		}
		coeffs[off+c] = hot
	}
	return coeffs, nil
}
