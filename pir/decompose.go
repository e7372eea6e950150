package pir

import (
	"math/bits"

	"github.com/nulltea/latpir/core"
)

// Decomposer splits ciphertext residues into Width-bit digits that are small
// enough to be used as plaintext coefficients, and recombines them. The split is
// exact: Compose(Decompose(rows)) == rows for residues below their modulus.
type Decomposer struct {
	Width  int
	Polys  int
	Moduli []uint64
}

func NewDecomposer(width, polys int, moduli []uint64) Decomposer {
	return Decomposer{Width: width, Polys: polys, Moduli: append([]uint64(nil), moduli...)}
}

func (d Decomposer) digits(q uint64) int {
	return core.CeilDiv(bits.Len64(q), d.Width)
}

// Ratio is the number of digit vectors a single ciphertext decomposes into.
func (d Decomposer) Ratio() int {
	s := 0
	for _, q := range d.Moduli {
		s += d.digits(q)
	}
	return d.Polys * s
}

// Decompose expects one row per (polynomial, modulus) pair, polynomial major, and
// returns the digit vectors least significant digit first within each row.
func (d Decomposer) Decompose(rows [][]uint64) ([][]uint64, error) {
	if len(rows) != d.Polys*len(d.Moduli) {
		return nil, ErrCrypto.New("decompose: got %d residue rows, expected %d", len(rows), d.Polys*len(d.Moduli))
	}
	mask := uint64(1)<<d.Width - 1
	out := make([][]uint64, 0, d.Ratio())
	for r, row := range rows {
		q := d.Moduli[r%len(d.Moduli)]
		for k := 0; k < d.digits(q); k++ {
			shift := k * d.Width
			digit := make([]uint64, len(row))
			for i, c := range row {
				digit[i] = (c >> shift) & mask
			}
			out = append(out, digit)
		}
	}
	return out, nil
}

// Compose is the inverse of Decompose. It fails if a digit is wider than Width or
// a recombined residue is not reduced, which happens when a decryption was wrong.
func (d Decomposer) Compose(digits [][]uint64) ([][]uint64, error) {
	if len(digits) != d.Ratio() {
		return nil, ErrCrypto.New("compose: got %d digit vectors, expected %d", len(digits), d.Ratio())
	}
	mask := uint64(1)<<d.Width - 1
	rows := make([][]uint64, 0, d.Polys*len(d.Moduli))
	next := 0
	for r := 0; r < d.Polys*len(d.Moduli); r++ {
		q := d.Moduli[r%len(d.Moduli)]
		row := make([]uint64, len(digits[next]))
		for k := 0; k < d.digits(q); k++ {
			digit := digits[next]
			next++
			if len(digit) != len(row) {
				return nil, ErrCrypto.New("compose: digit vector of length %d, expected %d", len(digit), len(row))
			}
			shift := k * d.Width
			for i, v := range digit {
				if v > mask || shift+bits.Len64(v) > 64 {
					return nil, ErrCrypto.New("compose: digit %d does not fit in %d bits", v, d.Width)
				}
				row[i] |= v << shift
			}
		}
		for _, c := range row {
			if c >= q {
				return nil, ErrCrypto.New("compose: residue %d not reduced modulo %d", c, q)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
