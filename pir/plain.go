package pir

import (
	"encoding/binary"
	"slices"

	"github.com/nulltea/latpir/core"
	"google.golang.org/protobuf/encoding/protowire"
)

// PlainPoly is an unencrypted element of Z_T[X]/(X^N+1).
type PlainPoly []uint64

// PlainBackend runs the protocol on plaintext polynomials. It performs the same
// ring operations as a real backend without any encryption and offers no
// privacy; it exists for tests and for degrees too small for a lattice scheme.
type PlainBackend struct {
	n int
	t uint64
}

func NewPlainBackend(g Geometry) *PlainBackend {
	return &PlainBackend{n: g.N, t: g.T}
}

// NewPlainScheme is a SchemeFactory for PlainBackend.
func NewPlainScheme(g Geometry) (Scheme[PlainPoly, PlainPoly], error) {
	return NewPlainBackend(g), nil
}

// NewPlainCryptor is a CryptorFactory for PlainBackend.
func NewPlainCryptor(g Geometry) (Cryptor[PlainPoly], error) {
	return NewPlainBackend(g), nil
}

func (b *PlainBackend) Degree() int              { return b.n }
func (b *PlainBackend) PlaintextModulus() uint64 { return b.t }
func (b *PlainBackend) Moduli() []uint64         { return []uint64{b.t} }
func (b *PlainBackend) Polys() int               { return 1 }

func (b *PlainBackend) check(coeffs []uint64) error {
	if len(coeffs) > b.n {
		return ErrInvalidArgument.New("%d coefficients for degree %d", len(coeffs), b.n)
	}
	for i, c := range coeffs {
		if c >= b.t {
			return ErrInvalidArgument.New("coefficient %d = %d is not below %d", i, c, b.t)
		}
	}
	return nil
}

func (b *PlainBackend) lift(coeffs []uint64) (PlainPoly, error) {
	if err := b.check(coeffs); err != nil {
		return nil, err
	}
	p := make(PlainPoly, b.n)
	copy(p, coeffs)
	return p, nil
}

func (b *PlainBackend) Preprocess(coeffs []uint64) (PlainPoly, error) { return b.lift(coeffs) }
func (b *PlainBackend) Encrypt(coeffs []uint64) (PlainPoly, error)    { return b.lift(coeffs) }

func (b *PlainBackend) Decrypt(ct PlainPoly) ([]uint64, error) {
	if len(ct) != b.n {
		return nil, ErrInvalidArgument.New("polynomial of length %d, expected %d", len(ct), b.n)
	}
	return slices.Clone(ct), nil
}

func (b *PlainBackend) FromResidues(rows [][]uint64) (PlainPoly, error) {
	if len(rows) != 1 {
		return nil, ErrInvalidArgument.New("%d residue rows, expected 1", len(rows))
	}
	return b.lift(rows[0])
}

func (b *PlainBackend) MarshalCiphertext(ct PlainPoly) ([]byte, error) {
	data := make([]byte, 8*len(ct))
	for i, c := range ct {
		binary.LittleEndian.PutUint64(data[8*i:], c)
	}
	return data, nil
}

func (b *PlainBackend) UnmarshalCiphertext(data []byte) (PlainPoly, error) {
	if len(data) != 8*b.n {
		return nil, ErrInvalidArgument.New("ciphertext of %d bytes, expected %d", len(data), 8*b.n)
	}
	p := make(PlainPoly, b.n)
	for i := range p {
		p[i] = binary.LittleEndian.Uint64(data[8*i:])
	}
	return p, b.check(p)
}

// GaloisKeys records the degree and the requested elements; the plain evaluator
// refuses automorphisms that were not requested.
func (b *PlainBackend) GaloisKeys(galEls []uint64) ([]byte, error) {
	var data []byte
	data = protowire.AppendTag(data, 1, protowire.VarintType)
	data = protowire.AppendVarint(data, uint64(b.n))
	for _, galEl := range galEls {
		data = protowire.AppendTag(data, 2, protowire.VarintType)
		data = protowire.AppendVarint(data, galEl)
	}
	return data, nil
}

func (b *PlainBackend) NewEvaluator(keys []byte, galEls []uint64) (Evaluator[PlainPoly, PlainPoly], error) {
	var degree uint64
	available := make(map[uint64]bool)
	for len(keys) > 0 {
		num, typ, n := protowire.ConsumeTag(keys)
		if n < 0 || typ != protowire.VarintType {
			return nil, ErrInvalidArgument.New("malformed key set")
		}
		keys = keys[n:]
		v, n := protowire.ConsumeVarint(keys)
		if n < 0 {
			return nil, ErrInvalidArgument.Wrap(protowire.ParseError(n))
		}
		keys = keys[n:]
		switch num {
		case 1:
			degree = v
		case 2:
			available[v] = true
		}
	}
	if degree != uint64(b.n) {
		return nil, ErrConfig.New("rotation keys were generated for degree %d, expected %d", degree, b.n)
	}
	for _, galEl := range galEls {
		if !available[galEl] {
			return nil, ErrConfig.New("rotation key for Galois element %d is missing", galEl)
		}
	}
	return &plainEvaluator{PlainBackend: b, galEls: available}, nil
}

type plainEvaluator struct {
	*PlainBackend
	galEls map[uint64]bool
}

func (e *plainEvaluator) Add(op0, op1 PlainPoly) (PlainPoly, error) {
	out := make(PlainPoly, e.n)
	for i := range out {
		out[i] = (op0[i] + op1[i]) % e.t
	}
	return out, nil
}

func (e *plainEvaluator) Sub(op0, op1 PlainPoly) (PlainPoly, error) {
	out := make(PlainPoly, e.n)
	for i := range out {
		out[i] = (op0[i] + e.t - op1[i]) % e.t
	}
	return out, nil
}

// place adds c*X^k to out, reducing with X^N = -1.
func (e *plainEvaluator) place(out PlainPoly, k int, c uint64) {
	k %= 2 * e.n
	if k < 0 {
		k += 2 * e.n
	}
	if k >= e.n {
		out[k-e.n] = (out[k-e.n] + e.t - c) % e.t
		return
	}
	out[k] = (out[k] + c) % e.t
}

func (e *plainEvaluator) Automorphism(ct PlainPoly, galEl uint64) (PlainPoly, error) {
	if !e.galEls[galEl] {
		return nil, ErrConfig.New("rotation key for Galois element %d is missing", galEl)
	}
	out := make(PlainPoly, e.n)
	for i, c := range ct {
		e.place(out, int((uint64(i)*galEl)%uint64(2*e.n)), c)
	}
	return out, nil
}

func (e *plainEvaluator) MulByMonomialInverse(ct PlainPoly, logShift int) (PlainPoly, error) {
	out := make(PlainPoly, e.n)
	for i, c := range ct {
		e.place(out, i-1<<logShift, c)
	}
	return out, nil
}

func (e *plainEvaluator) InnerProduct(cts []PlainPoly, pts []PlainPoly) (PlainPoly, error) {
	if len(cts) != len(pts) {
		return nil, ErrInvalidArgument.New("%d ciphertexts against %d plaintexts", len(cts), len(pts))
	}
	out := make(PlainPoly, e.n)
	for j := range cts {
		for a, x := range cts[j] {
			if x == 0 {
				continue
			}
			for b, y := range pts[j] {
				e.place(out, a+b, core.MulMod(x, y, e.t))
			}
		}
	}
	return out, nil
}

func (e *plainEvaluator) Residues(ct PlainPoly) ([][]uint64, error) {
	return [][]uint64{slices.Clone(ct)}, nil
}
