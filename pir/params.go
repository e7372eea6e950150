package pir

import (
	"math/bits"

	"github.com/nulltea/latpir/core"
)

const (
	// MinPolyDegree is the smallest polynomial degree the encoder accepts.
	MinPolyDegree = 8
	// MaxPlaintextModulusBits bounds the coefficient width so that bit packing
	// never needs more than 64 bits of carry.
	MaxPlaintextModulusBits = 50

	// The plaintext modulus is kept congruent to 1 mod 16 so that every backend
	// can build an NTT-friendly plaintext ring for it.
	plaintextModulusOrder = 16
)

// Parameters is the value object a server publishes and a client derives its
// encryption and layout parameters from.
type Parameters struct {
	RecordCount          int `json:"record_count" yaml:"record_count"`
	RecordSize           int `json:"record_size" yaml:"record_size"`
	PolyDegree           int `json:"poly_degree" yaml:"poly_degree"`
	PlaintextModulusBits int `json:"plaintext_modulus_bits" yaml:"plaintext_modulus_bits"`
	Dimensionality       int `json:"dimensionality" yaml:"dimensionality"`

	// Dimensions pins the dimension vector. When empty it is derived from the
	// other fields.
	Dimensions []int `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// Geometry holds everything derived from Parameters.
type Geometry struct {
	Params Parameters

	N                   int
	T                   uint64
	UsableBits          int
	CoeffsPerRecord     int
	RecordsPerPlaintext int
	PlaintextCount      int
	Dimensions          []int
}

// Geometry validates the parameters and derives the database geometry.
func (p Parameters) Geometry() (Geometry, error) {
	if p.RecordCount < 1 {
		return Geometry{}, ErrInvalidArgument.New("record count must be >= 1, got %d", p.RecordCount)
	}
	if p.RecordSize < 1 {
		return Geometry{}, ErrInvalidArgument.New("record size must be >= 1, got %d", p.RecordSize)
	}
	if p.PolyDegree < MinPolyDegree || !core.IsPowerOfTwo(p.PolyDegree) {
		return Geometry{}, ErrConfig.New("polynomial degree must be a power of two >= %d, got %d", MinPolyDegree, p.PolyDegree)
	}
	if p.PlaintextModulusBits < 2 || p.PlaintextModulusBits > MaxPlaintextModulusBits {
		return Geometry{}, ErrConfig.New("plaintext modulus bits must be in [2, %d], got %d", MaxPlaintextModulusBits, p.PlaintextModulusBits)
	}
	if p.Dimensionality < 1 {
		return Geometry{}, ErrConfig.New("dimensionality must be >= 1, got %d", p.Dimensionality)
	}

	t, err := PlaintextModulus(p.PlaintextModulusBits)
	if err != nil {
		return Geometry{}, ErrConfig.Wrap(err)
	}

	g := Geometry{
		Params:     p,
		N:          p.PolyDegree,
		T:          t,
		UsableBits: bits.Len64(t) - 1,
	}
	g.CoeffsPerRecord = core.CeilDiv(8*p.RecordSize, g.UsableBits)
	g.RecordsPerPlaintext = g.N / g.CoeffsPerRecord
	if g.RecordsPerPlaintext == 0 {
		return Geometry{}, ErrInvalidArgument.New("record of %d bytes needs %d coefficients, polynomial degree is %d",
			p.RecordSize, g.CoeffsPerRecord, g.N)
	}
	g.PlaintextCount = core.CeilDiv(p.RecordCount, g.RecordsPerPlaintext)

	if len(p.Dimensions) == 0 {
		g.Dimensions = DeriveDimensions(g.PlaintextCount, p.Dimensionality)
	} else {
		if len(p.Dimensions) != p.Dimensionality {
			return Geometry{}, ErrConfig.New("dimension vector has %d entries, dimensionality is %d", len(p.Dimensions), p.Dimensionality)
		}
		g.Dimensions = append([]int(nil), p.Dimensions...)
	}

	capacity, ok := core.Product(g.Dimensions)
	if !ok {
		return Geometry{}, ErrConfig.New("invalid dimension vector %v", g.Dimensions)
	}
	if capacity < g.PlaintextCount {
		return Geometry{}, ErrConfig.New("dimension vector %v holds %d plaintexts, database needs %d", g.Dimensions, capacity, g.PlaintextCount)
	}
	if sum := core.Sum(g.Dimensions); sum > g.N {
		return Geometry{}, ErrConfig.New("dimension sizes %v add up to %d, more than the polynomial degree %d", g.Dimensions, sum, g.N)
	}

	return g, nil
}

// PlaintextModulus returns the smallest prime T > 2^logT with T = 1 mod 16.
func PlaintextModulus(logT int) (uint64, error) {
	return core.NextPrimeCongruent(uint64(1)<<logT, plaintextModulusOrder)
}

// DeriveDimensions spreads plaintexts over d dimensions. Every size starts at
// floor(plaintexts^(1/d)) and sizes are bumped round-robin from dimension 0 until
// the product covers all plaintexts.
func DeriveDimensions(plaintexts, d int) []int {
	root := core.IntRoot(plaintexts, d)
	if root < 1 {
		root = 1
	}
	dims := make([]int, d)
	for i := range dims {
		dims[i] = root
	}
	for j := 0; ; j = (j + 1) % d {
		if p, ok := core.Product(dims); ok && p >= plaintexts {
			return dims
		}
		dims[j]++
	}
}

// Capacity is the number of slots of the database matrix.
func (g Geometry) Capacity() int {
	c, _ := core.Product(g.Dimensions)
	return c
}

// ExpansionSize is the number of selector ciphertexts a query expands into.
func (g Geometry) ExpansionSize() int {
	return core.Sum(g.Dimensions)
}

// ExpansionRounds is the number of doubling rounds of the query expansion.
func (g Geometry) ExpansionRounds() int {
	return core.CeilLog2(g.ExpansionSize())
}

// Offsets returns the first selector coefficient of every dimension.
func (g Geometry) Offsets() []int {
	offsets := make([]int, len(g.Dimensions))
	acc := 0
	for k, n := range g.Dimensions {
		offsets[k] = acc
		acc += n
	}
	return offsets
}

// Fingerprint binds the geometry and the ciphertext moduli of a backend. Client
// and server compare fingerprints to detect diverging parameter derivations.
func Fingerprint(g Geometry, moduli []uint64) []byte {
	t := core.NewTranscript("latpir-parameters")
	t.AppendUint64("record_count", uint64(g.Params.RecordCount))
	t.AppendUint64("record_size", uint64(g.Params.RecordSize))
	t.AppendUint64("poly_degree", uint64(g.N))
	t.AppendUint64("plaintext_modulus", g.T)
	dims := make([]uint64, len(g.Dimensions))
	for i, n := range g.Dimensions {
		dims[i] = uint64(n)
	}
	t.AppendUints("dimensions", dims)
	t.AppendUints("moduli", moduli)
	return t.Digest("fingerprint", 32)
}
