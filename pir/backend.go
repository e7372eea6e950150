package pir

// Scheme is the server side of a homomorphic backend. C is the ciphertext type
// and P the type of a plaintext in evaluation form.
type Scheme[C, P any] interface {
	Degree() int
	PlaintextModulus() uint64
	// Moduli returns the ciphertext moduli, one per RNS residue.
	Moduli() []uint64
	// Polys is the number of polynomials in a ciphertext.
	Polys() int

	// Preprocess lifts at most N coefficients below T into evaluation form. It
	// must be safe for concurrent use.
	Preprocess(coeffs []uint64) (P, error)

	MarshalCiphertext(ct C) ([]byte, error)
	UnmarshalCiphertext(data []byte) (C, error)

	// NewEvaluator binds the serialized rotation keys of one query. It fails
	// with ErrConfig if a key for one of galEls is missing or was generated for
	// another polynomial degree.
	NewEvaluator(keys []byte, galEls []uint64) (Evaluator[C, P], error)
}

// Evaluator carries out the homomorphic operations of one query.
type Evaluator[C, P any] interface {
	Add(op0, op1 C) (C, error)
	Sub(op0, op1 C) (C, error)
	// Automorphism maps X to X^galEl.
	Automorphism(ct C, galEl uint64) (C, error)
	// MulByMonomialInverse multiplies ct by X^(-2^logShift).
	MulByMonomialInverse(ct C, logShift int) (C, error)

	// InnerProduct returns sum_i cts[i]*pts[i]. It must be safe for concurrent use.
	InnerProduct(cts []C, pts []P) (C, error)
	// Residues returns the coefficient-domain residues of ct, polynomial major.
	// It must be safe for concurrent use.
	Residues(ct C) ([][]uint64, error)
}

// Cryptor is the client side of a homomorphic backend.
type Cryptor[C any] interface {
	Degree() int
	PlaintextModulus() uint64
	Moduli() []uint64
	Polys() int

	Encrypt(coeffs []uint64) (C, error)
	// Decrypt returns the N plaintext coefficients in [0, T).
	Decrypt(ct C) ([]uint64, error)
	// FromResidues rebuilds a ciphertext from the output of Evaluator.Residues.
	FromResidues(rows [][]uint64) (C, error)

	MarshalCiphertext(ct C) ([]byte, error)
	UnmarshalCiphertext(data []byte) (C, error)

	// GaloisKeys serializes the public rotation keys for galEls.
	GaloisKeys(galEls []uint64) ([]byte, error)
}

// SchemeFactory builds the server side of a backend for a geometry.
type SchemeFactory[C, P any] func(g Geometry) (Scheme[C, P], error)

// CryptorFactory builds the client side of a backend for a geometry.
type CryptorFactory[C any] func(g Geometry) (Cryptor[C], error)
