package fhe

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/nulltea/latpir/core"
	"github.com/nulltea/latpir/pir"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/ring"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
)

// backend holds what the server and the client of the BGV backend share.
type backend struct {
	geom     pir.Geometry
	params   bgv.Parameters
	ringQ    *ring.Ring
	ctLayout wireLayout
}

func newBackend(g pir.Geometry) (backend, error) {
	params, err := NewParameters(g)
	if err != nil {
		return backend{}, err
	}
	if params.PlaintextModulus() != g.T || params.N() != g.N {
		return backend{}, pir.ErrConfig.New("lattigo parameters N=%d T=%d, geometry needs N=%d T=%d",
			params.N(), params.PlaintextModulus(), g.N, g.T)
	}
	layout, err := ciphertextLayout(params)
	if err != nil {
		return backend{}, err
	}
	return backend{geom: g, params: params, ringQ: params.RingQ(), ctLayout: layout}, nil
}

func (b backend) Parameters() bgv.Parameters { return b.params }
func (b backend) Degree() int                { return b.params.N() }
func (b backend) PlaintextModulus() uint64   { return b.params.PlaintextModulus() }
func (b backend) Moduli() []uint64           { return b.params.Q() }
func (b backend) Polys() int                 { return 2 }

func (b backend) checkCoeffs(coeffs []uint64) error {
	if len(coeffs) > b.params.N() {
		return pir.ErrInvalidArgument.New("%d coefficients for degree %d", len(coeffs), b.params.N())
	}
	t := b.params.PlaintextModulus()
	for i, c := range coeffs {
		if c >= t {
			return pir.ErrInvalidArgument.New("coefficient %d = %d is not below %d", i, c, t)
		}
	}
	return nil
}

func (b backend) MarshalCiphertext(ct *rlwe.Ciphertext) ([]byte, error) {
	return ct.MarshalBinary()
}

// UnmarshalCiphertext parses a degree-1 ciphertext in the NTT domain at the top
// level. Input of any other shape is rejected before it reaches the lattigo decoder.
func (b backend) UnmarshalCiphertext(data []byte) (*rlwe.Ciphertext, error) {
	ct := rlwe.NewCiphertext(b.params, 1, b.params.MaxLevel())
	if err := b.ctLayout.decode(data, ct.UnmarshalBinary); err != nil {
		return nil, err
	}
	if ct.Degree() != 1 || ct.Level() != b.params.MaxLevel() || !ct.IsNTT {
		return nil, pir.ErrInvalidArgument.New("ciphertext of degree %d at level %d, expected degree 1 at level %d in the NTT domain",
			ct.Degree(), ct.Level(), b.params.MaxLevel())
	}
	moduli := b.params.Q()
	for _, p := range ct.Value {
		if p.N() != b.params.N() {
			return nil, pir.ErrInvalidArgument.New("ciphertext of degree %d, expected %d", p.N(), b.params.N())
		}
		if err := checkReduced(p, moduli); err != nil {
			return nil, pir.ErrInvalidArgument.New("malformed ciphertext: %v", err)
		}
	}
	return ct, nil
}

// ServerBFV is the server side of the BGV backend. Database plaintexts and the
// expansion monomials are kept in NTT and Montgomery form, so a ct x pt product
// is one coefficient-wise Montgomery multiplication per polynomial.
type ServerBFV struct {
	backend
	xInvPow2 []ring.Poly
}

func NewServerBFV(g pir.Geometry) (*ServerBFV, error) {
	b, err := newBackend(g)
	if err != nil {
		return nil, err
	}
	return &ServerBFV{backend: b, xInvPow2: genXInvPow2NTT(b.ringQ, b.params.Q(), b.params.LogN())}, nil
}

// NewScheme is a pir.SchemeFactory for the BGV backend.
func NewScheme(g pir.Geometry) (pir.Scheme[*rlwe.Ciphertext, ring.Poly], error) {
	s, err := NewServerBFV(g)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// genXInvPow2NTT returns X^(-2^i) = -X^(N-2^i) for i < logN in NTT and Montgomery form.
func genXInvPow2NTT(r *ring.Ring, moduli []uint64, logN int) []ring.Poly {
	N := r.N()
	xPow := make([]ring.Poly, logN)
	for i := range xPow {
		p := r.NewPoly()
		for j, q := range moduli {
			p.Coeffs[j][N-(1<<i)] = q - 1
		}
		r.NTT(p, p)
		r.MForm(p, p)
		xPow[i] = p
	}
	return xPow
}

// Preprocess lifts coefficients below T into R_Q without the T^-1 scaling used for
// messages, then moves them to NTT and Montgomery form.
func (s *ServerBFV) Preprocess(coeffs []uint64) (ring.Poly, error) {
	if err := s.checkCoeffs(coeffs); err != nil {
		return ring.Poly{}, err
	}
	p := s.ringQ.NewPoly()
	for i := range p.Coeffs {
		copy(p.Coeffs[i], coeffs)
	}
	s.ringQ.NTT(p, p)
	s.ringQ.MForm(p, p)
	return p, nil
}

func (s *ServerBFV) NewEvaluator(keys []byte, galEls []uint64) (pir.Evaluator[*rlwe.Ciphertext, ring.Poly], error) {
	gks, err := UnmarshalGaloisKeys(s.params, keys)
	if err != nil {
		return nil, err
	}

	nthRoot := uint64(2 * s.params.N())
	byGalEl := make(map[uint64]*rlwe.GaloisKey, len(gks))
	for _, gk := range gks {
		if gk.NthRoot != nthRoot {
			return nil, pir.ErrConfig.New("rotation key for Galois element %d was generated for degree %d, expected %d",
				gk.GaloisElement, gk.NthRoot/2, s.params.N())
		}
		if gk.LevelQ() != s.params.MaxLevelQ() || gk.LevelP() != s.params.MaxLevelP() {
			return nil, pir.ErrConfig.New("rotation key for Galois element %d has levels (%d, %d), expected (%d, %d)",
				gk.GaloisElement, gk.LevelQ(), gk.LevelP(), s.params.MaxLevelQ(), s.params.MaxLevelP())
		}
		byGalEl[gk.GaloisElement] = gk
	}

	selected := make([]*rlwe.GaloisKey, 0, len(galEls))
	for _, galEl := range galEls {
		gk, ok := byGalEl[galEl]
		if !ok {
			return nil, pir.ErrConfig.New("rotation key for Galois element %d is missing", galEl)
		}
		selected = append(selected, gk)
	}

	evk := rlwe.NewMemEvaluationKeySet(nil, selected...)
	return &EvaluatorBFV{ServerBFV: s, eval: rlwe.NewEvaluator(s.params, evk)}, nil
}

// EvaluatorBFV evaluates one query. Automorphism uses the buffers of the lattigo
// evaluator and is not safe for concurrent use; the other operations only
// allocate fresh ciphertexts.
type EvaluatorBFV struct {
	*ServerBFV
	eval *rlwe.Evaluator
}

func (e *EvaluatorBFV) newCiphertext(level int, md *rlwe.MetaData) *rlwe.Ciphertext {
	ct := rlwe.NewCiphertext(e.params, 1, level)
	*ct.MetaData = *md
	return ct
}

func checkOperand(ct *rlwe.Ciphertext) error {
	if ct == nil || ct.Degree() != 1 {
		return pir.ErrCrypto.New("expected a degree-1 ciphertext")
	}
	if !ct.IsNTT {
		return pir.ErrCrypto.New("expected a ciphertext in the NTT domain")
	}
	return nil
}

func (e *EvaluatorBFV) binary(op0, op1 *rlwe.Ciphertext, apply func(r *ring.Ring, p0, p1, out ring.Poly)) (*rlwe.Ciphertext, error) {
	if err := checkOperand(op0); err != nil {
		return nil, err
	}
	if err := checkOperand(op1); err != nil {
		return nil, err
	}
	level := min(op0.Level(), op1.Level())
	r := e.ringQ.AtLevel(level)
	out := e.newCiphertext(level, op0.MetaData)
	for i := range out.Value {
		apply(r, op0.Value[i], op1.Value[i], out.Value[i])
	}
	return out, nil
}

func (e *EvaluatorBFV) Add(op0, op1 *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	return e.binary(op0, op1, func(r *ring.Ring, p0, p1, out ring.Poly) { r.Add(p0, p1, out) })
}

func (e *EvaluatorBFV) Sub(op0, op1 *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	return e.binary(op0, op1, func(r *ring.Ring, p0, p1, out ring.Poly) { r.Sub(p0, p1, out) })
}

func (e *EvaluatorBFV) Automorphism(ct *rlwe.Ciphertext, galEl uint64) (*rlwe.Ciphertext, error) {
	if err := checkOperand(ct); err != nil {
		return nil, err
	}
	out := rlwe.NewCiphertext(e.params, 1, ct.Level())
	if err := e.eval.Automorphism(ct, galEl, out); err != nil {
		return nil, pir.ErrCrypto.Wrap(err)
	}
	return out, nil
}

func (e *EvaluatorBFV) MulByMonomialInverse(ct *rlwe.Ciphertext, logShift int) (*rlwe.Ciphertext, error) {
	if err := checkOperand(ct); err != nil {
		return nil, err
	}
	if logShift < 0 || logShift >= len(e.xInvPow2) {
		return nil, pir.ErrCrypto.New("monomial X^-2^%d out of range", logShift)
	}
	r := e.ringQ.AtLevel(ct.Level())
	out := e.newCiphertext(ct.Level(), ct.MetaData)
	for i := range out.Value {
		r.MulCoeffsMontgomery(ct.Value[i], e.xInvPow2[logShift], out.Value[i])
	}
	return out, nil
}

func (e *EvaluatorBFV) InnerProduct(cts []*rlwe.Ciphertext, pts []ring.Poly) (*rlwe.Ciphertext, error) {
	if len(cts) == 0 || len(cts) != len(pts) {
		return nil, pir.ErrCrypto.New("inner product of %d ciphertexts and %d plaintexts", len(cts), len(pts))
	}
	level := cts[0].Level()
	for _, ct := range cts {
		if err := checkOperand(ct); err != nil {
			return nil, err
		}
		level = min(level, ct.Level())
	}

	r := e.ringQ.AtLevel(level)
	out := e.newCiphertext(level, cts[0].MetaData)
	for j, ct := range cts {
		for i := range out.Value {
			if j == 0 {
				r.MulCoeffsMontgomery(ct.Value[i], pts[j], out.Value[i])
			} else {
				r.MulCoeffsMontgomeryThenAdd(ct.Value[i], pts[j], out.Value[i])
			}
		}
	}
	return out, nil
}

func (e *EvaluatorBFV) Residues(ct *rlwe.Ciphertext) ([][]uint64, error) {
	if err := checkOperand(ct); err != nil {
		return nil, err
	}
	if ct.Level() != e.params.MaxLevel() {
		return nil, pir.ErrCrypto.New("ciphertext at level %d, expected %d", ct.Level(), e.params.MaxLevel())
	}
	r := e.ringQ.AtLevel(ct.Level())
	tmp := r.NewPoly()
	rows := make([][]uint64, 0, len(ct.Value)*(ct.Level()+1))
	for _, p := range ct.Value {
		r.INTT(p, tmp)
		for i := 0; i <= ct.Level(); i++ {
			rows = append(rows, slices.Clone(tmp.Coeffs[i]))
		}
	}
	return rows, nil
}

// ClientBFV is the client side of the BGV backend. Messages are scaled by T^-1
// before encryption and decryption multiplies by T, so that the decrypted value
// is the message plus a multiple of T.
type ClientBFV struct {
	backend
	sk   *rlwe.SecretKey
	kgen *rlwe.KeyGenerator
	enc  *rlwe.Encryptor
	dec  *rlwe.Decryptor
	tInv *big.Int
}

// NewClientBFV builds a client for g. A fresh secret key is sampled when sk is nil.
func NewClientBFV(g pir.Geometry, sk *rlwe.SecretKey) (*ClientBFV, error) {
	b, err := newBackend(g)
	if err != nil {
		return nil, err
	}
	kgen := rlwe.NewKeyGenerator(b.params)
	if sk == nil {
		sk = kgen.GenSecretKeyNew()
	}

	q := b.ringQ.ModulusAtLevel[b.params.MaxLevel()]
	tInv := new(big.Int).ModInverse(new(big.Int).SetUint64(b.params.PlaintextModulus()), q)
	if tInv == nil {
		return nil, pir.ErrConfig.New("plaintext modulus %d is not invertible modulo Q", b.params.PlaintextModulus())
	}

	return &ClientBFV{
		backend: b,
		sk:      sk,
		kgen:    kgen,
		enc:     rlwe.NewEncryptor(b.params, sk),
		dec:     rlwe.NewDecryptor(b.params, sk),
		tInv:    tInv,
	}, nil
}

// NewCryptor is a pir.CryptorFactory for the BGV backend.
func NewCryptor(g pir.Geometry) (pir.Cryptor[*rlwe.Ciphertext], error) {
	c, err := NewClientBFV(g, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *ClientBFV) SecretKey() *rlwe.SecretKey {
	return c.sk
}

func (c *ClientBFV) Encrypt(coeffs []uint64) (*rlwe.Ciphertext, error) {
	if err := c.checkCoeffs(coeffs); err != nil {
		return nil, err
	}
	pt := rlwe.NewPlaintext(c.params, c.params.MaxLevel())
	for i := range pt.Value.Coeffs {
		copy(pt.Value.Coeffs[i], coeffs)
	}
	c.ringQ.MulScalarBigint(pt.Value, c.tInv, pt.Value)
	if pt.IsNTT {
		c.ringQ.NTT(pt.Value, pt.Value)
	}
	ct, err := c.enc.EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return ct, nil
}

func (c *ClientBFV) Decrypt(ct *rlwe.Ciphertext) ([]uint64, error) {
	if ct == nil || ct.Degree() != 1 {
		return nil, pir.ErrInvalidArgument.New("expected a degree-1 ciphertext")
	}
	pt := c.dec.DecryptNew(ct)
	r := c.ringQ.AtLevel(pt.Level())
	r.MulScalar(pt.Value, c.params.PlaintextModulus(), pt.Value)
	return core.RingPolyToCoeffsModT(r, pt.Value, c.params.PlaintextModulus(), false, pt.IsNTT), nil
}

func (c *ClientBFV) FromResidues(rows [][]uint64) (*rlwe.Ciphertext, error) {
	level := c.params.MaxLevel()
	if len(rows) != 2*(level+1) {
		return nil, pir.ErrInvalidArgument.New("%d residue rows, expected %d", len(rows), 2*(level+1))
	}
	ct := rlwe.NewCiphertext(c.params, 1, level)
	for p := range ct.Value {
		for i := 0; i <= level; i++ {
			row := rows[p*(level+1)+i]
			if len(row) != c.params.N() {
				return nil, pir.ErrInvalidArgument.New("residue row of length %d, expected %d", len(row), c.params.N())
			}
			copy(ct.Value[p].Coeffs[i], row)
		}
		c.ringQ.NTT(ct.Value[p], ct.Value[p])
	}
	ct.IsNTT = true
	return ct, nil
}

func (c *ClientBFV) GaloisKeys(galEls []uint64) ([]byte, error) {
	return MarshalGaloisKeys(c.kgen.GenGaloisKeysNew(galEls, c.sk))
}
