package fhe

import (
	"math"
	"math/bits"
	"slices"

	"github.com/nulltea/latpir/pir"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
)

const (
	// MinLogN is the smallest ring degree lattigo builds parameters for.
	MinLogN = 4
	// MaxQPrimes bounds the number of ciphertext primes GenerateBGVParams uses.
	MaxQPrimes = 6

	logQi = 54
	logP  = 55

	// Fresh and key switching errors are sampled with the lattigo default
	// standard deviation and bounded at errorTail deviations.
	errorStdDev = 3.2
	errorTail   = 6
	// A product of a noise polynomial with a plaintext of norm B is taken to
	// be below 2^productTailBits * sqrt(N) * B * noise.
	productTailBits = 3
	marginBits      = 2
)

// ReplyNoiseBits estimates log2 of the largest noise coefficient of a reply
// ciphertext for a ciphertext modulus of qPrimes primes. Decryption multiplies the
// phase by T, so a reply decrypts correctly while T * 2^ReplyNoiseBits < Q/2.
//
// A selector after r expansion rounds carries at most 2^r (e_fresh + e_ks) of
// noise, where e_ks grows with sqrt(N) and the number of key switching digits.
// Each dimension sums at most max(Dimensions) selector x plaintext products and
// every plaintext coefficient is below T.
func ReplyNoiseBits(g pir.Geometry, qPrimes int) float64 {
	n := float64(g.N)
	fresh := errorTail * errorStdDev
	keySwitch := errorTail * errorStdDev * math.Sqrt(n) * float64(qPrimes)
	selector := float64(g.ExpansionRounds()) + math.Log2(fresh+keySwitch)
	product := math.Log2(float64(slices.Max(g.Dimensions))) + math.Log2(float64(g.T)) + math.Log2(n)/2 + productTailBits
	return selector + product
}

// ciphertextModulusPrimes returns the smallest number of logQi-bit primes whose
// product leaves marginBits of headroom over T * 2^ReplyNoiseBits * 2.
func ciphertextModulusPrimes(g pir.Geometry) (int, error) {
	need := 0.0
	for k := 1; k <= MaxQPrimes; k++ {
		need = ReplyNoiseBits(g, k) + math.Log2(float64(g.T)) + 1 + marginBits
		// Every generated prime is at least 2^(logQi-1).
		if float64(k*(logQi-1)) >= need {
			return k, nil
		}
	}
	return 0, pir.ErrConfig.New("reply noise needs a %.0f-bit ciphertext modulus, more than %d primes of %d bits",
		need, MaxQPrimes, logQi)
}

// GenerateBGVParams derives BGV parameters from a PIR geometry.
//
// Heuristics Applied:
//   - LogN = log2(N) and PlaintextModulus = T, both taken from the geometry.
//   - LogQ = k primes of 54 bits, with the smallest k such that
//     53k >= ReplyNoiseBits(g, k) + log2(T) + 3. This keeps T times the estimated
//     reply noise below Q/8, a factor 4 under the decryption bound Q/2.
//     The protocol never rescales, so every ciphertext stays at the top level and
//     an intermediate reply ciphertext decomposes into 2*k*ceil(54/usable_bits) digits.
//     Geometries that would need more than MaxQPrimes primes are rejected with ErrConfig.
//   - LogP = [55]: one special prime larger than every Q prime, so key switching
//     adds at most e_ks = 6*3.2*sqrt(N)*k per expansion round.
//   - Xe, Xs: Left empty to use Lattigo defaults (Gaussian error, Ternary secret).
func GenerateBGVParams(g pir.Geometry) (bgv.ParametersLiteral, error) {
	logN := bits.Len(uint(g.N)) - 1
	if logN < MinLogN {
		return bgv.ParametersLiteral{}, pir.ErrConfig.New("polynomial degree %d is below the BGV minimum %d", g.N, 1<<MinLogN)
	}
	if bits.Len64(g.T) >= logQi {
		return bgv.ParametersLiteral{}, pir.ErrConfig.New("plaintext modulus %d does not fit under a %d-bit ciphertext prime", g.T, logQi)
	}
	if len(g.Dimensions) == 0 {
		return bgv.ParametersLiteral{}, pir.ErrConfig.New("geometry has no dimensions")
	}

	k, err := ciphertextModulusPrimes(g)
	if err != nil {
		return bgv.ParametersLiteral{}, err
	}
	logQ := make([]int, k)
	for i := range logQ {
		logQ[i] = logQi
	}

	return bgv.ParametersLiteral{
		LogN:             logN,
		LogQ:             logQ,
		LogP:             []int{logP},
		PlaintextModulus: g.T,
	}, nil
}

// NewParameters instantiates the literal returned by GenerateBGVParams.
func NewParameters(g pir.Geometry) (bgv.Parameters, error) {
	lit, err := GenerateBGVParams(g)
	if err != nil {
		return bgv.Parameters{}, err
	}
	params, err := bgv.NewParametersFromLiteral(lit)
	if err != nil {
		return bgv.Parameters{}, pir.ErrConfig.Wrap(err)
	}
	return params, nil
}
