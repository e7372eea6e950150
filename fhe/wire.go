package fhe

import (
	"fmt"

	"github.com/nulltea/latpir/pir"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/ring"
)

// wireLayout is the serialized shape of a lattigo object for fixed parameters.
// Bytes that are the same in every valid encoding (metadata, length headers,
// levels) are pinned to template; the remaining bytes carry coefficients.
//
// lattigo's readers trust the length headers they find in the input, and a
// short or inconsistent buffer can recurse without bound, so untrusted bytes
// are matched against the layout before they reach UnmarshalBinary.
type wireLayout struct {
	what     string
	template []byte
	free     []bool
}

// newWireLayout compares two encodings of the same object, one with every
// free field zeroed and one with every free field set to all ones.
func newWireLayout(what string, zeros, ones []byte) (wireLayout, error) {
	if len(zeros) != len(ones) {
		return wireLayout{}, pir.ErrCrypto.New("%s encodings of %d and %d bytes", what, len(zeros), len(ones))
	}
	free := make([]bool, len(zeros))
	for i := range zeros {
		free[i] = zeros[i] != ones[i]
	}
	return wireLayout{what: what, template: zeros, free: free}, nil
}

func (l wireLayout) size() int { return len(l.template) }

func (l wireLayout) check(data []byte) error {
	if len(data) != len(l.template) {
		return pir.ErrInvalidArgument.New("%s of %d bytes, expected %d", l.what, len(data), len(l.template))
	}
	for i, c := range data {
		if !l.free[i] && c != l.template[i] {
			return pir.ErrInvalidArgument.New("malformed %s: unexpected byte at offset %d", l.what, i)
		}
	}
	return nil
}

// decode runs unmarshal on data once it matches the layout. A panic raised by
// the decoder is reported as a malformed input.
func (l wireLayout) decode(data []byte, unmarshal func([]byte) error) (err error) {
	if err := l.check(data); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = pir.ErrInvalidArgument.New("malformed %s: %v", l.what, r)
		}
	}()
	if err := unmarshal(data); err != nil {
		return pir.ErrInvalidArgument.New("malformed %s: %v", l.what, err)
	}
	return nil
}

func fillPoly(p ring.Poly, v uint64) {
	for _, coeffs := range p.Coeffs {
		for i := range coeffs {
			coeffs[i] = v
		}
	}
}

// ciphertextLayout is the layout of a degree-1 ciphertext at the top level, with
// the metadata produced by an rlwe.Encryptor on a fresh plaintext.
func ciphertextLayout(params rlwe.ParameterProvider) (wireLayout, error) {
	p := params.GetRLWEParameters()
	encode := func(v uint64) ([]byte, error) {
		ct := rlwe.NewCiphertext(p, 1, p.MaxLevel())
		for _, poly := range ct.Value {
			fillPoly(poly, v)
		}
		return ct.MarshalBinary()
	}
	zeros, err := encode(0)
	if err != nil {
		return wireLayout{}, pir.ErrCrypto.Wrap(err)
	}
	ones, err := encode(^uint64(0))
	if err != nil {
		return wireLayout{}, pir.ErrCrypto.Wrap(err)
	}
	return newWireLayout("ciphertext", zeros, ones)
}

// galoisKeyLayout is the layout of a rotation key generated with the default
// evaluation key parameters. The Galois element is free.
func galoisKeyLayout(params rlwe.ParameterProvider) (wireLayout, error) {
	encode := func(v uint64) ([]byte, error) {
		gk := rlwe.NewGaloisKey(params)
		gk.GaloisElement = v
		for _, row := range gk.Value {
			for _, vec := range row {
				for _, poly := range vec {
					fillPoly(poly.Q, v)
					fillPoly(poly.P, v)
				}
			}
		}
		return gk.MarshalBinary()
	}
	zeros, err := encode(0)
	if err != nil {
		return wireLayout{}, pir.ErrCrypto.Wrap(err)
	}
	ones, err := encode(^uint64(0))
	if err != nil {
		return wireLayout{}, pir.ErrCrypto.Wrap(err)
	}
	return newWireLayout("rotation key", zeros, ones)
}

// checkReduced reports the first coefficient of p that is not below its modulus.
func checkReduced(p ring.Poly, moduli []uint64) error {
	for i, coeffs := range p.Coeffs {
		q := moduli[i]
		for j, c := range coeffs {
			if c >= q {
				return fmt.Errorf("coefficient %d modulo q%d = %d is not below %d", j, i, c, q)
			}
		}
	}
	return nil
}
