package pir

import (
	"fmt"
)

// Client builds queries and decodes replies for one parameter set. It holds the
// secret key material of its Cryptor and may be reused for many queries.
type Client[C any] struct {
	geom        Geometry
	cryptor     Cryptor[C]
	dec         Decomposer
	fingerprint []byte
	keys        []byte
}

func NewClient[C any](params Parameters, newCryptor CryptorFactory[C]) (*Client[C], error) {
	g, err := params.Geometry()
	if err != nil {
		return nil, err
	}
	cryptor, err := newCryptor(g)
	if err != nil {
		return nil, ErrConfig.Wrap(err)
	}
	if cryptor.Degree() != g.N || cryptor.PlaintextModulus() != g.T {
		return nil, ErrConfig.New("backend has degree %d and plaintext modulus %d, geometry needs %d and %d",
			cryptor.Degree(), cryptor.PlaintextModulus(), g.N, g.T)
	}
	keys, err := cryptor.GaloisKeys(ExpansionGaloisElements(g))
	if err != nil {
		return nil, ErrCrypto.Wrap(err)
	}
	return &Client[C]{
		geom:        g,
		cryptor:     cryptor,
		dec:         NewDecomposer(g.UsableBits, cryptor.Polys(), cryptor.Moduli()),
		fingerprint: Fingerprint(g, cryptor.Moduli()),
		keys:        keys,
	}, nil
}

func (c *Client[C]) Geometry() Geometry {
	return c.geom
}

// Query encrypts the position of record index. It fails before any encryption
// if the index is out of range.
func (c *Client[C]) Query(index int) (Query, Position, error) {
	pos, err := c.geom.Locate(index)
	if err != nil {
		return Query{}, Position{}, err
	}
	coeffs, err := c.geom.IndexPolynomial(pos)
	if err != nil {
		return Query{}, Position{}, err
	}
	ct, err := c.cryptor.Encrypt(coeffs)
	if err != nil {
		return Query{}, Position{}, ErrCrypto.Wrap(err)
	}
	data, err := c.cryptor.MarshalCiphertext(ct)
	if err != nil {
		return Query{}, Position{}, ErrCrypto.Wrap(err)
	}
	return Query{Index: data, GaloisKeys: c.keys, Fingerprint: c.fingerprint}, pos, nil
}

// DecryptReply undoes the decompositions of GenerateReply and returns the
// coefficients of the selected plaintext.
func (c *Client[C]) DecryptReply(reply Reply) ([]uint64, error) {
	ratio := c.dec.Ratio()
	rounds := len(c.geom.Dimensions) - 1
	want := 1
	for i := 0; i < rounds; i++ {
		want *= ratio
	}
	if len(reply.Ciphertexts) != want {
		return nil, ErrInvalidArgument.New("reply has %d ciphertexts, expected %d", len(reply.Ciphertexts), want)
	}

	cts := make([]C, len(reply.Ciphertexts))
	for i, data := range reply.Ciphertexts {
		ct, err := c.cryptor.UnmarshalCiphertext(data)
		if err != nil {
			return nil, ErrInvalidArgument.Wrap(err)
		}
		cts[i] = ct
	}

	for round := 0; round < rounds; round++ {
		next := make([]C, 0, len(cts)/ratio)
		for start := 0; start < len(cts); start += ratio {
			digits := make([][]uint64, ratio)
			for r := range digits {
				coeffs, err := c.cryptor.Decrypt(cts[start+r])
				if err != nil {
					return nil, ErrCrypto.Wrap(err)
				}
				digits[r] = coeffs
			}
			rows, err := c.dec.Compose(digits)
			if err != nil {
				return nil, fmt.Errorf("round %d: %w", round, err)
			}
			ct, err := c.cryptor.FromResidues(rows)
			if err != nil {
				return nil, ErrCrypto.Wrap(err)
			}
			next = append(next, ct)
		}
		cts = next
	}

	coeffs, err := c.cryptor.Decrypt(cts[0])
	if err != nil {
		return nil, ErrCrypto.Wrap(err)
	}
	return coeffs, nil
}

// Decode decrypts reply and extracts the record at pos.
func (c *Client[C]) Decode(reply Reply, pos Position) ([]byte, error) {
	coeffs, err := c.DecryptReply(reply)
	if err != nil {
		return nil, err
	}
	return DecodeRecord(c.geom, coeffs, pos.Offset)
}
