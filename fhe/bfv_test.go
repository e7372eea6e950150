package fhe_test

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/nulltea/latpir/core"
	"github.com/nulltea/latpir/fhe"
	"github.com/nulltea/latpir/pir"
	"github.com/stretchr/testify/require"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/ring"
)

func testParams() pir.Parameters {
	return pir.Parameters{
		RecordCount:          300,
		RecordSize:           100,
		PolyDegree:           2048,
		PlaintextModulusBits: 12,
		Dimensionality:       2,
	}
}

func testGeometry(t *testing.T) pir.Geometry {
	g, err := testParams().Geometry()
	require.NoError(t, err)
	return g
}

func TestGenerateBGVParams(t *testing.T) {
	g := testGeometry(t)
	lit, err := fhe.GenerateBGVParams(g)
	require.NoError(t, err)
	require.Equal(t, 11, lit.LogN)
	require.Equal(t, uint64(4129), lit.PlaintextModulus)

	params, err := fhe.NewParameters(g)
	require.NoError(t, err)
	require.Equal(t, 2048, params.N())
	require.Len(t, params.Q(), 1)

	small := pir.Parameters{RecordCount: 1, RecordSize: 1, PolyDegree: 8, PlaintextModulusBits: 4, Dimensionality: 1}
	sg, err := small.Geometry()
	require.NoError(t, err)
	_, err = fhe.GenerateBGVParams(sg)
	require.True(t, pir.ErrConfig.Has(err))
}

// The ciphertext modulus grows with the plaintext modulus so that T times the
// estimated reply noise stays below Q/8.
func TestGenerateBGVParamsNoiseBudget(t *testing.T) {
	cases := []struct {
		logT   int
		primes int
	}{
		{logT: 12, primes: 1},
		{logT: 16, primes: 2},
		{logT: 30, primes: 2},
		{logT: pir.MaxPlaintextModulusBits, primes: 3},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("logt=%d", c.logT), func(t *testing.T) {
			p := testParams()
			p.PlaintextModulusBits = c.logT
			g, err := p.Geometry()
			require.NoError(t, err)

			params, err := fhe.NewParameters(g)
			require.NoError(t, err)
			require.Len(t, params.Q(), c.primes)

			logQ := 0.0
			for _, q := range params.Q() {
				require.Less(t, g.T, q)
				logQ += math.Log2(float64(q))
			}
			headroom := logQ - 1 - math.Log2(float64(g.T)) - fhe.ReplyNoiseBits(g, c.primes)
			require.GreaterOrEqual(t, headroom, 2.0)
		})
	}
}

func TestEncryptDecrypt(t *testing.T) {
	g := testGeometry(t)
	client, err := fhe.NewClientBFV(g, nil)
	require.NoError(t, err)

	coeffs := make([]uint64, g.N)
	for i := range coeffs {
		coeffs[i] = uint64(i*31) % g.T
	}
	ct, err := client.Encrypt(coeffs)
	require.NoError(t, err)

	data, err := client.MarshalCiphertext(ct)
	require.NoError(t, err)
	parsed, err := client.UnmarshalCiphertext(data)
	require.NoError(t, err)

	got, err := client.Decrypt(parsed)
	require.NoError(t, err)
	require.Equal(t, coeffs, got)

	_, err = client.Encrypt([]uint64{g.T})
	require.True(t, pir.ErrInvalidArgument.Has(err))
	_, err = client.UnmarshalCiphertext([]byte{0xde, 0xad})
	require.True(t, pir.ErrInvalidArgument.Has(err))
}

// The residues of a ciphertext survive decomposition into plaintext digits and
// recomposition on the client.
func TestResiduesRoundTrip(t *testing.T) {
	g := testGeometry(t)
	client, err := fhe.NewClientBFV(g, nil)
	require.NoError(t, err)
	server, err := fhe.NewServerBFV(g)
	require.NoError(t, err)
	ev, err := server.NewEvaluator(nil, nil)
	require.NoError(t, err)

	coeffs := make([]uint64, g.N)
	for i := range coeffs {
		coeffs[i] = uint64(i) % g.T
	}
	ct, err := client.Encrypt(coeffs)
	require.NoError(t, err)

	rows, err := ev.Residues(ct)
	require.NoError(t, err)
	dec := pir.NewDecomposer(g.UsableBits, server.Polys(), server.Moduli())
	require.Equal(t, 10, dec.Ratio())

	digits, err := dec.Decompose(rows)
	require.NoError(t, err)
	composed, err := dec.Compose(digits)
	require.NoError(t, err)
	require.Equal(t, rows, composed)

	rebuilt, err := client.FromResidues(composed)
	require.NoError(t, err)
	got, err := client.Decrypt(rebuilt)
	require.NoError(t, err)
	require.Equal(t, coeffs, got)
}

func TestExpandQuery(t *testing.T) {
	g := testGeometry(t)
	require.Equal(t, []int{4, 3}, g.Dimensions)

	client, err := fhe.NewClientBFV(g, nil)
	require.NoError(t, err)
	server, err := fhe.NewServerBFV(g)
	require.NoError(t, err)

	galEls := pir.ExpansionGaloisElements(g)
	keys, err := client.GaloisKeys(galEls)
	require.NoError(t, err)
	ev, err := server.NewEvaluator(keys, galEls)
	require.NoError(t, err)

	pos, err := g.Locate(250)
	require.NoError(t, err)
	coeffs, err := g.IndexPolynomial(pos)
	require.NoError(t, err)
	query, err := client.Encrypt(coeffs)
	require.NoError(t, err)

	selectors, err := pir.ExpandQuery(ev, g, query)
	require.NoError(t, err)
	for k, sel := range selectors {
		for i, ct := range sel {
			got, err := client.Decrypt(ct)
			require.NoError(t, err)
			want := make([]uint64, g.N)
			if i == pos.Coords[k] {
				want[0] = 1
			}
			require.Equal(t, want, got, "dimension %d slot %d", k, i)
		}
	}
}

func TestNewEvaluatorKeyMismatch(t *testing.T) {
	g := testGeometry(t)
	client, err := fhe.NewClientBFV(g, nil)
	require.NoError(t, err)
	server, err := fhe.NewServerBFV(g)
	require.NoError(t, err)
	galEls := pir.ExpansionGaloisElements(g)

	partial, err := client.GaloisKeys(galEls[:1])
	require.NoError(t, err)
	_, err = server.NewEvaluator(partial, galEls)
	require.True(t, pir.ErrConfig.Has(err))

	_, err = server.NewEvaluator([]byte{0x0a, 0x03, 0x01}, galEls)
	require.True(t, pir.ErrInvalidArgument.Has(err))
}

func TestPrivateRetrieval(t *testing.T) {
	params := testParams()
	records, err := core.RandomRecords(params.RecordCount, params.RecordSize, 42)
	require.NoError(t, err)

	srv := pir.NewServer(fhe.NewScheme)
	require.NoError(t, srv.Load(context.Background(), params, records))
	client, err := pir.NewClient(params, fhe.NewCryptor)
	require.NoError(t, err)

	for _, idx := range []int{0, 1, 29, 30, 157, 299} {
		q, pos, err := client.Query(idx)
		require.NoError(t, err)
		reply, err := srv.Answer(context.Background(), q)
		require.NoError(t, err)
		require.Len(t, reply.Ciphertexts, 10)

		record, err := client.Decode(reply, pos)
		require.NoError(t, err)
		require.Equal(t, records[idx], record, "record %d", idx)
	}
}

func TestPrivateRetrievalGeometries(t *testing.T) {
	cases := []struct {
		name    string
		params  pir.Parameters
		indices []int
	}{
		{
			name:    "one dimension",
			params:  pir.Parameters{RecordCount: 100, RecordSize: 100, PolyDegree: 2048, PlaintextModulusBits: 12, Dimensionality: 1},
			indices: []int{0, 29, 30, 99},
		},
		{
			name:    "three dimensions",
			params:  pir.Parameters{RecordCount: 300, RecordSize: 100, PolyDegree: 2048, PlaintextModulusBits: 12, Dimensionality: 3},
			indices: []int{0, 150, 299},
		},
		{
			name:    "logt=20",
			params:  pir.Parameters{RecordCount: 300, RecordSize: 100, PolyDegree: 2048, PlaintextModulusBits: 20, Dimensionality: 2},
			indices: []int{0, 150, 299},
		},
		{
			name:    "largest plaintext modulus",
			params:  pir.Parameters{RecordCount: 300, RecordSize: 100, PolyDegree: 2048, PlaintextModulusBits: pir.MaxPlaintextModulusBits, Dimensionality: 2},
			indices: []int{0, 127, 128, 299},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			g, err := c.params.Geometry()
			require.NoError(t, err)
			bgvParams, err := fhe.NewParameters(g)
			require.NoError(t, err)
			ratio := pir.NewDecomposer(g.UsableBits, 2, bgvParams.Q()).Ratio()
			want := 1
			for range g.Dimensions[1:] {
				want *= ratio
			}

			records, err := core.RandomRecords(c.params.RecordCount, c.params.RecordSize, g.T)
			require.NoError(t, err)
			srv := pir.NewServer(fhe.NewScheme)
			require.NoError(t, srv.Load(context.Background(), c.params, records))
			client, err := pir.NewClient(c.params, fhe.NewCryptor)
			require.NoError(t, err)

			for _, idx := range c.indices {
				q, pos, err := client.Query(idx)
				require.NoError(t, err)
				reply, err := srv.Answer(context.Background(), q)
				require.NoError(t, err)
				require.Len(t, reply.Ciphertexts, want)

				record, err := client.Decode(reply, pos)
				require.NoError(t, err)
				require.Equal(t, records[idx], record, "record %d", idx)
			}
		})
	}
}

// Each reply ciphertext decrypts with noise far below Q/2T.
func TestReplyNoiseBudget(t *testing.T) {
	params := testParams()
	records, err := core.RandomRecords(params.RecordCount, params.RecordSize, 3)
	require.NoError(t, err)
	g := testGeometry(t)

	client, err := fhe.NewClientBFV(g, nil)
	require.NoError(t, err)
	server, err := fhe.NewServerBFV(g)
	require.NoError(t, err)
	db, err := pir.BuildDatabase[*rlwe.Ciphertext, ring.Poly](server, g, records, 0)
	require.NoError(t, err)

	galEls := pir.ExpansionGaloisElements(g)
	keys, err := client.GaloisKeys(galEls)
	require.NoError(t, err)
	ev, err := server.NewEvaluator(keys, galEls)
	require.NoError(t, err)

	pos, err := g.Locate(123)
	require.NoError(t, err)
	coeffs, err := g.IndexPolynomial(pos)
	require.NoError(t, err)
	query, err := client.Encrypt(coeffs)
	require.NoError(t, err)
	selectors, err := pir.ExpandQuery(ev, g, query)
	require.NoError(t, err)
	cts, err := pir.GenerateReply[*rlwe.Ciphertext, ring.Poly](ev, server, db, selectors, 0)
	require.NoError(t, err)

	params0 := client.Parameters()
	dec := rlwe.NewDecryptor(params0, client.SecretKey())
	ringQ := params0.RingQ()
	bound := float64(ringQ.ModulusAtLevel[0].Uint64()) / float64(2*g.T)
	for i, ct := range cts {
		pt := dec.DecryptNew(ct)
		ringQ.MulScalar(pt.Value, g.T, pt.Value)
		centered := core.RingPolyToCoeffsCentered(ringQ, pt.Value, false, pt.IsNTT)
		for j, c := range centered {
			noise := float64(c) / float64(g.T)
			if noise < 0 {
				noise = -noise
			}
			require.Less(t, noise, bound/64, "ciphertext %d coefficient %d", i, j)
		}
	}
}
