package core

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/tuneinsight/lattigo/v6/ring"
	"golang.org/x/crypto/chacha20"
)

func ringPolyToBigintCentered(ring *ring.Ring, poly ring.Poly, isMontgomery bool, isNTT bool) []*big.Int {
	if isMontgomery {
		ring.IMForm(poly, poly)
	}
	if isNTT {
		ring.INTT(poly, poly)
	}

	bigInts := make([]*big.Int, ring.N())
	for i := range bigInts {
		bigInts[i] = big.NewInt(0)
	}

	ring.PolyToBigintCentered(poly, 1, bigInts)
	return bigInts
}

// RingPolyToCoeffsCentered returns the centered coefficients of poly. Coefficients
// must fit in an int64. poly is modified in place.
func RingPolyToCoeffsCentered(ring *ring.Ring, poly ring.Poly, isMontgomery bool, isNTT bool) []int64 {
	bigInts := ringPolyToBigintCentered(ring, poly, isMontgomery, isNTT)

	coeffs := make([]int64, ring.N())
	for i := range coeffs {
		coeffs[i] = bigInts[i].Int64()
	}

	return coeffs
}

// RingPolyToCoeffsModT reduces the centered coefficients of poly modulo t. poly is
// modified in place.
func RingPolyToCoeffsModT(ring *ring.Ring, poly ring.Poly, t uint64, isMontgomery bool, isNTT bool) []uint64 {
	bigInts := ringPolyToBigintCentered(ring, poly, isMontgomery, isNTT)

	modT := new(big.Int).SetUint64(t)
	coeffs := make([]uint64, ring.N())
	for i, v := range bigInts {
		coeffs[i] = v.Mod(v, modT).Uint64()
	}

	return coeffs
}

// RandomRecords generates count records of size bytes from a ChaCha20 stream
// keyed by seed, so that the same seed always yields the same database.
func RandomRecords(count, size int, seed uint64) ([][]byte, error) {
	if count <= 0 || size <= 0 {
		return nil, fmt.Errorf("record count and size must be positive")
	}

	key := make([]byte, chacha20.KeySize)
	binary.LittleEndian.PutUint64(key, seed)
	cipher, err := chacha20.NewUnauthenticatedCipher(key, make([]byte, chacha20.NonceSize))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ChaCha20: %v", err)
	}

	records := make([][]byte, count)
	for i := range records {
		records[i] = make([]byte, size)
		cipher.XORKeyStream(records[i], records[i])
	}

	return records, nil
}
