package core

import (
	"fmt"
	"math"
	"math/big"
	"math/bits"
)

// CeilDiv returns ceil(a / b) for a >= 0 and b > 0.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}

// CeilLog2 returns the smallest l such that 2^l >= n, and 0 for n <= 1.
func CeilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Product multiplies the sizes and reports false if the result overflows an int.
func Product(sizes []int) (int, bool) {
	p := 1
	for _, s := range sizes {
		if s <= 0 {
			return 0, false
		}
		hi, lo := bits.Mul64(uint64(p), uint64(s))
		if hi != 0 || lo > math.MaxInt {
			return 0, false
		}
		p = int(lo)
	}
	return p, true
}

func Sum(sizes []int) int {
	s := 0
	for _, v := range sizes {
		s += v
	}
	return s
}

// IntRoot returns floor(n^(1/d)) for n >= 1 and d >= 1.
func IntRoot(n, d int) int {
	if d == 1 || n <= 1 {
		return n
	}
	r := int(math.Pow(float64(n), 1/float64(d)))
	if r < 1 {
		r = 1
	}
	for r > 1 && !powAtMost(r, d, n) {
		r--
	}
	for powAtMost(r+1, d, n) {
		r++
	}
	return r
}

// powAtMost reports whether b^e <= limit without overflowing.
func powAtMost(b, e, limit int) bool {
	acc := 1
	for i := 0; i < e; i++ {
		if acc > limit/b {
			return false
		}
		acc *= b
	}
	return acc <= limit
}

// NextPrimeCongruent returns the smallest prime p > lower with p = 1 mod m.
func NextPrimeCongruent(lower, m uint64) (uint64, error) {
	if m == 0 {
		return 0, fmt.Errorf("modulus must be positive")
	}
	p := lower - lower%m + 1
	if p <= lower {
		p += m
	}
	for ; p > lower; p += m {
		if new(big.Int).SetUint64(p).ProbablyPrime(20) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("no prime = 1 mod %d above %d fits in 64 bits", m, lower)
}

// InvMod returns a^-1 mod q.
func InvMod(a, q uint64) (uint64, error) {
	inv := new(big.Int).ModInverse(new(big.Int).SetUint64(a), new(big.Int).SetUint64(q))
	if inv == nil {
		return 0, fmt.Errorf("%d is not invertible mod %d", a, q)
	}
	return inv.Uint64(), nil
}

// MulMod returns a*b mod q.
func MulMod(a, b, q uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	_, rem := bits.Div64(hi%q, lo, q)
	return rem
}
