package pir

import "fmt"

// ExpansionGaloisElements returns the automorphism of every expansion round:
// N/2^i + 1 for round i.
func ExpansionGaloisElements(g Geometry) []uint64 {
	galEls := make([]uint64, g.ExpansionRounds())
	for i := range galEls {
		galEls[i] = uint64(g.N>>i) + 1
	}
	return galEls
}

// ExpandQuery turns the encrypted index polynomial into one selector vector per
// dimension.
//
// Round i takes the 2^i ciphertexts produced so far, each holding the
// coefficients of one residue class mod 2^i at multiples of 2^i, and splits every
// one of them in two with ct + sigma(ct) and (ct - sigma(ct)) * X^(-2^i), where
// sigma is the automorphism X -> X^(N/2^i + 1). Outputs are kept in coefficient
// order, so after the last round ciphertext j holds 2^l times coefficient j. In the
// last round the odd halves past ExpansionSize are known to be zero and the
// even half is only doubled.
func ExpandQuery[C, P any](ev Evaluator[C, P], g Geometry, query C) ([][]C, error) {
	m := g.ExpansionSize()
	rounds := g.ExpansionRounds()
	galEls := ExpansionGaloisElements(g)

	cts := []C{query}
	for i := 0; i < rounds; i++ {
		half := len(cts)
		last := i == rounds-1
		next := make([]C, 2*half)
		for j, ct := range cts {
			if last && j+half >= m {
				doubled, err := ev.Add(ct, ct)
				if err != nil {
					return nil, fmt.Errorf("expand round %d: %w", i, err)
				}
				next[j] = doubled
				continue
			}

			rotated, err := ev.Automorphism(ct, galEls[i])
			if err != nil {
				return nil, fmt.Errorf("expand round %d: %w", i, err)
			}
			if next[j], err = ev.Add(ct, rotated); err != nil {
				return nil, fmt.Errorf("expand round %d: %w", i, err)
			}
			diff, err := ev.Sub(ct, rotated)
			if err != nil {
				return nil, fmt.Errorf("expand round %d: %w", i, err)
			}
			if next[j+half], err = ev.MulByMonomialInverse(diff, i); err != nil {
				return nil, fmt.Errorf("expand round %d: %w", i, err)
			}
		}
		cts = next
	}

	selectors := make([][]C, len(g.Dimensions))
	for k, off := range g.Offsets() {
		selectors[k] = cts[off : off+g.Dimensions[k]]
	}
	return selectors, nil
}
