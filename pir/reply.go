package pir

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// GenerateReply contracts db against the selectors, dimension 0 first.
//
// For dimension k the working set is viewed as n_k blocks of `product` entries and
// intermediate[j] = sum_i selector[i] * working[j + i*product]. Unless k is the last
// dimension, every intermediate ciphertext is decomposed into Ratio() digit
// plaintexts stored at j*ratio+r, and these become the working set of the next
// dimension. The reply holds ratio^(d-1) ciphertexts.
func GenerateReply[C, P any](ev Evaluator[C, P], scheme Scheme[C, P], db *Database[P], selectors [][]C, workers int) ([]C, error) {
	g := db.Geometry
	if len(selectors) != len(g.Dimensions) {
		return nil, ErrInvalidArgument.New("%d selector vectors for %d dimensions", len(selectors), len(g.Dimensions))
	}
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	dec := NewDecomposer(g.UsableBits, scheme.Polys(), scheme.Moduli())
	ratio := dec.Ratio()

	working := db.Slots
	product := len(working)
	for k, sel := range selectors {
		n := g.Dimensions[k]
		if len(sel) != n {
			return nil, ErrInvalidArgument.New("selector %d has %d entries, dimension size is %d", k, len(sel), n)
		}
		product /= n
		last := k == len(selectors)-1

		intermediate := make([]C, product)
		var next []P
		if !last {
			next = make([]P, product*ratio)
		}

		var group errgroup.Group
		group.SetLimit(workers)
		for j := 0; j < product; j++ {
			j := j
			group.Go(func() error {
				pts := make([]P, n)
				for i := range pts {
					pts[i] = working[j+i*product]
				}
				ct, err := ev.InnerProduct(sel, pts)
				if err != nil {
					return fmt.Errorf("dimension %d, column %d: %w", k, j, err)
				}
				intermediate[j] = ct
				if last {
					return nil
				}

				rows, err := ev.Residues(ct)
				if err != nil {
					return fmt.Errorf("dimension %d, column %d: %w", k, j, err)
				}
				digits, err := dec.Decompose(rows)
				if err != nil {
					return err
				}
				for r, digit := range digits {
					if next[j*ratio+r], err = scheme.Preprocess(digit); err != nil {
						return fmt.Errorf("dimension %d, column %d: %w", k, j, err)
					}
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, ErrCrypto.Wrap(err)
		}

		if last {
			return intermediate, nil
		}
		working = next
		product *= ratio
	}
	return nil, ErrInvalidArgument.New("no dimensions")
}
