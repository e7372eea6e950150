package pir

import (
	"fmt"
	"runtime"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

// Database is the server-resident, preprocessed record set. It is immutable once
// built and shared by all queries.
type Database[P any] struct {
	Geometry Geometry
	// Slots has Capacity() entries in row-major order, dimension 0 most significant.
	Slots []P
	// Used is the number of slots carrying records; the rest hold the sentinel.
	Used   int
	Digest [32]byte
}

// Layout places the encoded plaintexts in the slots of the dimension vector and
// fills the remaining slots with the all-ones sentinel.
func Layout(g Geometry, encoded [][]uint64) ([][]uint64, error) {
	capacity := g.Capacity()
	if len(encoded) > capacity {
		return nil, ErrInvalidArgument.New("%d plaintexts do not fit dimension vector %v", len(encoded), g.Dimensions)
	}
	slots := make([][]uint64, capacity)
	copy(slots, encoded)
	if len(encoded) < capacity {
		sentinel := make([]uint64, g.N)
		for i := range sentinel {
			sentinel[i] = 1
		}
		for i := len(encoded); i < capacity; i++ {
			slots[i] = sentinel
		}
	}
	return slots, nil
}

// Preprocess runs pre on every slot with at most workers goroutines.
func Preprocess[P any](slots [][]uint64, pre func([]uint64) (P, error), workers int) ([]P, error) {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]P, len(slots))
	var group errgroup.Group
	group.SetLimit(workers)
	for i := range slots {
		i := i
		group.Go(func() error {
			p, err := pre(slots[i])
			if err != nil {
				return fmt.Errorf("preprocess slot %d: %w", i, err)
			}
			out[i] = p
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// BuildDatabase encodes, lays out and preprocesses records for scheme.
func BuildDatabase[C, P any](scheme Scheme[C, P], g Geometry, records [][]byte, workers int) (*Database[P], error) {
	if scheme.Degree() != g.N || scheme.PlaintextModulus() != g.T {
		return nil, ErrConfig.New("backend has degree %d and plaintext modulus %d, geometry needs %d and %d",
			scheme.Degree(), scheme.PlaintextModulus(), g.N, g.T)
	}
	if len(records) != g.Params.RecordCount {
		return nil, ErrConfig.New("got %d records, parameters announce %d", len(records), g.Params.RecordCount)
	}
	flat, size, err := Flatten(records)
	if err != nil {
		return nil, err
	}
	if size != g.Params.RecordSize {
		return nil, ErrConfig.New("records have %d bytes, parameters announce %d", size, g.Params.RecordSize)
	}

	encoded, err := EncodeRecords(g, flat)
	if err != nil {
		return nil, err
	}
	slots, err := Layout(g, encoded)
	if err != nil {
		return nil, err
	}
	pts, err := Preprocess(slots, scheme.Preprocess, workers)
	if err != nil {
		return nil, ErrCrypto.Wrap(err)
	}

	return &Database[P]{
		Geometry: g,
		Slots:    pts,
		Used:     len(encoded),
		Digest:   blake3.Sum256(flat),
	}, nil
}
