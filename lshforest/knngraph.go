package lshforest

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// NoNeighbor fills the to-slots of rows that produced fewer than k
// neighbors; the matching weight slot is 1.
const NoNeighbor = uint32(math.MaxUint32)

// KNNGraph computes the k-nearest-neighbor edge list over all stored
// signatures: for every ID i, the row [i*k, (i+1)*k) of the returned
// parallel slices holds up to k edges (i, to, weight) refined via
// QueryLinearScan with over-fetch multiplier kc. Rows are computed in
// parallel. Under-filled slots carry to == NoNeighbor and weight == 1.
func (f *Forest) KNNGraph(k, kc int, weighted bool) (from, to []uint32, weight []float64, err error) {
	if f.store == nil {
		return nil, nil, nil, ErrStoreDisabled
	}
	if !f.clean {
		return nil, nil, nil, ErrStaleIndex
	}
	if weighted && f.dims%2 != 0 {
		return nil, nil, nil, ErrOddDims
	}
	if k <= 0 {
		return nil, nil, nil, fmt.Errorf("lshforest: k must be positive, got %d", k)
	}

	n := int(f.size)
	from = make([]uint32, n*k)
	to = make([]uint32, n*k)
	weight = make([]float64, n*k)

	rd, err := f.store.Reader()
	if err != nil {
		return nil, nil, nil, err
	}
	defer rd.Close()

	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			sig, err := rd.Get(uint32(i))
			if err != nil {
				return fmt.Errorf("failed to read signature %d: %w", i, err)
			}
			candidates := f.query(sig, k*kc, nil)
			row, err := f.scanWith(rd, sig, candidates, k, weighted)
			if err != nil {
				return err
			}
			for j := 0; j < k; j++ {
				slot := i*k + j
				from[slot] = uint32(i)
				if j < len(row) {
					to[slot] = row[j].ID
					weight[slot] = row[j].Distance
				} else {
					to[slot] = NoNeighbor
					weight[slot] = 1
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return from, to, weight, nil
}
