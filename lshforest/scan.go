package lshforest

import (
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/rpcpool/lshforest/sigstore"
)

// Neighbor is a refined query result: a candidate ID and its distance from
// the query signature.
type Neighbor struct {
	ID       uint32
	Distance float64
}

// Distance returns the Jaccard distance estimate between two signatures of
// the forest's width: one minus the fraction of positions where they agree.
func (f *Forest) Distance(a, b []uint32) float64 {
	intersect := 0
	for i := uint32(0); i < f.dims; i++ {
		if a[i] == b[i] {
			intersect++
		}
	}
	return 1 - float64(intersect)/float64(f.dims)
}

// WeightedDistance treats the signature as d/2 (value, weight) pairs at
// positions (2i, 2i+1) and returns one minus the fraction of pairs where
// both words agree. The signature width must be even; a trailing unpaired
// word is ignored.
func (f *Forest) WeightedDistance(a, b []uint32) float64 {
	intersect := 0
	for i := uint32(0); i+1 < f.dims; i += 2 {
		if a[i] == b[i] && a[i+1] == b[i+1] {
			intersect++
		}
	}
	return 1 - 2*float64(intersect)/float64(f.dims)
}

// DistanceByID returns the Jaccard distance between two stored signatures.
func (f *Forest) DistanceByID(a, b uint32) (float64, error) {
	sigA, err := f.Signature(a)
	if err != nil {
		return 0, err
	}
	sigB, err := f.Signature(b)
	if err != nil {
		return 0, err
	}
	return f.Distance(sigA, sigB), nil
}

// WeightedDistanceByID returns the weighted Jaccard distance between two
// stored signatures.
func (f *Forest) WeightedDistanceByID(a, b uint32) (float64, error) {
	if f.dims%2 != 0 {
		return 0, ErrOddDims
	}
	sigA, err := f.Signature(a)
	if err != nil {
		return 0, err
	}
	sigB, err := f.Signature(b)
	if err != nil {
		return 0, err
	}
	return f.WeightedDistance(sigA, sigB), nil
}

// LinearScan scores every candidate against sig and returns the top k by
// ascending (distance, ID). k <= 0 or k beyond the candidate count returns
// all scored candidates.
func (f *Forest) LinearScan(sig []uint32, candidates []uint32, k int, weighted bool) ([]Neighbor, error) {
	rd, err := f.scanReader(sig, weighted)
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	return f.scanWith(rd, sig, candidates, k, weighted)
}

// FastLinearScan scores every candidate against sig and returns the
// distances unsorted, parallel to the candidate list.
func (f *Forest) FastLinearScan(sig []uint32, candidates []uint32, weighted bool) ([]float64, error) {
	rd, err := f.scanReader(sig, weighted)
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	out := make([]float64, len(candidates))
	for i, id := range candidates {
		data, err := rd.Get(id)
		if err != nil {
			return nil, fmt.Errorf("failed to read signature %d: %w", id, err)
		}
		if weighted {
			out[i] = f.WeightedDistance(sig, data)
		} else {
			out[i] = f.Distance(sig, data)
		}
	}
	return out, nil
}

// QueryLinearScan gathers k*kc approximate candidates via Query and refines
// them to the top k by exact distance. kc trades recall against scan cost.
func (f *Forest) QueryLinearScan(sig []uint32, k, kc int, weighted bool) ([]Neighbor, error) {
	return f.queryLinearScan(sig, nil, k, kc, weighted)
}

// QueryLinearScanExclude is QueryLinearScan with the given IDs excluded
// from the candidate pool.
func (f *Forest) QueryLinearScanExclude(sig []uint32, exclude []uint32, k, kc int, weighted bool) ([]Neighbor, error) {
	return f.queryLinearScan(sig, exclude, k, kc, weighted)
}

// QueryLinearScanByID runs QueryLinearScan with the stored signature of id.
func (f *Forest) QueryLinearScanByID(id uint32, k, kc int, weighted bool) ([]Neighbor, error) {
	sig, err := f.Signature(id)
	if err != nil {
		return nil, err
	}
	return f.queryLinearScan(sig, nil, k, kc, weighted)
}

// QueryLinearScanExcludeByID runs QueryLinearScanExclude with the stored
// signature of id.
func (f *Forest) QueryLinearScanExcludeByID(id uint32, exclude []uint32, k, kc int, weighted bool) ([]Neighbor, error) {
	sig, err := f.Signature(id)
	if err != nil {
		return nil, err
	}
	return f.queryLinearScan(sig, exclude, k, kc, weighted)
}

func (f *Forest) queryLinearScan(sig []uint32, exclude []uint32, k, kc int, weighted bool) ([]Neighbor, error) {
	rd, err := f.scanReader(sig, weighted)
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	if err := f.queryCheck(sig); err != nil {
		return nil, err
	}
	candidates := f.query(sig, k*kc, exclude)
	return f.scanWith(rd, sig, candidates, k, weighted)
}

// AllDistances returns the distance from sig to every stored signature,
// indexed by ID. Chunks of the ID space are scored in parallel.
func (f *Forest) AllDistances(sig []uint32) ([]float64, error) {
	if f.store == nil {
		return nil, ErrStoreDisabled
	}
	if uint32(len(sig)) != f.dims {
		return nil, ErrWidthMismatch
	}
	rd, err := f.store.Reader()
	if err != nil {
		return nil, err
	}
	defer rd.Close()

	n := int(f.size)
	out := make([]float64, n)
	workers := runtime.NumCPU()
	chunk := (n + workers - 1) / workers
	g := new(errgroup.Group)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				data, err := rd.Get(uint32(i))
				if err != nil {
					return fmt.Errorf("failed to read signature %d: %w", i, err)
				}
				out[i] = f.Distance(sig, data)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// scanReader validates the refinement preconditions and opens a bulk read
// session on the signature store.
func (f *Forest) scanReader(sig []uint32, weighted bool) (sigstore.Reader, error) {
	if f.store == nil {
		return nil, ErrStoreDisabled
	}
	if uint32(len(sig)) != f.dims {
		return nil, ErrWidthMismatch
	}
	if weighted && f.dims%2 != 0 {
		return nil, ErrOddDims
	}
	return f.store.Reader()
}

// scanWith is LinearScan over an already-open read session.
func (f *Forest) scanWith(rd sigstore.Reader, sig []uint32, candidates []uint32, k int, weighted bool) ([]Neighbor, error) {
	out := make([]Neighbor, len(candidates))
	for i, id := range candidates {
		data, err := rd.Get(id)
		if err != nil {
			return nil, fmt.Errorf("failed to read signature %d: %w", id, err)
		}
		dist := 0.0
		if weighted {
			dist = f.WeightedDistance(sig, data)
		} else {
			dist = f.Distance(sig, data)
		}
		out[i] = Neighbor{ID: id, Distance: dist}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	if k <= 0 || k > len(out) {
		k = len(out)
	}
	return out[:k], nil
}
