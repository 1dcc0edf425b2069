package lshforest

import "slices"

// Query returns up to k candidate IDs whose signatures collide with sig in
// at least one band, probing each band from the full band width down to a
// single-word prefix until k candidates are gathered. Fewer than k results
// is a documented outcome, not an error. Results are in ascending ID order.
//
// Query returns ErrStaleIndex if signatures were inserted after the last
// Index call.
func (f *Forest) Query(sig []uint32, k int) ([]uint32, error) {
	if err := f.queryCheck(sig); err != nil {
		return nil, err
	}
	return f.query(sig, k, nil), nil
}

// QueryExclude is Query with the given IDs skipped during collection.
func (f *Forest) QueryExclude(sig []uint32, exclude []uint32, k int) ([]uint32, error) {
	if err := f.queryCheck(sig); err != nil {
		return nil, err
	}
	return f.query(sig, k, exclude), nil
}

// QueryByID queries with the stored signature of id.
func (f *Forest) QueryByID(id uint32, k int) ([]uint32, error) {
	sig, err := f.Signature(id)
	if err != nil {
		return nil, err
	}
	return f.Query(sig, k)
}

// QueryExcludeByID queries with the stored signature of id, skipping the
// given IDs.
func (f *Forest) QueryExcludeByID(id uint32, exclude []uint32, k int) ([]uint32, error) {
	sig, err := f.Signature(id)
	if err != nil {
		return nil, err
	}
	return f.QueryExclude(sig, exclude, k)
}

// BatchQuery runs Query for every signature and returns the per-signature
// results.
func (f *Forest) BatchQuery(sigs [][]uint32, k int) ([][]uint32, error) {
	out := make([][]uint32, len(sigs))
	for i, sig := range sigs {
		ids, err := f.Query(sig, k)
		if err != nil {
			return nil, err
		}
		out[i] = ids
	}
	return out, nil
}

func (f *Forest) queryCheck(sig []uint32) error {
	if uint32(len(sig)) != f.dims {
		return ErrWidthMismatch
	}
	if !f.clean {
		return ErrStaleIndex
	}
	return nil
}

func (f *Forest) query(sig []uint32, k int, exclude []uint32) []uint32 {
	if k <= 0 {
		return nil
	}
	results := make(map[uint32]struct{}, k)
	for r := f.bandWidth; r >= 1; r-- {
		f.probe(sig, r, k, exclude, results)
		if len(results) >= k {
			break
		}
	}
	out := make([]uint32, 0, len(results))
	for id := range results {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// probe visits every band with a prefix of r words, walking the sorted
// prefix index forward from the lower bound while keys keep matching the
// prefix, and stops the whole probe as soon as k candidates are collected.
func (f *Forest) probe(sig []uint32, r uint32, k int, exclude []uint32, results map[uint32]struct{}) {
	prefixLen := int(4 * r)
	for band := range f.tables {
		prefix := bandKey(sig, f.ranges[band].start, r)
		keys := f.sorted[band]
		j := lowerBound(keys, prefix)
		for ; j < len(keys) && keys[j][:prefixLen] == prefix; j++ {
			ids, _ := f.tables[band].Get(keys[j])
			for _, id := range ids {
				if len(exclude) != 0 && slices.Contains(exclude, id) {
					continue
				}
				results[id] = struct{}{}
				if len(results) >= k {
					return
				}
			}
		}
	}
}
