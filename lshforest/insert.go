package lshforest

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Add inserts a single signature and returns its assigned ID. IDs are
// allocated sequentially starting at 0 and never reused. The forest is
// marked stale; call Index before the next query.
func (f *Forest) Add(sig []uint32) (uint32, error) {
	if uint32(len(sig)) != f.dims {
		return 0, ErrWidthMismatch
	}
	id := f.size
	if f.store != nil {
		if err := f.store.Put(id, sig); err != nil {
			return 0, fmt.Errorf("failed to store signature %d: %w", id, err)
		}
	}
	for band := range f.tables {
		f.appendToBand(band, id, sig, f.bandWidth)
	}
	f.size++
	f.clean = false
	return id, nil
}

// BatchAdd inserts the given signatures with contiguously assigned IDs,
// equivalent to calling Add in order. IDs are fixed up front and the bands
// are filled in parallel; within a band, bucket order stays insertion order.
func (f *Forest) BatchAdd(sigs [][]uint32) error {
	for i, sig := range sigs {
		if uint32(len(sig)) != f.dims {
			return fmt.Errorf("signature %d: %w", i, ErrWidthMismatch)
		}
	}
	if len(sigs) == 0 {
		return nil
	}
	first := f.size
	if f.store != nil {
		if err := f.store.PutBatch(first, sigs); err != nil {
			return fmt.Errorf("failed to store signature batch: %w", err)
		}
	}
	g := new(errgroup.Group)
	for band := range f.tables {
		g.Go(func() error {
			for j, sig := range sigs {
				f.appendToBand(band, first+uint32(j), sig, f.bandWidth)
			}
			return nil
		})
	}
	_ = g.Wait()
	f.size += uint32(len(sigs))
	f.clean = false
	return nil
}

// appendToBand hashes sig's slice for the given band at prefix length r and
// appends id to the bucket. Each band is owned by at most one goroutine at
// a time.
func (f *Forest) appendToBand(band int, id uint32, sig []uint32, r uint32) {
	key := bandKey(sig, f.ranges[band].start, r)
	ids, _ := f.tables[band].Get(key)
	f.tables[band].Set(key, append(ids, id))
}
