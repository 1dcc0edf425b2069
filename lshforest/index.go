package lshforest

import (
	"sort"

	"golang.org/x/sync/errgroup"
)

// Index builds the sorted prefix index of every band from its hash table
// and marks the forest clean. Bands are independent and sorted in parallel.
// Any subsequent insertion invalidates the result.
func (f *Forest) Index() {
	g := new(errgroup.Group)
	for band := range f.tables {
		g.Go(func() error {
			keys := f.tables[band].Keys()
			sort.Strings(keys)
			f.sorted[band] = keys
			return nil
		})
	}
	_ = g.Wait()
	f.clean = true
}
