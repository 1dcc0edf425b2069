// Package lshforest implements an approximate nearest-neighbor index over
// fixed-width MinHash signatures, based on the LSH Forest technique: the
// signature is cut into l bands, each band is keyed by the big-endian
// serialization of its words, and queries probe the per-band key space with
// progressively shorter prefixes until enough candidates are found.
//
// The index is not safe for concurrent mutation. The supported pattern is
// phase-based: insert, call Index, then query. Concurrent queries against a
// clean index are safe as long as no insertion is in progress.
package lshforest

import (
	"github.com/tidwall/hashmap"

	"github.com/rpcpool/lshforest/sigstore"
)

// bandRange is the half-open slice [start, end) of signature positions
// covered by one band.
type bandRange struct {
	start uint32
	end   uint32
}

// Forest is an LSH Forest index over d-wide uint32 signatures.
type Forest struct {
	dims      uint32 // signature width (d)
	bands     uint32 // number of bands (l)
	bandWidth uint32 // words per band (k = d/l)

	size  uint32 // number of insertions; also the next ID
	clean bool   // sorted prefix indexes reflect the tables

	tables []*hashmap.Map[string, []uint32] // per band: key -> IDs in insertion order
	ranges []bandRange
	sorted [][]string // per band: table keys in ascending byte order

	store sigstore.Store // nil when the forest does not retain signatures
}

// New returns a forest that does not retain raw signatures. Operations that
// need them (refinement, by-ID queries, distances) return ErrStoreDisabled.
func New(dims, bands uint32) (*Forest, error) {
	return newForest(dims, bands, nil)
}

// NewWithStore returns a forest that keeps every inserted signature in
// memory, addressable by insertion ID.
func NewWithStore(dims, bands uint32) (*Forest, error) {
	return newForest(dims, bands, sigstore.NewMemory(dims))
}

// NewFileBacked returns a forest that appends every inserted signature to
// the file at dataPath as packed little-endian words, keeping memory usage
// independent of the index size.
func NewFileBacked(dims, bands uint32, dataPath string) (*Forest, error) {
	if dims == 0 || bands == 0 || bands > dims {
		return nil, ErrBandsExceedDims
	}
	fs, err := sigstore.NewFile(dims, dataPath)
	if err != nil {
		return nil, err
	}
	return newForest(dims, bands, fs)
}

func newForest(dims, bands uint32, store sigstore.Store) (*Forest, error) {
	if dims == 0 || bands == 0 || bands > dims {
		return nil, ErrBandsExceedDims
	}
	f := &Forest{
		dims:      dims,
		bands:     bands,
		bandWidth: dims / bands,
		store:     store,
	}
	f.alloc()
	return f, nil
}

// alloc (re)creates the empty per-band structures from the current params.
func (f *Forest) alloc() {
	f.tables = make([]*hashmap.Map[string, []uint32], f.bands)
	f.ranges = make([]bandRange, f.bands)
	f.sorted = make([][]string, f.bands)
	for i := uint32(0); i < f.bands; i++ {
		f.tables[i] = hashmap.New[string, []uint32](0)
		f.ranges[i] = bandRange{start: i * f.bandWidth, end: (i + 1) * f.bandWidth}
	}
}

// Dims returns the signature width the forest was built for.
func (f *Forest) Dims() uint32 { return f.dims }

// Bands returns the number of bands.
func (f *Forest) Bands() uint32 { return f.bands }

// BandWidth returns the number of words per band.
func (f *Forest) BandWidth() uint32 { return f.bandWidth }

// Size returns the number of inserted signatures.
func (f *Forest) Size() int { return int(f.size) }

// IsClean reports whether the sorted prefix indexes reflect the current
// hash tables. Inserting flips it to false; Index flips it back.
func (f *Forest) IsClean() bool { return f.clean }

// Stores reports whether the forest retains raw signatures.
func (f *Forest) Stores() bool { return f.store != nil }

// Signature returns the signature inserted under id.
func (f *Forest) Signature(id uint32) ([]uint32, error) {
	if f.store == nil {
		return nil, ErrStoreDisabled
	}
	return f.store.Get(id)
}

// Clear drops all inserted data and resets the forest to its freshly
// constructed state. A file-backed store is truncated so that IDs assigned
// after the clear stay aligned with file offsets.
func (f *Forest) Clear() error {
	f.alloc()
	f.size = 0
	f.clean = false
	if f.store != nil {
		if err := f.store.Clear(); err != nil {
			return err
		}
	}
	return nil
}
