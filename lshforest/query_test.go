package lshforest

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Three signatures colliding pairwise in different bands: band 0 groups
// {0,1} under (1,2), band 1 groups {0,2} under (3,4).
func newPairwiseForest(t *testing.T) *Forest {
	t.Helper()
	f, err := NewWithStore(4, 2)
	require.NoError(t, err)
	require.NoError(t, f.BatchAdd([][]uint32{
		{1, 2, 3, 4},
		{1, 2, 9, 9},
		{5, 6, 3, 4},
	}))
	f.Index()
	return f
}

func TestQueryMergesBands(t *testing.T) {
	f := newPairwiseForest(t)
	got, err := f.Query([]uint32{1, 2, 3, 4}, 3)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1, 2}, got)
}

func TestQueryStopsAtK(t *testing.T) {
	f := newPairwiseForest(t)
	got, err := f.Query([]uint32{1, 2, 3, 4}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Contains(t, []uint32{0, 1, 2}, got[0])

	refined, err := f.LinearScan([]uint32{1, 2, 3, 4}, got, 1, false)
	require.NoError(t, err)
	require.Equal(t, uint32(0), refined[0].ID)
	require.Equal(t, 0.0, refined[0].Distance)
}

func TestQueryStaleIndex(t *testing.T) {
	f := newPairwiseForest(t)
	_, err := f.Add([]uint32{8, 8, 8, 8})
	require.NoError(t, err)
	_, err = f.Query([]uint32{1, 2, 3, 4}, 1)
	require.ErrorIs(t, err, ErrStaleIndex)

	f.Index()
	_, err = f.Query([]uint32{1, 2, 3, 4}, 1)
	require.NoError(t, err)
}

func TestQueryUnderfill(t *testing.T) {
	f := newPairwiseForest(t)
	got, err := f.Query([]uint32{1, 2, 3, 4}, 10)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1, 2}, got)

	// A signature sharing no prefix with anything returns nothing.
	got, err = f.Query([]uint32{100, 100, 100, 100}, 10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestQueryDuplicateSignatures(t *testing.T) {
	f, err := NewWithStore(4, 2)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.Add([]uint32{0, 0, 0, 0})
		require.NoError(t, err)
	}
	f.Index()
	got, err := f.Query([]uint32{0, 0, 0, 0}, 10)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1, 2}, got)
}

func TestQueryExclude(t *testing.T) {
	f := newPairwiseForest(t)

	// An empty exclude list behaves exactly like Query.
	got, err := f.QueryExclude([]uint32{1, 2, 3, 4}, nil, 3)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1, 2}, got)

	got, err = f.QueryExclude([]uint32{1, 2, 3, 4}, []uint32{0}, 3)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2}, got)
}

func TestQueryByID(t *testing.T) {
	f := newPairwiseForest(t)
	want, err := f.Query([]uint32{1, 2, 3, 4}, 3)
	require.NoError(t, err)
	got, err := f.QueryByID(0, 3)
	require.NoError(t, err)
	require.Equal(t, want, got)

	excl, err := f.QueryExcludeByID(0, []uint32{0}, 3)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2}, excl)
}

func TestBatchQuery(t *testing.T) {
	f := newPairwiseForest(t)
	got, err := f.BatchQuery([][]uint32{
		{1, 2, 3, 4},
		{1, 2, 9, 9},
	}, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, []uint32{0, 1, 2}, got[0])
	require.Contains(t, got[1], uint32(1))
}

// Single-word bands: the probe loop only runs r = 1.
func TestSingleWordBands(t *testing.T) {
	f, err := NewWithStore(4, 4)
	require.NoError(t, err)
	require.Equal(t, uint32(1), f.BandWidth())
	require.NoError(t, f.BatchAdd([][]uint32{
		{1, 2, 3, 4},
		{1, 9, 9, 9},
	}))
	f.Index()
	got, err := f.Query([]uint32{1, 8, 8, 8}, 10)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1}, got)
}

// Memory-backed and file-backed forests must answer identically.
func TestFileBackedMatchesMemory(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sigs := make([][]uint32, 50)
	for i := range sigs {
		sig := make([]uint32, 8)
		for j := range sig {
			sig[j] = rng.Uint32() % 16
		}
		sigs[i] = sig
	}

	mem, err := NewWithStore(8, 4)
	require.NoError(t, err)
	file, err := NewFileBacked(8, 4, filepath.Join(t.TempDir(), "data.dat"))
	require.NoError(t, err)

	require.NoError(t, mem.BatchAdd(sigs))
	require.NoError(t, file.BatchAdd(sigs))
	mem.Index()
	file.Index()

	for i, sig := range sigs {
		want, err := mem.Query(sig, 5)
		require.NoError(t, err)
		got, err := file.Query(sig, 5)
		require.NoError(t, err)
		require.Equal(t, want, got, "query %d", i)

		wantSig, err := mem.Signature(uint32(i))
		require.NoError(t, err)
		gotSig, err := file.Signature(uint32(i))
		require.NoError(t, err)
		require.Equal(t, wantSig, gotSig)

		wantN, err := mem.QueryLinearScan(sig, 3, 3, false)
		require.NoError(t, err)
		gotN, err := file.QueryLinearScan(sig, 3, 3, false)
		require.NoError(t, err)
		require.Equal(t, wantN, gotN)
	}
}
