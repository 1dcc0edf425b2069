package lshforest

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpcpool/lshforest/indexmeta"
)

func randomSigs(seed int64, n, dims int) [][]uint32 {
	rng := rand.New(rand.NewSource(seed))
	sigs := make([][]uint32, n)
	for i := range sigs {
		sig := make([]uint32, dims)
		for j := range sig {
			sig[j] = rng.Uint32() % 32
		}
		sigs[i] = sig
	}
	return sigs
}

func TestStoreRestoreRoundTrip(t *testing.T) {
	sigs := randomSigs(42, 100, 8)
	f, err := NewWithStore(8, 4)
	require.NoError(t, err)
	require.NoError(t, f.BatchAdd(sigs))
	f.Index()

	want, err := f.BatchQuery(sigs, 5)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "index.bin")
	require.NoError(t, f.Store(path))

	restored, err := Open(path)
	require.NoError(t, err)
	require.True(t, restored.IsClean())
	require.Equal(t, f.Size(), restored.Size())
	require.Equal(t, f.Dims(), restored.Dims())
	require.Equal(t, f.Bands(), restored.Bands())

	got, err := restored.BatchQuery(sigs, 5)
	require.NoError(t, err)
	require.Equal(t, want, got)

	// The signature payload made it across too.
	for i := range sigs {
		sig, err := restored.Signature(uint32(i))
		require.NoError(t, err)
		require.Equal(t, sigs[i], sig)
	}
}

func TestRestoreClearsExistingState(t *testing.T) {
	f, err := NewWithStore(4, 2)
	require.NoError(t, err)
	require.NoError(t, f.BatchAdd([][]uint32{{1, 2, 3, 4}, {5, 6, 7, 8}}))
	f.Index()
	path := filepath.Join(t.TempDir(), "index.bin")
	require.NoError(t, f.Store(path))

	other, err := NewWithStore(8, 8)
	require.NoError(t, err)
	require.NoError(t, other.BatchAdd(randomSigs(1, 10, 8)))
	other.Index()

	require.NoError(t, other.Restore(path))
	require.Equal(t, 2, other.Size())
	require.Equal(t, uint32(4), other.Dims())
	got, err := other.Query([]uint32{1, 2, 3, 4}, 10)
	require.NoError(t, err)
	require.Equal(t, []uint32{0}, got)
}

func TestStoreRestoreFileBacked(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.dat")
	sigs := randomSigs(3, 40, 8)

	f, err := NewFileBacked(8, 4, dataPath)
	require.NoError(t, err)
	require.NoError(t, f.BatchAdd(sigs))
	f.Index()
	want, err := f.QueryLinearScanByID(7, 5, 3, false)
	require.NoError(t, err)

	path := filepath.Join(dir, "index.bin")
	require.NoError(t, f.Store(path))

	// The dump holds no payload; the backing file does.
	restored, err := NewFileBacked(8, 4, dataPath)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(path))
	require.Equal(t, len(sigs), restored.Size())

	got, err := restored.QueryLinearScanByID(7, 5, 3, false)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestRestoreRejectsCorruption(t *testing.T) {
	f, err := NewWithStore(4, 2)
	require.NoError(t, err)
	require.NoError(t, f.BatchAdd([][]uint32{{1, 2, 3, 4}}))
	f.Index()
	path := filepath.Join(t.TempDir(), "index.bin")
	require.NoError(t, f.Store(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)/2] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	fresh := &Forest{}
	err = fresh.Restore(path)
	require.ErrorContains(t, err, "checksum")
}

func TestRestoreRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-an-index.bin")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a dump"), 0o644))
	_, err := Open(path)
	require.Error(t, err)
}

func TestStoreIsAtomic(t *testing.T) {
	f, err := NewWithStore(4, 2)
	require.NoError(t, err)
	require.NoError(t, f.BatchAdd([][]uint32{{1, 2, 3, 4}}))
	f.Index()

	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")
	require.NoError(t, f.Store(path))

	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestInspect(t *testing.T) {
	f, err := NewWithStore(8, 4)
	require.NoError(t, err)
	require.NoError(t, f.BatchAdd(randomSigs(9, 25, 8)))
	f.Index()
	path := filepath.Join(t.TempDir(), "index.bin")
	require.NoError(t, f.Store(path))

	info, err := Inspect(path)
	require.NoError(t, err)
	require.Equal(t, uint32(8), info.Dims)
	require.Equal(t, uint32(4), info.Bands)
	require.Equal(t, uint32(2), info.BandWidth)
	require.Equal(t, uint32(25), info.Size)
	require.True(t, info.Stored)
	require.True(t, info.Clean)
	kind, ok := info.Meta.GetString(indexmeta.KeyKind)
	require.True(t, ok)
	require.Equal(t, Kind, kind)
	require.Positive(t, info.FileSize)
}

// Dumps of equal forests are byte-identical.
func TestStoreDeterministic(t *testing.T) {
	dir := t.TempDir()
	build := func(name string) string {
		f, err := NewWithStore(8, 4)
		require.NoError(t, err)
		require.NoError(t, f.BatchAdd(randomSigs(11, 30, 8)))
		f.Index()
		path := filepath.Join(dir, name)
		require.NoError(t, f.Store(path))
		return path
	}
	a, err := os.ReadFile(build("a.bin"))
	require.NoError(t, err)
	b, err := os.ReadFile(build("b.bin"))
	require.NoError(t, err)
	require.Equal(t, a, b)
}
