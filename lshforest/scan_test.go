package lshforest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	f, err := NewWithStore(2, 2)
	require.NoError(t, err)
	_, err = f.Add([]uint32{7, 7})
	require.NoError(t, err)
	_, err = f.Add([]uint32{7, 8})
	require.NoError(t, err)

	got, err := f.DistanceByID(0, 1)
	require.NoError(t, err)
	require.Equal(t, 0.5, got)

	same, err := f.DistanceByID(0, 0)
	require.NoError(t, err)
	require.Equal(t, 0.0, same)

	require.Equal(t, 1.0, f.Distance([]uint32{1, 2}, []uint32{3, 4}))
}

func TestWeightedDistance(t *testing.T) {
	f, err := NewWithStore(4, 2)
	require.NoError(t, err)
	_, err = f.Add([]uint32{1, 10, 2, 20})
	require.NoError(t, err)
	_, err = f.Add([]uint32{1, 10, 3, 30})
	require.NoError(t, err)

	// One of two (value, weight) pairs agrees.
	got, err := f.WeightedDistanceByID(0, 1)
	require.NoError(t, err)
	require.Equal(t, 0.5, got)

	same, err := f.WeightedDistanceByID(0, 0)
	require.NoError(t, err)
	require.Equal(t, 0.0, same)
}

func TestWeightedRejectsOddDims(t *testing.T) {
	f, err := NewWithStore(3, 1)
	require.NoError(t, err)
	_, err = f.Add([]uint32{1, 2, 3})
	require.NoError(t, err)
	_, err = f.Add([]uint32{1, 2, 4})
	require.NoError(t, err)

	_, err = f.WeightedDistanceByID(0, 1)
	require.ErrorIs(t, err, ErrOddDims)
	_, err = f.LinearScan([]uint32{1, 2, 3}, []uint32{0, 1}, 1, true)
	require.ErrorIs(t, err, ErrOddDims)
}

func TestLinearScanOrdersByDistance(t *testing.T) {
	f, err := NewWithStore(4, 2)
	require.NoError(t, err)
	require.NoError(t, f.BatchAdd([][]uint32{
		{1, 2, 3, 4}, // distance 0.0 to the query
		{1, 2, 3, 9}, // 0.25
		{1, 2, 9, 9}, // 0.5
		{9, 9, 9, 9}, // 1.0
	}))

	query := []uint32{1, 2, 3, 4}
	got, err := f.LinearScan(query, []uint32{3, 2, 1, 0}, 3, false)
	require.NoError(t, err)
	require.Equal(t, []Neighbor{
		{ID: 0, Distance: 0},
		{ID: 1, Distance: 0.25},
		{ID: 2, Distance: 0.5},
	}, got)

	// k == 0 returns all scored candidates.
	all, err := f.LinearScan(query, []uint32{3, 2, 1, 0}, 0, false)
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, uint32(3), all[3].ID)

	// k beyond the candidate count also returns all.
	all, err = f.LinearScan(query, []uint32{0, 1}, 10, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

// Equal distances break ties by ascending ID.
func TestLinearScanTieBreak(t *testing.T) {
	f, err := NewWithStore(4, 2)
	require.NoError(t, err)
	require.NoError(t, f.BatchAdd([][]uint32{
		{1, 2, 3, 4},
		{1, 2, 3, 4},
		{1, 2, 3, 4},
	}))
	got, err := f.LinearScan([]uint32{1, 2, 3, 4}, []uint32{2, 0, 1}, 0, false)
	require.NoError(t, err)
	require.Equal(t, []Neighbor{
		{ID: 0, Distance: 0},
		{ID: 1, Distance: 0},
		{ID: 2, Distance: 0},
	}, got)
}

func TestFastLinearScan(t *testing.T) {
	f, err := NewWithStore(4, 2)
	require.NoError(t, err)
	require.NoError(t, f.BatchAdd([][]uint32{
		{1, 2, 3, 4},
		{1, 2, 9, 9},
	}))
	got, err := f.FastLinearScan([]uint32{1, 2, 3, 4}, []uint32{1, 0}, false)
	require.NoError(t, err)
	require.Equal(t, []float64{0.5, 0}, got)
}

func TestQueryLinearScan(t *testing.T) {
	f := newPairwiseForest(t)
	got, err := f.QueryLinearScan([]uint32{1, 2, 3, 4}, 2, 2, false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, uint32(0), got[0].ID)
	require.Equal(t, 0.0, got[0].Distance)
	require.Equal(t, 0.5, got[1].Distance)

	excl, err := f.QueryLinearScanExclude([]uint32{1, 2, 3, 4}, []uint32{0}, 2, 2, false)
	require.NoError(t, err)
	require.Len(t, excl, 2)
	require.NotContains(t, []uint32{excl[0].ID, excl[1].ID}, uint32(0))

	byID, err := f.QueryLinearScanByID(0, 2, 2, false)
	require.NoError(t, err)
	require.Equal(t, got, byID)
}

func TestAllDistances(t *testing.T) {
	f, err := NewWithStore(4, 2)
	require.NoError(t, err)
	require.NoError(t, f.BatchAdd([][]uint32{
		{1, 2, 3, 4},
		{1, 2, 3, 9},
		{9, 9, 9, 9},
	}))
	got, err := f.AllDistances([]uint32{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0.25, 1}, got)
}
