package sort2d

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/itohio/opticalign/internal/model"
)

// canonicalGrid builds points already in canonical order: column 0 is the
// rightmost, column 9 the leftmost, 40-unit spacing, no rotation.
func canonicalGrid() []model.Point2D {
	pts := make([]model.Point2D, 0, 40)
	for c := 0; c < numColumns; c++ {
		x := float32((numColumns - 1 - c) * 40)
		for r := 0; r < numRows; r++ {
			y := float32(r * 40)
			pts = append(pts, model.Point2D{X: x, Y: y})
		}
	}
	return pts
}

func shuffled(pts []model.Point2D) []model.Point2D {
	out := make([]model.Point2D, len(pts))
	copy(out, pts)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func TestSortGridRecoversCanonicalOrder(t *testing.T) {
	want := canonicalGrid()
	got, err := SortGrid(shuffled(want))
	require.NoError(t, err)
	require.Len(t, got, 40)
	for i := range want {
		require.InDelta(t, want[i].X, got[i].X, 0.5, "index %d", i)
		require.InDelta(t, want[i].Y, got[i].Y, 0.5, "index %d", i)
	}
}

func TestSortGridRejectsTooFewPoints(t *testing.T) {
	_, err := SortGrid(canonicalGrid()[:39])
	require.ErrorIs(t, err, model.ErrSortFailure)
}

func TestSortGridRejectsTooManyPoints(t *testing.T) {
	grid := canonicalGrid()
	extra := append(grid, model.Point2D{X: 1000, Y: 1000})
	_, err := SortGrid(extra)
	require.ErrorIs(t, err, model.ErrSortFailure)
}

func TestSortGridRejectsUnevenColumnSpacing(t *testing.T) {
	grid := canonicalGrid()
	// Collapse one column onto its neighbor so the recovered column
	// boundaries have wildly inconsistent spacing.
	for i := 0; i < numRows; i++ {
		grid[i].X = grid[numRows+i].X
	}
	_, err := SortGrid(shuffled(grid))
	require.ErrorIs(t, err, model.ErrSortFailure)
}

func TestApplyCorrespondenceSwapNoOpWhenOrderCorrect(t *testing.T) {
	grid := canonicalGrid()
	swapped := applyCorrespondenceSwap(grid)
	require.Equal(t, grid, swapped)
}

func TestApplyCorrespondenceSwapFixesReversedColumns(t *testing.T) {
	grid := canonicalGrid()
	// Force a reversed-order signature: swap the first two 4-blocks so
	// index 0 has a smaller X than index 4.
	reversed := make([]model.Point2D, len(grid))
	copy(reversed, grid)
	reversed[0], reversed[4] = reversed[4], reversed[0]
	reversed[1], reversed[5] = reversed[5], reversed[1]
	reversed[2], reversed[6] = reversed[6], reversed[2]
	reversed[3], reversed[7] = reversed[7], reversed[3]

	fixed := applyCorrespondenceSwap(reversed)
	require.Equal(t, grid[0], fixed[0])
}
