// Package sort2d orders an unordered set of detected circle centers into
// the canonical asymmetric-grid index order (C2), using a PCA-based
// projection sort grounded on the same gonum linear-algebra library the
// retrieved pack's cm68-traces module uses for its affine least-squares fit.
package sort2d

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/itohio/opticalign/internal/model"
)

const (
	numColumns    = 10
	numRows       = 4
	pointsPerGrid = numColumns * numRows
)

// SortGrid reorders points into canonical index order: column-major from
// rightmost column to leftmost, top-to-bottom within a column. Per the
// detection-failure invariant, a count other than exactly 40 is rejected
// outright rather than truncated or padded — the detector is deliberately
// recall-favoring, so an over-detected frame (40+ raw candidates that
// survived area/quality filtering) must fail here, not be silently
// trimmed to the first 40.
func SortGrid(points []model.Point2D) ([]model.Point2D, error) {
	if len(points) != pointsPerGrid {
		return nil, fmt.Errorf("%w: need exactly %d points, got %d", model.ErrSortFailure, pointsPerGrid, len(points))
	}

	centroidX, centroidY := centroid(points)

	dominant, secondary := principalAxes(points, centroidX, centroidY)
	dominant, secondary = orient(dominant, secondary)

	proj := make([]projected, len(points))
	for i, p := range points {
		dx, dy := p.X-centroidX, p.Y-centroidY
		proj[i] = projected{
			pt:      p,
			colProj: dx*dominant[0] + dy*dominant[1],
			rowProj: dx*secondary[0] + dy*secondary[1],
		}
	}

	sort.Slice(proj, func(i, j int) bool { return proj[i].colProj < proj[j].colProj })

	columns, err := bucketByColumn(proj)
	if err != nil {
		return nil, err
	}
	for _, col := range columns {
		sort.Slice(col, func(i, j int) bool { return col[i].rowProj < col[j].rowProj })
	}

	out := make([]model.Point2D, 0, pointsPerGrid)
	for c := numColumns - 1; c >= 0; c-- {
		for _, p := range columns[c] {
			out = append(out, p.pt)
		}
	}

	return applyCorrespondenceSwap(out), nil
}

type projected struct {
	pt      model.Point2D
	colProj float32
	rowProj float32
}

// bucketByColumn splits colProj-sorted points into numColumns groups of
// numRows using the gaps between consecutive projections, not fixed
// consecutive-index slices: the numColumns-1 largest gaps are taken as the
// column boundaries, recovering the grid's actual column spacing instead
// of assuming a uniform count per slice. Both the resulting bucket sizes
// and the recovered spacing are validated — a malformed or degenerate
// point set (wrong counts, or boundary gaps that don't agree with each
// other within 20%, mirroring the board's real spacing tolerance) fails
// with ErrSortFailure instead of being silently accepted.
func bucketByColumn(proj []projected) ([][]projected, error) {
	n := len(proj)
	gaps := make([]float32, n-1)
	for i := 1; i < n; i++ {
		gaps[i-1] = proj[i].colProj - proj[i-1].colProj
	}

	type gapAt struct {
		index int
		gap   float32
	}
	ranked := make([]gapAt, len(gaps))
	for i, g := range gaps {
		ranked[i] = gapAt{index: i, gap: g}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].gap > ranked[j].gap })

	boundaryCount := numColumns - 1
	if len(ranked) < boundaryCount {
		return nil, fmt.Errorf("%w: not enough projected points to find %d column boundaries", model.ErrSortFailure, boundaryCount)
	}
	boundaries := make([]int, boundaryCount)
	boundaryGaps := make([]float32, boundaryCount)
	for i := 0; i < boundaryCount; i++ {
		boundaries[i] = ranked[i].index
		boundaryGaps[i] = ranked[i].gap
	}
	sort.Ints(boundaries)

	var sumGap float32
	for _, g := range boundaryGaps {
		sumGap += g
	}
	meanGap := sumGap / float32(boundaryCount)
	for _, g := range boundaryGaps {
		if g < meanGap*0.8 || g > meanGap*1.2 {
			return nil, fmt.Errorf("%w: column spacing %.2f deviates more than 20%% from mean spacing %.2f", model.ErrSortFailure, g, meanGap)
		}
	}

	columns := make([][]projected, numColumns)
	start := 0
	for c, b := range boundaries {
		columns[c] = proj[start : b+1]
		start = b + 1
	}
	columns[numColumns-1] = proj[start:]

	for _, col := range columns {
		if len(col) != numRows {
			return nil, fmt.Errorf("%w: column bucket has %d points, expected %d", model.ErrSortFailure, len(col), numRows)
		}
	}

	return columns, nil
}

func centroid(pts []model.Point2D) (float32, float32) {
	var sx, sy float32
	for _, p := range pts {
		sx += p.X
		sy += p.Y
	}
	n := float32(len(pts))
	return sx / n, sy / n
}

// principalAxes computes the eigenvectors of the 2x2 covariance matrix of
// the centered points via gonum's symmetric eigendecomposition, returning
// the dominant axis first.
func principalAxes(pts []model.Point2D, cx, cy float32) (dominant, secondary [2]float32) {
	var sxx, sxy, syy float64
	for _, p := range pts {
		dx, dy := float64(p.X-cx), float64(p.Y-cy)
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	n := float64(len(pts))
	cov := mat.NewSymDense(2, []float64{sxx / n, sxy / n, syy / n})

	var eig mat.EigenSym
	eig.Factorize(cov, true)

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// gonum returns eigenvalues in ascending order; the dominant axis has
	// the larger eigenvalue.
	domIdx, secIdx := 1, 0
	if values[0] > values[1] {
		domIdx, secIdx = 0, 1
	}

	dominant = [2]float32{float32(vectors.At(0, domIdx)), float32(vectors.At(1, domIdx))}
	secondary = [2]float32{float32(vectors.At(0, secIdx)), float32(vectors.At(1, secIdx))}
	return dominant, secondary
}

// orient removes the 180-degree PCA ambiguity: the dominant axis is forced
// to point left-to-right (positive X) and the secondary axis downward
// (positive Y) in image coordinates.
func orient(dominant, secondary [2]float32) (d, s [2]float32) {
	if dominant[0] < 0 {
		dominant[0], dominant[1] = -dominant[0], -dominant[1]
	}
	if secondary[1] < 0 {
		secondary[0], secondary[1] = -secondary[0], -secondary[1]
	}
	return dominant, secondary
}

// applyCorrespondenceSwap corrects a reversed column order, observed on
// some grid-finder outputs, by swapping adjacent 4-point column blocks —
// exactly the odd/even swap of the original reorder_asymmetric_circles
// routine.
func applyCorrespondenceSwap(centers []model.Point2D) []model.Point2D {
	if len(centers) != pointsPerGrid {
		return centers
	}
	if centers[0].X >= centers[4].X {
		return centers
	}

	reordered := make([]model.Point2D, 0, pointsPerGrid)
	swapPairs := [5][2]int{{0, 4}, {8, 12}, {16, 20}, {24, 28}, {32, 36}}
	for _, pair := range swapPairs {
		reordered = append(reordered, centers[pair[1]:pair[1]+4]...)
		reordered = append(reordered, centers[pair[0]:pair[0]+4]...)
	}
	return reordered
}
