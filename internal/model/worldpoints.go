package model

import "github.com/chewxy/math32"

// NumGridPoints is the number of dots on the asymmetric circle grid (10
// columns x 4 rows).
const NumGridPoints = 40

// DiagonalSpacingMM is the physical diagonal spacing between adjacent board
// dots, in millimeters.
const DiagonalSpacingMM float32 = 25.0

// gridCoordinates is the fixed (col, row) table for every canonical index,
// index 0 at the top of the rightmost column, index 39 at the bottom of the
// leftmost column. Values are in board grid units, not millimeters.
var gridCoordinates = [NumGridPoints][2]float32{
	{9, 0}, {9, 2}, {9, 4}, {9, 6},
	{8, 1}, {8, 3}, {8, 5}, {8, 7},
	{7, 0}, {7, 2}, {7, 4}, {7, 6},
	{6, 1}, {6, 3}, {6, 5}, {6, 7},
	{5, 0}, {5, 2}, {5, 4}, {5, 6},
	{4, 1}, {4, 3}, {4, 5}, {4, 7},
	{3, 0}, {3, 2}, {3, 4}, {3, 6},
	{2, 1}, {2, 3}, {2, 5}, {2, 7},
	{1, 0}, {1, 2}, {1, 4}, {1, 6},
	{0, 1}, {0, 3}, {0, 5}, {0, 7},
}

// WorldPointList is the immutable, ordered sequence of 40 board-space
// points matching the canonical detection index order.
type WorldPointList [NumGridPoints]Point3D

// GenerateWorldPoints builds the canonical world-point table for a board
// with the given diagonal spacing. x = spacing/sqrt(2) is the grid's base
// unit along each axis.
func GenerateWorldPoints(diagonalSpacingMM float32) WorldPointList {
	x := diagonalSpacingMM / math32.Sqrt(2)
	var pts WorldPointList
	for i, rc := range gridCoordinates {
		pts[i] = Point3D{X: rc[0] * x, Y: rc[1] * x, Z: 0}
	}
	return pts
}

// DefaultWorldPoints returns the world-point table for the canonical 25mm
// diagonal-spacing board.
func DefaultWorldPoints() WorldPointList {
	return GenerateWorldPoints(DiagonalSpacingMM)
}

// Simplified re-origins the table so index 0 sits at (0,0,0), making pose
// angles independent of where the board was physically placed when the
// table was generated.
func (w WorldPointList) Simplified() WorldPointList {
	origin := w[0]
	var out WorldPointList
	for i, p := range w {
		out[i] = p.Sub(origin)
	}
	return out
}

// Slice returns the points as a plain slice, convenient for gocv point
// vector construction.
func (w WorldPointList) Slice() []Point3D {
	out := make([]Point3D, len(w))
	copy(out, w[:])
	return out
}
