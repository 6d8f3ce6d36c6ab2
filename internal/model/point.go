// Package model holds the shared value types of the alignment system:
// subpixel points, circle centers, the canonical world-point table and the
// pass/fail thresholds every downstream component checks against.
package model

import "github.com/chewxy/math32"

// Point2D is a subpixel image coordinate, 32-bit per the sensor's native
// precision.
type Point2D struct {
	X, Y float32
}

// Distance returns the Euclidean distance to other.
func (p Point2D) Distance(other Point2D) float32 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math32.Hypot(dx, dy)
}

// Sub returns p - other.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{X: p.X - other.X, Y: p.Y - other.Y}
}

// Point3D is a board-space millimeter coordinate (z is 0 for every point on
// the planar calibration target).
type Point3D struct {
	X, Y, Z float32
}

// Sub returns p - other.
func (p Point3D) Sub(other Point3D) Point3D {
	return Point3D{X: p.X - other.X, Y: p.Y - other.Y, Z: p.Z - other.Z}
}

// RefineTag records how a CircleCenter's position was derived.
type RefineTag int

const (
	// Unknown marks a center whose provenance is unset (reserved for
	// synthetic and degenerate test fixtures).
	Unknown RefineTag = iota
	// RawCentroid marks a center taken directly from the connected
	// component's pixel-sum centroid.
	RawCentroid
	// AdaptiveRefined marks a center recomputed from a local intensity
	// threshold because the raw shape failed the circularity check.
	AdaptiveRefined
)

func (t RefineTag) String() string {
	switch t {
	case RawCentroid:
		return "RawCentroid"
	case AdaptiveRefined:
		return "AdaptiveRefined"
	default:
		return "Unknown"
	}
}

// CircleCenter is one detected dot: its subpixel center, the pixel area of
// the component it came from, and how the center was computed.
type CircleCenter struct {
	Point2D
	Area float32
	Tag  RefineTag
}
