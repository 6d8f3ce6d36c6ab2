// Package detect implements the connected-components circle detector (C1):
// a fast, single-threshold replacement for generic multi-threshold blob
// detection, tuned to extract the 40 dots of an asymmetric circle grid
// under illumination ranging from faint to saturated.
package detect

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/itohio/opticalign/internal/model"
	"github.com/itohio/opticalign/internal/obslog"
)

// gocv's connected-components stats columns (CC_STAT_*).
const (
	statLeft = iota
	statTop
	statWidth
	statHeight
	statArea
)

// Detector extracts circle centers from a single-channel grayscale image.
type Detector struct {
	// BackgroundKernel is the box-filter side length used for background
	// flattening; it must be significantly larger than a dot diameter.
	BackgroundKernel int
	// BinaryThreshold is the single global threshold applied to the
	// flattened image (favors recall; false positives are rejected by
	// area filtering and the caller's exact-count check).
	BinaryThreshold float32
	// QualityThreshold is the maximum allowed deviation of a component's
	// area from an ideal disc of its bounding-box radius before it is
	// sent through the adaptive refinement pass.
	QualityThreshold float32

	Thresholds model.Thresholds
}

// NewDetector builds a Detector with the given thresholds and the
// conventional background-flattening/threshold defaults.
func NewDetector(th model.Thresholds) *Detector {
	return &Detector{
		BackgroundKernel: 51,
		BinaryThreshold:  30,
		QualityThreshold: 0.35,
		Thresholds:       th,
	}
}

// DetectCircles runs the full C1 pipeline: background flattening, global
// threshold, 4-connectivity labelling, area filtering, centroid extraction
// and adaptive refinement. It never returns more than Thresholds.SafeCap
// centers; a caller expecting a full grid checks for exactly 40.
func (d *Detector) DetectCircles(img gocv.Mat) ([]model.CircleCenter, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: empty image", model.ErrInvalidImage)
	}
	if img.Channels() != 1 {
		return nil, fmt.Errorf("%w: expected single-channel grayscale, got %d channels", model.ErrInvalidImage, img.Channels())
	}

	bg := gocv.NewMat()
	defer bg.Close()
	k := d.BackgroundKernel
	if k < 3 {
		k = 3
	}
	gocv.BoxFilter(img, &bg, -1, image.Pt(k, k))

	flattened := gocv.NewMat()
	defer flattened.Close()
	gocv.Subtract(img, bg, &flattened)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(flattened, &binary, d.BinaryThreshold, 255, gocv.ThresholdBinary)

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	numLabels := gocv.ConnectedComponentsWithStats(binary, &labels, &stats, &centroids, 4, gocv.MatTypeCV32S)

	var centers []model.CircleCenter
	// label 0 is always the background component.
	for label := 1; label < numLabels; label++ {
		area := float32(stats.GetIntAt(label, statArea))
		if area < d.Thresholds.MinAreaPx2 || area > d.Thresholds.MaxAreaPx2 {
			continue
		}

		cx := float32(centroids.GetDoubleAt(label, 0))
		cy := float32(centroids.GetDoubleAt(label, 1))

		left := int(stats.GetIntAt(label, statLeft))
		top := int(stats.GetIntAt(label, statTop))
		w := int(stats.GetIntAt(label, statWidth))
		h := int(stats.GetIntAt(label, statHeight))

		center := model.CircleCenter{Point2D: model.Point2D{X: cx, Y: cy}, Area: area, Tag: model.RawCentroid}

		if !isCircular(area, w, h, d.QualityThreshold) {
			if refined, ok := d.refineCenter(flattened, image.Rect(left, top, left+w, top+h)); ok {
				center.Point2D = refined
				center.Tag = model.AdaptiveRefined
			}
		}

		centers = append(centers, center)
		if len(centers) >= d.Thresholds.SafeCap {
			obslog.Log.Warn().Int("cap", d.Thresholds.SafeCap).Msg("circle detector hit safe cap, truncating")
			break
		}
	}

	return centers, nil
}

// isCircular compares the measured area against the area of a disc whose
// diameter is the bounding box's average side — a cheap circularity proxy
// that avoids a second contour-finding pass.
func isCircular(area float32, w, h int, tolerance float32) bool {
	avgDiameter := float64(w+h) / 2.0
	idealArea := math.Pi * (avgDiameter / 2) * (avgDiameter / 2)
	if idealArea <= 0 {
		return false
	}
	deviation := math.Abs(float64(area)-idealArea) / idealArea
	return deviation <= float64(tolerance)
}

// refineCenter recomputes a component's center from only the pixels within
// roi whose flattened intensity exceeds the component-local mean, making the
// estimate robust to partial blooming that skews the raw centroid.
func (d *Detector) refineCenter(flattened gocv.Mat, roi image.Rectangle) (model.Point2D, bool) {
	region := flattened.Region(roi)
	defer region.Close()

	mean := region.Mean()
	localThreshold := float32(mean.Val1)

	var sumX, sumY, count float64
	rows, cols := region.Rows(), region.Cols()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if float32(region.GetUCharAt(y, x)) > localThreshold {
				sumX += float64(x)
				sumY += float64(y)
				count++
			}
		}
	}
	if count == 0 {
		return model.Point2D{}, false
	}
	return model.Point2D{
		X: float32(roi.Min.X) + float32(sumX/count),
		Y: float32(roi.Min.Y) + float32(sumY/count),
	}, true
}
