// Package align quantifies dual-eye overlap (C4), checks single-eye
// centering against reference points (C5), and derives the prioritized
// mechanical adjustment vectors an operator acts on. Grounded on
// alignment.rs's check_dual_eye_alignment / check_left_eye_centering /
// calculate_adjustment_vectors family, translated to Go idiom.
package align

import (
	"fmt"
	"image"
	"image/color"
	"sort"
	"strconv"

	"github.com/chewxy/math32"
	b58 "github.com/mr-tron/base58/base58"
	"gocv.io/x/gocv"

	"github.com/itohio/opticalign/internal/model"
	"github.com/itohio/opticalign/internal/obslog"
	"github.com/itohio/opticalign/internal/pose"
)

// DualEyeAlignmentResult summarizes per-point residuals between the two
// eyes' sorted center sequences.
type DualEyeAlignmentResult struct {
	MeanDx float32
	MeanDy float32
	RMS    float32
	P95    float32
	MaxErr float32
	Pass   bool
}

// CheckDualEyeAlignment requires both sequences to already be in canonical
// index order and the same length (40); if debugPath is non-empty, a
// rendered overlay of the two eyes' points and their offsets is written to
// <debugPath>_<tag>.png.
func CheckDualEyeAlignment(left, right []model.Point2D, th model.Thresholds, imageSize image.Point, debugPath string) (DualEyeAlignmentResult, error) {
	if len(left) != len(right) {
		return DualEyeAlignmentResult{}, fmt.Errorf("%w: left has %d points, right has %d", model.ErrLengthMismatch, len(left), len(right))
	}
	if len(left) == 0 {
		return DualEyeAlignmentResult{}, fmt.Errorf("%w: no points to compare", model.ErrLengthMismatch)
	}

	n := len(left)
	dx := make([]float32, n)
	dy := make([]float32, n)
	errs := make([]float32, n)

	for i := range left {
		dx[i] = right[i].X - left[i].X
		dy[i] = right[i].Y - left[i].Y
		errs[i] = math32.Hypot(dx[i], dy[i])
	}

	meanDx := mean(dx)
	meanDy := mean(dy)
	rmsVal := rms(errs)
	p95 := percentile(errs, 95)
	maxErr := max(errs)

	result := DualEyeAlignmentResult{
		MeanDx: meanDx,
		MeanDy: meanDy,
		RMS:    rmsVal,
		P95:    p95,
		MaxErr: maxErr,
		Pass:   rmsVal <= th.RMSPx && p95 <= th.P95Px && maxErr <= th.MaxErrPx,
	}

	if debugPath != "" {
		if err := drawAlignmentDebugImage(left, right, imageSize, debugPath); err != nil {
			obslog.Log.Warn().Err(err).Msg("failed to write alignment debug image")
		}
	}

	return result, nil
}

// CenteringResult reports how far the two reference corners sit from their
// expected screen positions.
type CenteringResult struct {
	IsCentered         bool
	TopRightOffsetX    float32
	TopRightOffsetY    float32
	BottomLeftOffsetX  float32
	BottomLeftOffsetY  float32
	MaxOffsetDistance  float32
	TolerancePx        float32
	ActualTopRight     model.Point2D
	ActualBottomLeft   model.Point2D
	ExpectedTopRight   model.Point2D
	ExpectedBottomLeft model.Point2D
}

// CheckLeftEyeCentering compares index 0 (top-right) and index 39
// (bottom-left) of a sorted center sequence against the session's expected
// screen positions.
func CheckLeftEyeCentering(centers []model.Point2D, th model.Thresholds) (CenteringResult, error) {
	if len(centers) != model.NumGridPoints {
		return CenteringResult{}, fmt.Errorf("%w: expected %d centers, got %d", model.ErrSortFailure, model.NumGridPoints, len(centers))
	}

	actualTopRight := centers[0]
	actualBottomLeft := centers[model.NumGridPoints-1]

	trOffX := actualTopRight.X - th.ExpectedTopRight.X
	trOffY := actualTopRight.Y - th.ExpectedTopRight.Y
	blOffX := actualBottomLeft.X - th.ExpectedBottomLeft.X
	blOffY := actualBottomLeft.Y - th.ExpectedBottomLeft.Y

	trDist := math32.Hypot(trOffX, trOffY)
	blDist := math32.Hypot(blOffX, blOffY)
	maxDist := trDist
	if blDist > maxDist {
		maxDist = blDist
	}

	return CenteringResult{
		IsCentered:         trDist <= th.CenteringTolerance && blDist <= th.CenteringTolerance,
		TopRightOffsetX:    trOffX,
		TopRightOffsetY:    trOffY,
		BottomLeftOffsetX:  blOffX,
		BottomLeftOffsetY:  blOffY,
		MaxOffsetDistance:  maxDist,
		TolerancePx:        th.CenteringTolerance,
		ActualTopRight:     actualTopRight,
		ActualBottomLeft:   actualBottomLeft,
		ExpectedTopRight:   th.ExpectedTopRight,
		ExpectedBottomLeft: th.ExpectedBottomLeft,
	}, nil
}

// EyeAdjustment is the suggested mechanical correction for a single eye.
type EyeAdjustment struct {
	RollAdjustment  float32
	PitchAdjustment float32
	YawAdjustment   float32
	CenteringX      float32
	CenteringY      float32
	NeedsAdjustment bool
}

// AlignmentAdjustment is the suggested correction to bring the two eyes
// into overlap, plus a human-readable explanation of which statistic is
// driving the recommendation.
type AlignmentAdjustment struct {
	DeltaX             float32
	DeltaY             float32
	RMSError           float32
	AdjustmentPriority string
}

// Priority enumerates which subsystem an operator should address next.
type Priority int

const (
	PriorityLeftEyePose Priority = iota
	PriorityLeftEyeCentering
	PriorityRightEyePose
	PriorityDualEyeAlignment
	PriorityComplete
)

func (p Priority) String() string {
	switch p {
	case PriorityLeftEyePose:
		return "LeftEyePose"
	case PriorityLeftEyeCentering:
		return "LeftEyeCentering"
	case PriorityRightEyePose:
		return "RightEyePose"
	case PriorityDualEyeAlignment:
		return "DualEyeAlignment"
	case PriorityComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// AdjustmentVectors bundles the per-eye and inter-eye adjustment
// recommendations plus the single next-step priority.
type AdjustmentVectors struct {
	LeftEyeAdjustment  EyeAdjustment
	RightEyeAdjustment EyeAdjustment
	AlignmentAdjust    AlignmentAdjustment
	Priority           Priority
}

// CalculateAdjustmentVectors derives mechanical corrections from whichever
// of the four upstream results are available (any may be absent — a
// pipeline worker that skipped alignment because pose failed passes nil).
func CalculateAdjustmentVectors(
	leftPose *pose.SingleEyePoseResult,
	leftCentering *CenteringResult,
	rightPose *pose.SingleEyePoseResult,
	alignment *DualEyeAlignmentResult,
	th model.Thresholds,
) AdjustmentVectors {
	leftAdj := calculateEyeAdjustment(leftPose, leftCentering)
	rightAdj := calculateEyeAdjustment(rightPose, nil)
	alignAdj := calculateAlignmentAdjustment(alignment, th)

	return AdjustmentVectors{
		LeftEyeAdjustment:  leftAdj,
		RightEyeAdjustment: rightAdj,
		AlignmentAdjust:    alignAdj,
		Priority:           determinePriority(leftAdj, rightAdj, alignAdj, leftCentering, th),
	}
}

func calculateEyeAdjustment(p *pose.SingleEyePoseResult, centering *CenteringResult) EyeAdjustment {
	var adj EyeAdjustment
	if p != nil {
		adj.RollAdjustment = -p.RollDeg
		adj.PitchAdjustment = -p.PitchDeg
		adj.YawAdjustment = -p.YawDeg
		adj.NeedsAdjustment = !p.Pass
	}
	if centering != nil {
		adj.CenteringX = -centering.TopRightOffsetX
		adj.CenteringY = -centering.TopRightOffsetY
		adj.NeedsAdjustment = adj.NeedsAdjustment || !centering.IsCentered
	}
	return adj
}

func calculateAlignmentAdjustment(a *DualEyeAlignmentResult, th model.Thresholds) AlignmentAdjustment {
	if a == nil {
		return AlignmentAdjustment{AdjustmentPriority: "no alignment data"}
	}

	var priorityDesc string
	switch {
	case a.RMS > th.RMSPx:
		priorityDesc = "RMS error too large, prioritize overall alignment"
	case a.P95 > th.P95Px:
		priorityDesc = "P95 error too large, prioritize local alignment"
	case a.MaxErr > th.MaxErrPx:
		priorityDesc = "max error too large, prioritize outlier points"
	default:
		priorityDesc = "alignment accuracy good"
	}

	return AlignmentAdjustment{
		DeltaX:             -a.MeanDx,
		DeltaY:             -a.MeanDy,
		RMSError:           a.RMS,
		AdjustmentPriority: priorityDesc,
	}
}

func determinePriority(leftAdj, rightAdj EyeAdjustment, alignAdj AlignmentAdjustment, centering *CenteringResult, th model.Thresholds) Priority {
	if leftAdj.NeedsAdjustment &&
		(math32.Abs(leftAdj.RollAdjustment) > th.RollDeg ||
			math32.Abs(leftAdj.PitchAdjustment) > th.PitchYawDeg ||
			math32.Abs(leftAdj.YawAdjustment) > th.PitchYawDeg) {
		return PriorityLeftEyePose
	}

	if centering != nil && !centering.IsCentered {
		return PriorityLeftEyeCentering
	}

	if rightAdj.NeedsAdjustment &&
		(math32.Abs(rightAdj.RollAdjustment) > th.RollDeg ||
			math32.Abs(rightAdj.PitchAdjustment) > th.PitchYawDeg ||
			math32.Abs(rightAdj.YawAdjustment) > th.PitchYawDeg) {
		return PriorityRightEyePose
	}

	if alignAdj.RMSError > th.RMSPx {
		return PriorityDualEyeAlignment
	}

	return PriorityComplete
}

func mean(v []float32) float32 {
	var sum float32
	for _, x := range v {
		sum += x
	}
	return sum / float32(len(v))
}

func rms(v []float32) float32 {
	var sumSq float32
	for _, x := range v {
		sumSq += x * x
	}
	return math32.Sqrt(sumSq / float32(len(v)))
}

func max(v []float32) float32 {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// percentile uses the nearest-rank-with-rounding estimator
// (index = round((pct/100)*(n-1))) to match the ground-truth implementation
// rather than a true linear-interpolation percentile.
func percentile(v []float32, pct float32) float32 {
	sorted := make([]float32, len(v))
	copy(sorted, v)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(math32.Round((pct / 100.0) * float32(len(sorted)-1)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func drawAlignmentDebugImage(left, right []model.Point2D, imageSize image.Point, debugPath string) error {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), imageSize.Y, imageSize.X, gocv.MatTypeCV8UC3)
	defer img.Close()

	blue := color.RGBA{B: 255, A: 255}
	red := color.RGBA{R: 255, A: 255}
	green := color.RGBA{G: 255, A: 255}
	black := color.RGBA{A: 255}

	for i := range left {
		l := image.Pt(int(left[i].X), int(left[i].Y))
		r := image.Pt(int(right[i].X), int(right[i].Y))
		gocv.Circle(&img, l, 3, blue, -1)
		gocv.Circle(&img, r, 3, red, -1)
		gocv.Line(&img, l, r, green, 1)

		label := strconv.Itoa(i)
		gocv.PutText(&img, label, image.Pt(l.X-10, l.Y-10), gocv.FontHersheyPlain, 0.9, black, 1)
		gocv.PutText(&img, label, image.Pt(r.X-10, r.Y-10), gocv.FontHersheyPlain, 0.9, black, 1)
	}

	tag := b58.Encode([]byte(fmt.Sprintf("%d-%d", len(left), imageSize.X)))
	path := fmt.Sprintf("%s_%s.png", debugPath, tag)

	if ok := gocv.IMWrite(path, img); !ok {
		return fmt.Errorf("writing alignment debug image to %s", path)
	}
	return nil
}
