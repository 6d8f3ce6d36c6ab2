// Package system wires the leaf components (C1, C2, C7, C8) into the
// per-worker AlignmentSystem described in SPEC_FULL.md — a direct Go
// analogue of the original prototype's AlignmentSystem struct, with lazy
// rectification-map loading and a reusable circle detector.
package system

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/itohio/opticalign/internal/detect"
	"github.com/itohio/opticalign/internal/model"
	"github.com/itohio/opticalign/internal/params"
	"github.com/itohio/opticalign/internal/rectify"
	"github.com/itohio/opticalign/internal/sort2d"
)

// AlignmentSystem holds everything one pipeline worker needs to take a raw
// frame pair through rectification, detection, and sorting. Each pipeline
// worker owns its own instance; only the rectify maps are lazily loaded and
// guarded internally, matching the invariant that once loaded they persist
// for the system's lifetime.
type AlignmentSystem struct {
	ImageSize image.Point

	LeftIntrinsics  params.CameraIntrinsics
	RightIntrinsics params.CameraIntrinsics
	Extrinsics      params.StereoExtrinsics
	RectifyParams   params.RectifyParams

	leftCameraMatrix, leftDistCoeffs   gocv.Mat
	rightCameraMatrix, rightDistCoeffs gocv.Mat

	Maps     *rectify.Maps
	Detector *detect.Detector

	WorldPoints model.WorldPointList
	Thresholds  model.Thresholds
}

// New loads the light calibration parameter files (camera intrinsics,
// stereo extrinsics, rectification transform) and builds the reusable
// detector and world-point table. Rectification maps are NOT loaded here —
// call PreloadRectifyMaps or EnsureMapsLoaded before remapping.
func New(imageSize image.Point, leftParamsPath, rightParamsPath, stereoParamsPath, rectifyParamsPath string, th model.Thresholds) (*AlignmentSystem, error) {
	left, err := params.LoadCameraIntrinsics(leftParamsPath)
	if err != nil {
		return nil, fmt.Errorf("loading left camera params: %w", err)
	}
	right, err := params.LoadCameraIntrinsics(rightParamsPath)
	if err != nil {
		return nil, fmt.Errorf("loading right camera params: %w", err)
	}
	stereo, err := params.LoadStereoExtrinsics(stereoParamsPath)
	if err != nil {
		return nil, fmt.Errorf("loading stereo extrinsics: %w", err)
	}
	rect, err := params.LoadRectifyParams(rectifyParamsPath)
	if err != nil {
		return nil, fmt.Errorf("loading rectify params: %w", err)
	}

	leftCM, leftDC := left.ToMats()
	rightCM, rightDC := right.ToMats()

	return &AlignmentSystem{
		ImageSize:         imageSize,
		LeftIntrinsics:    left,
		RightIntrinsics:   right,
		Extrinsics:        stereo,
		RectifyParams:     rect,
		leftCameraMatrix:  leftCM,
		leftDistCoeffs:    leftDC,
		rightCameraMatrix: rightCM,
		rightDistCoeffs:   rightDC,
		Maps:              rectify.NewMaps(),
		Detector:          detect.NewDetector(th),
		WorldPoints:       model.DefaultWorldPoints().Simplified(),
		Thresholds:        th,
	}, nil
}

// PreloadRectifyMaps forces the rectification maps to load immediately,
// avoiding a lazy-load stall on the first frame.
func (s *AlignmentSystem) PreloadRectifyMaps(rectifyMapsPath string) error {
	return s.EnsureMapsLoaded(rectifyMapsPath)
}

// EnsureMapsLoaded loads the remap arrays exactly once; safe to call on
// every frame.
func (s *AlignmentSystem) EnsureMapsLoaded(rectifyMapsPath string) error {
	return s.Maps.EnsureLoaded(rectifyMapsPath, s.ImageSize.Y, s.ImageSize.X)
}

// LeftCameraMats returns the left eye's camera matrix and distortion
// coefficients, owned by the system — callers must not Close them.
func (s *AlignmentSystem) LeftCameraMats() (gocv.Mat, gocv.Mat) {
	return s.leftCameraMatrix, s.leftDistCoeffs
}

// RightCameraMats returns the right eye's camera matrix and distortion
// coefficients, owned by the system — callers must not Close them.
func (s *AlignmentSystem) RightCameraMats() (gocv.Mat, gocv.Mat) {
	return s.rightCameraMatrix, s.rightDistCoeffs
}

// DetectAndSort runs the circle detector and grid sorter on a rectified,
// single-channel image, returning exactly 40 points in canonical order.
func (s *AlignmentSystem) DetectAndSort(img gocv.Mat) ([]model.Point2D, error) {
	centers, err := s.Detector.DetectCircles(img)
	if err != nil {
		return nil, err
	}

	pts := make([]model.Point2D, len(centers))
	for i, c := range centers {
		pts[i] = c.Point2D
	}

	return sort2d.SortGrid(pts)
}

// Close releases the Mats owned by the system (camera matrices,
// distortion coefficients, and — if loaded — the rectification maps).
func (s *AlignmentSystem) Close() {
	s.leftCameraMatrix.Close()
	s.leftDistCoeffs.Close()
	s.rightCameraMatrix.Close()
	s.rightDistCoeffs.Close()
	s.Maps.Close()
}
