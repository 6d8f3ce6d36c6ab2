// Command calibrate drives the session-setup calibration workflow (C9):
// it reads matched left/right board photo pairs from a directory, runs the
// grid-finding cascade on each, mono-calibrates both eyes, derives stereo
// extrinsics and rectification maps, and writes the five YAML files
// internal/params loads at runtime. Its shape mirrors cmd/opticalign's own
// flag-based config plus os/signal-free synchronous run, simplified since
// calibration is a one-shot batch job rather than a streaming pipeline.
package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gocv.io/x/gocv"

	"github.com/itohio/opticalign/internal/calib"
	"github.com/itohio/opticalign/internal/model"
	"github.com/itohio/opticalign/internal/obslog"
	"github.com/itohio/opticalign/internal/params"
)

func main() {
	photoDir := flag.String("photos", "calibration_photos", "Directory of matched *_left/*_right board photo pairs")
	outDir := flag.String("out", ".", "Directory to write the calibration YAML files into")
	diagonalMM := flag.Float64("diagonal-mm", float64(model.DiagonalSpacingMM), "Board diagonal dot spacing, in millimeters")
	rejectionRatio := flag.Float64("rejection-ratio", 0.2, "Fraction of worst stereo pairs to reject before averaging")
	flag.Parse()

	if err := run(*photoDir, *outDir, float32(*diagonalMM), *rejectionRatio); err != nil {
		fmt.Fprintf(os.Stderr, "calibrate: %v\n", err)
		os.Exit(1)
	}
}

func run(photoDir, outDir string, diagonalMM float32, rejectionRatio float64) error {
	pairs, err := discoverPhotoPairs(photoDir)
	if err != nil {
		return fmt.Errorf("discovering calibration photos: %w", err)
	}
	if len(pairs) == 0 {
		return fmt.Errorf("no matched left/right photo pairs found in %s", photoDir)
	}
	obslog.Log.Info().Int("pairs", len(pairs)).Str("dir", photoDir).Msg("discovered calibration photo pairs")

	patternSize := image.Pt(4, 10)
	world := model.GenerateWorldPoints(diagonalMM)

	var objectPoints [][]model.Point3D
	var leftImagePoints, rightImagePoints [][]model.Point2D
	var imageSize image.Point

	for _, pair := range pairs {
		left := gocv.IMRead(pair.left, gocv.IMReadGrayScale)
		right := gocv.IMRead(pair.right, gocv.IMReadGrayScale)
		if left.Empty() || right.Empty() {
			obslog.Log.Warn().Str("left", pair.left).Str("right", pair.right).Msg("failed to read photo pair, skipping")
			left.Close()
			right.Close()
			continue
		}
		if imageSize == (image.Point{}) {
			imageSize = image.Pt(left.Cols(), left.Rows())
		}

		leftPts, leftOK := calib.FindGrid(left, patternSize)
		rightPts, rightOK := calib.FindGrid(right, patternSize)
		left.Close()
		right.Close()
		if !leftOK || !rightOK {
			obslog.Log.Warn().Str("left", pair.left).Str("right", pair.right).Msg("grid not found in photo pair, skipping")
			continue
		}

		objectPoints = append(objectPoints, world.Slice())
		leftImagePoints = append(leftImagePoints, leftPts)
		rightImagePoints = append(rightImagePoints, rightPts)
	}

	if len(objectPoints) == 0 {
		return fmt.Errorf("no usable photo pairs: grid-finding failed on every pair")
	}
	obslog.Log.Info().Int("usable_pairs", len(objectPoints)).Msg("grid-finding complete")

	leftMono, err := calib.CalibrateMonoABTest(objectPoints, leftImagePoints, imageSize)
	if err != nil {
		return fmt.Errorf("calibrating left eye: %w", err)
	}
	obslog.Log.Info().Float64("rms", leftMono.ReprojectionError).Msg("left eye calibrated")

	rightMono, err := calib.CalibrateMonoABTest(objectPoints, rightImagePoints, imageSize)
	if err != nil {
		return fmt.Errorf("calibrating right eye: %w", err)
	}
	obslog.Log.Info().Float64("rms", rightMono.ReprojectionError).Msg("right eye calibrated")

	extrinsics, err := calib.CalibrateStereoExtrinsics(world.Slice(), leftImagePoints, rightImagePoints, leftMono, rightMono, rejectionRatio)
	if err != nil {
		return fmt.Errorf("deriving stereo extrinsics: %w", err)
	}
	obslog.Log.Info().
		Float64("reprojection_error_deg", extrinsics.ReprojectionError).
		Int("samples_used", extrinsics.SamplesUsed).
		Int("samples_rejected", extrinsics.SamplesRejected).
		Msg("stereo extrinsics derived")

	rectification, err := calib.StereoRectifyAndBuildMaps(leftMono, rightMono, extrinsics, imageSize)
	if err != nil {
		return fmt.Errorf("building rectification maps: %w", err)
	}

	if err := writeResults(outDir, leftMono, rightMono, extrinsics, rectification); err != nil {
		return fmt.Errorf("writing calibration YAML: %w", err)
	}
	obslog.Log.Info().Str("dir", outDir).Msg("calibration files written")
	return nil
}

func writeResults(outDir string, left, right calib.MonoCalibration, extrinsics calib.StereoExtrinsicsResult, rect calib.RectificationResult) error {
	leftIntrinsics := params.CameraIntrinsics{CameraMatrix: left.CameraMatrix, DistCoeffs: left.DistCoeffs}
	if err := params.Save(filepath.Join(outDir, "left.yaml"), leftIntrinsics); err != nil {
		return err
	}

	rightIntrinsics := params.CameraIntrinsics{CameraMatrix: right.CameraMatrix, DistCoeffs: right.DistCoeffs}
	if err := params.Save(filepath.Join(outDir, "right.yaml"), rightIntrinsics); err != nil {
		return err
	}

	stereoExtrinsics := params.StereoExtrinsics{R: extrinsics.R, T: extrinsics.T}
	if err := params.Save(filepath.Join(outDir, "stereo.yaml"), stereoExtrinsics); err != nil {
		return err
	}

	if err := params.Save(filepath.Join(outDir, "rectify.yaml"), rect.Params); err != nil {
		return err
	}

	return params.Save(filepath.Join(outDir, "maps.yaml"), rect.Maps)
}

// photoPair is one (left, right) calibration photo path pair, matched by a
// shared stem with a "_left"/"_right" suffix — the same convention
// cmd/opticalign uses for its frame source directory.
type photoPair struct {
	left, right string
}

func discoverPhotoPairs(dir string) ([]photoPair, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading photo dir %s: %w", dir, err)
	}

	lefts := map[string]string{}
	rights := map[string]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		switch {
		case strings.HasSuffix(strings.TrimSuffix(name, ext), "_left"):
			stem := strings.TrimSuffix(strings.TrimSuffix(name, ext), "_left")
			lefts[stem] = filepath.Join(dir, name)
		case strings.HasSuffix(strings.TrimSuffix(name, ext), "_right"):
			stem := strings.TrimSuffix(strings.TrimSuffix(name, ext), "_right")
			rights[stem] = filepath.Join(dir, name)
		}
	}

	stems := make([]string, 0, len(lefts))
	for stem := range lefts {
		if _, ok := rights[stem]; ok {
			stems = append(stems, stem)
		}
	}
	sort.Strings(stems)

	pairs := make([]photoPair, 0, len(stems))
	for _, stem := range stems {
		pairs = append(pairs, photoPair{left: lefts[stem], right: rights[stem]})
	}
	return pairs, nil
}
