// Package calib implements the session-setup-time calibration workflow
// (C9): finding the asymmetric circle grid in a raw calibration photo set,
// mono-calibrating each eye, and deriving stereo extrinsics and
// rectification maps from the result. It is not on the pipeline's hot
// path — it is the tool that produces the YAML files internal/params
// loads.
//
// Grounded on the teacher's cmd/calib_mono and cmd/calib_stereo: the mono
// path (CalibrateCamera with explicit flags, Mat cloning, RMS reporting)
// follows cmd/calib_mono/calibrate.go directly. The teacher's own
// cmd/calib_stereo/calibrate.go documents that GoCV may not expose a
// working StereoCalibrate binding and sketches the fallback it never
// finished: calibrate each eye independently, then derive the rotation
// and translation between them. This package implements exactly that
// fallback (see CalibrateStereoExtrinsics) rather than calling a stereo
// calibrate binding whose availability the teacher itself could not
// confirm, while still using gocv.StereoRectify and
// gocv.InitUndistortRectifyMap for rectification — both referenced by
// name in the teacher's unfinished code path, just never reached.
package calib

import (
	"fmt"
	"image"
	"sort"

	"github.com/chewxy/math32"
	"gocv.io/x/gocv"

	"github.com/itohio/opticalign/internal/model"
	"github.com/itohio/opticalign/internal/obslog"
	"github.com/itohio/opticalign/internal/params"
)

// FindGrid runs the grid-finding fallback cascade against one calibration
// photo: asymmetric flag, then clustering flag, then both again with the
// pattern dimensions swapped — four attempts before giving up, mirroring
// the original prototype's find_asymmetric_circles_grid_points.
func FindGrid(img gocv.Mat, patternSize image.Point) ([]model.Point2D, bool) {
	attempts := []struct {
		size  image.Point
		flags int
	}{
		{patternSize, gocv.CalibCBAsymmetricGrid},
		{patternSize, gocv.CalibCBAsymmetricGrid | gocv.CalibCBClustering},
		{image.Pt(patternSize.Y, patternSize.X), gocv.CalibCBAsymmetricGrid},
		{image.Pt(patternSize.Y, patternSize.X), gocv.CalibCBAsymmetricGrid | gocv.CalibCBClustering},
	}

	for i, a := range attempts {
		vec := gocv.FindCirclesGridWithParams(img, a.size, a.flags)
		pts := vec.ToPoints()
		vec.Close()
		if len(pts) == a.size.X*a.size.Y {
			out := make([]model.Point2D, len(pts))
			for j, p := range pts {
				out[j] = model.Point2D{X: p.X, Y: p.Y}
			}
			return out, true
		}
		obslog.Log.Debug().Int("attempt", i).Msg("grid-finding attempt failed")
	}
	return nil, false
}

// MonoCalibration is the result of calibrating a single camera from a set
// of board photos.
type MonoCalibration struct {
	CameraMatrix      [][]float64
	DistCoeffs        []float64
	ImageSize         image.Point
	ReprojectionError float64
}

// CalibrateMono runs CalibrateCamera with an initial focal-length guess
// (image width * 1.2, per the original prototype) and k3 fixed, leaving
// the principal point free.
func CalibrateMono(objectPoints [][]model.Point3D, imagePoints [][]model.Point2D, imageSize image.Point) (MonoCalibration, error) {
	return calibrateMono(objectPoints, imagePoints, imageSize, gocv.CalibFixK3|gocv.CalibUseIntrinsicGuess, true)
}

// CalibrateMonoABTest runs mono calibration twice — once with the
// principal point fixed at the image center, once free — and keeps
// whichever yields the lower reprojection error, mirroring
// calibrate_mono_with_ab_test.
func CalibrateMonoABTest(objectPoints [][]model.Point3D, imagePoints [][]model.Point2D, imageSize image.Point) (MonoCalibration, error) {
	free, err := calibrateMono(objectPoints, imagePoints, imageSize, gocv.CalibFixK3|gocv.CalibUseIntrinsicGuess, true)
	if err != nil {
		return MonoCalibration{}, fmt.Errorf("free principal point variant: %w", err)
	}
	fixed, err := calibrateMono(objectPoints, imagePoints, imageSize, gocv.CalibFixK3|gocv.CalibUseIntrinsicGuess|gocv.CalibFixPrincipalPoint, true)
	if err != nil {
		return MonoCalibration{}, fmt.Errorf("fixed principal point variant: %w", err)
	}

	obslog.Log.Info().
		Float64("free_rms", free.ReprojectionError).
		Float64("fixed_rms", fixed.ReprojectionError).
		Msg("mono calibration A/B test")

	if fixed.ReprojectionError < free.ReprojectionError {
		return fixed, nil
	}
	return free, nil
}

func calibrateMono(objectPoints [][]model.Point3D, imagePoints [][]model.Point2D, imageSize image.Point, flags int, focalGuess bool) (MonoCalibration, error) {
	if len(objectPoints) == 0 || len(objectPoints) != len(imagePoints) {
		return MonoCalibration{}, fmt.Errorf("%w: mismatched or empty calibration sample set", model.ErrInitialization)
	}

	objPts := make([][]gocv.Point3f, len(objectPoints))
	imgPts := make([][]gocv.Point2f, len(imagePoints))
	for i := range objectPoints {
		objPts[i] = make([]gocv.Point3f, len(objectPoints[i]))
		for j, p := range objectPoints[i] {
			objPts[i][j] = gocv.Point3f{X: p.X, Y: p.Y, Z: p.Z}
		}
		imgPts[i] = make([]gocv.Point2f, len(imagePoints[i]))
		for j, p := range imagePoints[i] {
			imgPts[i][j] = gocv.Point2f{X: p.X, Y: p.Y}
		}
	}

	objectPointsVec := gocv.NewPoints3fVectorFromPoints(objPts)
	defer objectPointsVec.Close()
	imagePointsVec := gocv.NewPoints2fVectorFromPoints(imgPts)
	defer imagePointsVec.Close()

	cameraMatrix := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer cameraMatrix.Close()
	if focalGuess {
		focal := float64(imageSize.X) * 1.2
		cameraMatrix.SetDoubleAt(0, 0, focal)
		cameraMatrix.SetDoubleAt(1, 1, focal)
		cameraMatrix.SetDoubleAt(0, 2, float64(imageSize.X)/2)
		cameraMatrix.SetDoubleAt(1, 2, float64(imageSize.Y)/2)
		cameraMatrix.SetDoubleAt(2, 2, 1)
	}

	distCoeffs := gocv.NewMat()
	defer distCoeffs.Close()
	rvecs := gocv.NewMat()
	defer rvecs.Close()
	tvecs := gocv.NewMat()
	defer tvecs.Close()

	rms := gocv.CalibrateCamera(objectPointsVec, imagePointsVec, imageSize, &cameraMatrix, &distCoeffs, &rvecs, &tvecs, flags)

	return MonoCalibration{
		CameraMatrix:      params.MatToSlice64(cameraMatrix),
		DistCoeffs:        params.MatToVec64(distCoeffs),
		ImageSize:         imageSize,
		ReprojectionError: rms,
	}, nil
}

// StereoExtrinsicsResult is the outcome of deriving the rotation and
// translation between two already mono-calibrated eyes.
type StereoExtrinsicsResult struct {
	R                 [][]float64
	T                 []float64
	ReprojectionError float64
	SamplesUsed       int
	SamplesRejected   int
}

type pairError struct {
	index int
	err   float32
}

// CalibrateStereoExtrinsics derives the rotation/translation between the
// left and right eyes per sample pair via independent PnP solves, then
// rejects the worst rejectionRatio fraction of pairs by per-pair angular
// disagreement before averaging the rest — the outlier-rejection step from
// calibrate_stereo_with_outlier_rejection, applied to the relative-pose
// fallback the teacher's own stereo calibration path never completed.
// Requires at least 8 surviving pairs.
func CalibrateStereoExtrinsics(objectPoints []model.Point3D, leftImagePoints, rightImagePoints [][]model.Point2D, left, right MonoCalibration, rejectionRatio float64) (StereoExtrinsicsResult, error) {
	n := len(leftImagePoints)
	if n == 0 || n != len(rightImagePoints) {
		return StereoExtrinsicsResult{}, fmt.Errorf("%w: mismatched or empty stereo sample set", model.ErrInitialization)
	}

	leftCM, leftDC := params.Slice64ToMat(left.CameraMatrix), params.Vec64ToMat(left.DistCoeffs)
	defer leftCM.Close()
	defer leftDC.Close()
	rightCM, rightDC := params.Slice64ToMat(right.CameraMatrix), params.Vec64ToMat(right.DistCoeffs)
	defer rightCM.Close()
	defer rightDC.Close()

	type relPose struct {
		rvec [3]float64
		tvec [3]float64
	}
	rel := make([]relPose, 0, n)
	errs := make([]pairError, 0, n)

	for i := 0; i < n; i++ {
		leftR, leftT, err := solvePnPRaw(objectPoints, leftImagePoints[i], leftCM, leftDC)
		if err != nil {
			obslog.Log.Warn().Err(err).Int("pair", i).Msg("left PnP failed, skipping pair")
			continue
		}
		rightR, rightT, err := solvePnPRaw(objectPoints, rightImagePoints[i], rightCM, rightDC)
		if err != nil {
			obslog.Log.Warn().Err(err).Int("pair", i).Msg("right PnP failed, skipping pair")
			continue
		}

		rRel, tRel, angErr := relativePose(leftR, leftT, rightR, rightT)
		rel = append(rel, relPose{rvec: rRel, tvec: tRel})
		errs = append(errs, pairError{index: len(rel) - 1, err: angErr})
	}

	if len(rel) < 8 {
		return StereoExtrinsicsResult{}, fmt.Errorf("%w: only %d usable stereo pairs, need at least 8", model.ErrInitialization, len(rel))
	}

	sort.Slice(errs, func(i, j int) bool { return errs[i].err < errs[j].err })
	keep := len(errs) - int(float64(len(errs))*rejectionRatio)
	if keep < 8 {
		keep = 8
	}
	kept := errs[:keep]

	var sumR, sumT [3]float64
	var sumErr float32
	for _, e := range kept {
		p := rel[e.index]
		for k := 0; k < 3; k++ {
			sumR[k] += p.rvec[k]
			sumT[k] += p.tvec[k]
		}
		sumErr += e.err
	}
	n64 := float64(len(kept))
	avgRvec := []float64{sumR[0] / n64, sumR[1] / n64, sumR[2] / n64}
	avgTvec := []float64{sumT[0] / n64, sumT[1] / n64, sumT[2] / n64}

	rvecMat := params.Vec64ToMat(avgRvec)
	defer rvecMat.Close()
	rmat := gocv.NewMat()
	defer rmat.Close()
	gocv.Rodrigues(rvecMat, &rmat)

	obslog.Log.Info().
		Int("samples_used", len(kept)).
		Int("samples_rejected", len(errs)-len(kept)).
		Msg("stereo extrinsics derived via relative-pose averaging")

	return StereoExtrinsicsResult{
		R:                 params.MatToSlice64(rmat),
		T:                 avgTvec,
		ReprojectionError: float64(sumErr / float32(len(kept))),
		SamplesUsed:       len(kept),
		SamplesRejected:   len(errs) - len(kept),
	}, nil
}

func solvePnPRaw(objectPoints []model.Point3D, imagePoints []model.Point2D, cameraMatrix, distCoeffs gocv.Mat) ([3]float64, [3]float64, error) {
	if len(objectPoints) != len(imagePoints) {
		return [3]float64{}, [3]float64{}, fmt.Errorf("%w: object/image point count mismatch", model.ErrPoseSolverFailure)
	}

	objPts := make([]gocv.Point3f, len(objectPoints))
	imgPts := make([]gocv.Point2f, len(imagePoints))
	for i := range objectPoints {
		objPts[i] = gocv.Point3f{X: objectPoints[i].X, Y: objectPoints[i].Y, Z: objectPoints[i].Z}
		imgPts[i] = gocv.Point2f{X: imagePoints[i].X, Y: imagePoints[i].Y}
	}

	objVec := gocv.NewPoint3fVectorFromPoints(objPts)
	defer objVec.Close()
	imgVec := gocv.NewPoint2fVectorFromPoints(imgPts)
	defer imgVec.Close()

	rvec := gocv.NewMat()
	defer rvec.Close()
	tvec := gocv.NewMat()
	defer tvec.Close()

	if ok := gocv.SolvePnP(objVec, imgVec, cameraMatrix, distCoeffs, &rvec, &tvec, false, gocv.SolvePnPIPPE); !ok {
		return [3]float64{}, [3]float64{}, fmt.Errorf("%w: SolvePnP did not converge", model.ErrPoseSolverFailure)
	}

	var r, t [3]float64
	for i := 0; i < 3; i++ {
		r[i] = rvec.GetDoubleAt(i, 0)
		t[i] = tvec.GetDoubleAt(i, 0)
	}
	return r, t, nil
}

// relativePose computes the rotation/translation taking the left camera
// frame to the right camera frame, given each eye's independently solved
// board pose, plus an angular-disagreement score used for outlier ranking.
func relativePose(leftR, leftT, rightR, rightT [3]float64) (rvec, tvec [3]float64, angErr float32) {
	leftRvecMat := params.Vec64ToMat(leftR[:])
	defer leftRvecMat.Close()
	rightRvecMat := params.Vec64ToMat(rightR[:])
	defer rightRvecMat.Close()

	leftRmat := gocv.NewMat()
	defer leftRmat.Close()
	gocv.Rodrigues(leftRvecMat, &leftRmat)
	rightRmat := gocv.NewMat()
	defer rightRmat.Close()
	gocv.Rodrigues(rightRvecMat, &rightRmat)

	// R_rel = R_right * R_left^T ; T_rel = T_right - R_rel * T_left
	var rRel [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += rightRmat.GetDoubleAt(i, k) * leftRmat.GetDoubleAt(j, k)
			}
			rRel[i][j] = sum
		}
	}

	var tRel [3]float64
	for i := 0; i < 3; i++ {
		var sum float64
		for j := 0; j < 3; j++ {
			sum += rRel[i][j] * leftT[j]
		}
		tRel[i] = rightT[i] - sum
	}

	rRelFlat := make([][]float64, 3)
	for i := range rRelFlat {
		rRelFlat[i] = rRel[i][:]
	}
	rRelMat := params.Slice64ToMat(rRelFlat)
	defer rRelMat.Close()
	rvecMat := gocv.NewMat()
	defer rvecMat.Close()
	gocv.Rodrigues(rRelMat, &rvecMat)

	for i := 0; i < 3; i++ {
		rvec[i] = rvecMat.GetDoubleAt(i, 0)
	}
	tvec = tRel

	trace := rRel[0][0] + rRel[1][1] + rRel[2][2]
	cosTheta := (trace - 1) / 2
	if cosTheta > 1 {
		cosTheta = 1
	}
	if cosTheta < -1 {
		cosTheta = -1
	}
	angErr = math32.Acos(float32(cosTheta)) * (180.0 / math32.Pi)
	return rvec, tvec, angErr
}

// RectificationResult bundles the stereo rectification transforms and the
// remap arrays derived from them.
type RectificationResult struct {
	Params params.RectifyParams
	Maps   params.RectifyMaps
}

// StereoRectifyAndBuildMaps runs gocv.StereoRectify with the zero-disparity
// flag, then gocv.InitUndistortRectifyMap per eye — the two calls the
// teacher's stereo calibration code names as the next step once R and T
// are available, never reached because StereoCalibrate itself was never
// wired up.
func StereoRectifyAndBuildMaps(left, right MonoCalibration, extrinsics StereoExtrinsicsResult, imageSize image.Point) (RectificationResult, error) {
	leftCM := params.Slice64ToMat(left.CameraMatrix)
	defer leftCM.Close()
	leftDC := params.Vec64ToMat(left.DistCoeffs)
	defer leftDC.Close()
	rightCM := params.Slice64ToMat(right.CameraMatrix)
	defer rightCM.Close()
	rightDC := params.Vec64ToMat(right.DistCoeffs)
	defer rightDC.Close()
	R := params.Slice64ToMat(extrinsics.R)
	defer R.Close()
	T := params.Vec64ToMat(extrinsics.T)
	defer T.Close()

	R1 := gocv.NewMat()
	defer R1.Close()
	R2 := gocv.NewMat()
	defer R2.Close()
	P1 := gocv.NewMat()
	defer P1.Close()
	P2 := gocv.NewMat()
	defer P2.Close()
	Q := gocv.NewMat()
	defer Q.Close()

	gocv.StereoRectify(leftCM, leftDC, rightCM, rightDC, imageSize, R, T, &R1, &R2, &P1, &P2, &Q,
		gocv.CalibZeroDisparity, -1, image.Point{})

	leftMap1 := gocv.NewMat()
	defer leftMap1.Close()
	leftMap2 := gocv.NewMat()
	defer leftMap2.Close()
	rightMap1 := gocv.NewMat()
	defer rightMap1.Close()
	rightMap2 := gocv.NewMat()
	defer rightMap2.Close()

	gocv.InitUndistortRectifyMap(leftCM, leftDC, R1, P1, imageSize, gocv.MatTypeCV32F, &leftMap1, &leftMap2)
	gocv.InitUndistortRectifyMap(rightCM, rightDC, R2, P2, imageSize, gocv.MatTypeCV32F, &rightMap1, &rightMap2)

	return RectificationResult{
		Params: params.RectifyParams{
			R1: params.MatToSlice64(R1),
			R2: params.MatToSlice64(R2),
			P1: params.MatToSlice64(P1),
			P2: params.MatToSlice64(P2),
			Q:  params.MatToSlice64(Q),
		},
		Maps: params.RectifyMaps{
			LeftMap1:  params.MatToSlice32(leftMap1),
			LeftMap2:  params.MatToSlice32(leftMap2),
			RightMap1: params.MatToSlice32(rightMap1),
			RightMap2: params.MatToSlice32(rightMap2),
		},
	}, nil
}
